package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Table names a keyed table of the local store.
type Table string

const (
	TablePosts             Table = "posts"
	TableComments          Table = "comments"
	TableCounters          Table = "counters"
	TableVoteStates        Table = "vote_states"
	TableProfiles          Table = "profiles"
	TableRelations         Table = "relations"
	TableRelationSummaries Table = "relation_summaries"
	TableNotifications     Table = "notifications"
	TablePending           Table = "pending_transactions"
	TableUnclassified      Table = "unclassified_transactions"
	TableStatusCursors     Table = "status_cursors"
)

const (
	writeBatchSize = 100
	readChunkSize  = 500
	columnGroupID  = "group_id"
	columnTrxID    = "trx_id"
	columnID       = "id"
)

var (
	// ErrMissingDatabase indicates that the store was built without a database handle.
	ErrMissingDatabase = errors.New("store: database handle is required")
	// ErrTableOutOfScope indicates a repository was used outside the tables its unit of work declared.
	ErrTableOutOfScope = errors.New("store: table outside transaction scope")
)

// Store is the transactional local store.
type Store struct {
	db *gorm.DB
}

// New wraps a migrated gorm handle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, ErrMissingDatabase
	}
	return &Store{db: db}, nil
}

// Transaction runs fn as one unit of work over the declared tables. Every
// write made through the Tx commits together or not at all.
func (s *Store) Transaction(ctx context.Context, tables []Table, fn func(tx *Tx) error) error {
	scope := make(map[Table]struct{}, len(tables))
	for _, table := range tables {
		scope[table] = struct{}{}
	}
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Tx{db: db, scope: scope})
	})
}

// View runs read-only fn with every table in scope.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	return fn(&Tx{db: s.db.WithContext(ctx)})
}

// Tx is a table-scoped unit of work. A nil scope admits every table.
type Tx struct {
	db    *gorm.DB
	scope map[Table]struct{}
}

func (tx *Tx) guard(table Table) error {
	if tx.scope == nil {
		return nil
	}
	if _, ok := tx.scope[table]; !ok {
		return fmt.Errorf("%w: %s", ErrTableOutOfScope, table)
	}
	return nil
}

// repository implements the keyed operations shared by every table whose
// rows are identified by (group_id, key).
type repository[T any] struct {
	tx        *Tx
	table     Table
	keyColumn string
}

func (r repository[T]) Get(groupID, key string) (T, bool, error) {
	var row T
	if err := r.tx.guard(r.table); err != nil {
		return row, false, err
	}
	result := r.tx.db.Where(columnGroupID+" = ? AND "+r.keyColumn+" = ?", groupID, key).Limit(1).Find(&row)
	if result.Error != nil {
		return row, false, result.Error
	}
	return row, result.RowsAffected > 0, nil
}

func (r repository[T]) BulkGet(groupID string, keys []string) ([]T, error) {
	if err := r.tx.guard(r.table); err != nil {
		return nil, err
	}
	keys = uniqueNonEmpty(keys)
	rows := make([]T, 0, len(keys))
	for start := 0; start < len(keys); start += readChunkSize {
		end := start + readChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		var chunk []T
		if err := r.tx.db.Where(columnGroupID+" = ? AND "+r.keyColumn+" IN ?", groupID, keys[start:end]).Find(&chunk).Error; err != nil {
			return nil, err
		}
		rows = append(rows, chunk...)
	}
	return rows, nil
}

// BulkPut inserts rows, replacing every column of rows that already exist.
func (r repository[T]) BulkPut(rows []T) error {
	if err := r.tx.guard(r.table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return r.tx.db.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, writeBatchSize).Error
}

// BulkAdd inserts rows, ignoring rows whose key already exists. It returns
// the number of rows actually inserted.
func (r repository[T]) BulkAdd(rows []T) (int64, error) {
	if err := r.tx.guard(r.table); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	result := r.tx.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, writeBatchSize)
	return result.RowsAffected, result.Error
}

func (r repository[T]) BulkDelete(groupID string, keys []string) error {
	if err := r.tx.guard(r.table); err != nil {
		return err
	}
	keys = uniqueNonEmpty(keys)
	if len(keys) == 0 {
		return nil
	}
	return r.tx.db.Where(columnGroupID+" = ? AND "+r.keyColumn+" IN ?", groupID, keys).Delete(new(T)).Error
}

func (r repository[T]) ListByGroup(groupID string) ([]T, error) {
	if err := r.tx.guard(r.table); err != nil {
		return nil, err
	}
	var rows []T
	if err := r.tx.db.Where(columnGroupID+" = ?", groupID).Order(r.keyColumn + " ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func uniqueNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		unique = append(unique, value)
	}
	return unique
}
