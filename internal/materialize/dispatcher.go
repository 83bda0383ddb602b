package materialize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/fetcher"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"go.uber.org/zap"
)

var emptyTables = []store.Table{store.TableUnclassified, store.TablePending}

var cursorTables = []store.Table{store.TableStatusCursors, store.TableNotifications, store.TablePending}

// CycleReport summarizes one poll cycle of a group.
type CycleReport struct {
	GroupID       string
	StartedAt     time.Time
	Duration      time.Duration
	Fetched       int
	Applied       map[activity.Kind]int
	Blocked       int
	Evicted       int
	Pending       int64
	Notifications int64
	NewObjectIDs  []string
	FailedKinds   []activity.Kind
	FetchFailed   bool
	FullPage      bool
	Cursor        store.StatusCursor
}

// AppliedTotal sums applied transactions over every kind.
func (r CycleReport) AppliedTotal() int {
	total := 0
	for _, count := range r.Applied {
		total += count
	}
	return total
}

// applyEnv is the per-cycle context every reducer reads.
type applyEnv struct {
	groupID       string
	muted         map[string]struct{}
	readTimeStamp int64
	fromPending   map[string]struct{}
}

func (env applyEnv) isMuted(publisher string) bool {
	_, ok := env.muted[publisher]
	return ok
}

// kindResult is what one reducer invocation produced.
type kindResult struct {
	applied             int
	blocked             []activity.Activity
	evicted             int
	unreadDelta         int64
	notifications       int64
	newObjectIDs        []string
	logs                []string
	latestPostTimeStamp int64
}

func (r *kindResult) confirm(item activity.Activity) {
	r.applied++
	r.logs = append(r.logs, contentLog(item, "synced"))
}

func (r *kindResult) insert(item activity.Activity, objectID string) {
	r.applied++
	if objectID != "" {
		r.newObjectIDs = append(r.newObjectIDs, objectID)
	}
	r.logs = append(r.logs, contentLog(item, "applied"))
}

func (r *kindResult) block(item activity.Activity) {
	r.blocked = append(r.blocked, item)
}

func contentLog(item activity.Activity, state string) string {
	trx := item.Transaction()
	return fmt.Sprintf("%d %s %s %s", trx.TimeStamp.Int64(), item.Kind(), trx.TrxID, state)
}

// RunCycle fetches the next page of a group, merges it with every pending
// transaction, applies each kind in its own unit of work and advances the
// cursor. A fetch failure leaves the store and cursor untouched.
func (s *Service) RunCycle(ctx context.Context, groupID string) (CycleReport, error) {
	validGroup, err := activity.NewGroupID(groupID)
	if err != nil {
		return CycleReport{}, newServiceError(opRunCycle, "invalid_group", err)
	}
	groupID = validGroup.String()

	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	report := CycleReport{GroupID: groupID, StartedAt: s.clock(), Applied: map[activity.Kind]int{}}
	defer func() {
		report.Duration = s.clock().Sub(report.StartedAt)
		if s.recorder != nil {
			s.recorder.ObserveCycle(report)
		}
	}()

	var cursor store.StatusCursor
	var pendingRows []store.PendingTransaction
	if err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		if cursor, err = tx.Cursors().Get(groupID); err != nil {
			return err
		}
		pendingRows, err = tx.Pending().ListByGroup(groupID)
		return err
	}); err != nil {
		s.logError(opRunCycle, "state_load_failed", err, zap.String("group_id", groupID))
		return report, newServiceError(opRunCycle, "state_load_failed", err)
	}

	muted, err := s.identity.MutedPublishers(ctx, groupID)
	if err != nil {
		s.logError(opRunCycle, "muted_load_failed", err, zap.String("group_id", groupID))
		return report, newServiceError(opRunCycle, "muted_load_failed", err)
	}

	fetched, err := s.fetcher.Fetch(ctx, groupID, fetcher.Options{Num: s.pageSize, StartTrx: cursor.LatestTrxID})
	if err != nil {
		report.FetchFailed = true
		s.logWarn(opRunCycle, "fetch_failed", err,
			zap.String("group_id", groupID),
			zap.String("start_trx", cursor.LatestTrxID))
		return report, newServiceError(opRunCycle, "fetch_failed", err)
	}
	report.Fetched = len(fetched)

	batch, fromPending, latestTrxID := s.mergeBatch(ctx, groupID, fetched, pendingRows)
	env := applyEnv{
		groupID:       groupID,
		muted:         muted,
		readTimeStamp: cursor.LatestReadTimeStamp,
		fromPending:   fromPending,
	}

	groups := make(map[activity.Kind][]activity.Activity, len(activity.ProcessingOrder))
	for _, trx := range batch {
		classified := activity.Classify(trx)
		groups[classified.Kind()] = append(groups[classified.Kind()], classified)
	}

	var patch store.CursorPatch
	var kindErrors []error
	for _, kind := range activity.ProcessingOrder {
		items := groups[kind]
		if len(items) == 0 {
			continue
		}
		result, err := s.applyKind(ctx, kind, items, env)
		if err != nil {
			s.logError(opApplyKind, "transaction_failed", err,
				zap.String("group_id", groupID),
				zap.String("kind", string(kind)),
				zap.Int("items", len(items)))
			report.FailedKinds = append(report.FailedKinds, kind)
			kindErrors = append(kindErrors, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		report.Applied[kind] = result.applied
		report.Blocked += len(result.blocked)
		report.Evicted += result.evicted
		report.Notifications += result.notifications
		report.NewObjectIDs = append(report.NewObjectIDs, result.newObjectIDs...)
		patch.UnreadDelta += result.unreadDelta
		patch.AppendContentLogs = append(patch.AppendContentLogs, result.logs...)
		if result.latestPostTimeStamp > 0 {
			latestPost := result.latestPostTimeStamp
			patch.LatestPostTimeStamp = &latestPost
		}
	}
	if len(kindErrors) == 0 && latestTrxID != "" {
		patch.LatestTrxID = &latestTrxID
	}

	if err := s.store.Transaction(ctx, cursorTables, func(tx *store.Tx) error {
		counts, err := tx.Notifications().CountUnreadByType(groupID)
		if err != nil {
			return err
		}
		patch.NotificationUnreadCountMap = counts
		if report.Cursor, err = tx.Cursors().Update(groupID, patch, s.nowSeconds()); err != nil {
			return err
		}
		report.Pending, err = tx.Pending().Count(groupID)
		return err
	}); err != nil {
		s.logError(opRunCycle, "cursor_update_failed", err, zap.String("group_id", groupID))
		return report, newServiceError(opRunCycle, "cursor_update_failed", err)
	}
	report.FullPage = len(fetched) >= s.pageSize && len(kindErrors) == 0

	for _, observer := range s.observers {
		observer.CycleCompleted(ctx, report)
	}

	s.loggerOrDefault().Debug("cycle completed",
		zap.String("group_id", groupID),
		zap.Int("fetched", report.Fetched),
		zap.Int("applied", report.AppliedTotal()),
		zap.Int("blocked", report.Blocked),
		zap.Int64("pending", report.Pending))

	if len(kindErrors) > 0 {
		return report, newServiceError(opRunCycle, "kind_failed", errors.Join(kindErrors...))
	}
	return report, nil
}

// mergeBatch unions the fetched page with the pending set, drops envelopes
// that cannot be keyed, and sorts the result. It also returns the trx id the
// cursor advances to once every kind commits.
func (s *Service) mergeBatch(ctx context.Context, groupID string, fetched []activity.Transaction, pendingRows []store.PendingTransaction) ([]activity.Transaction, map[string]struct{}, string) {
	byTrx := make(map[string]activity.Transaction, len(fetched)+len(pendingRows))
	var latest activity.Transaction
	for _, trx := range fetched {
		if trx.TrxID == "" {
			continue
		}
		if latest.TrxID == "" || newerThan(trx.TimeStamp.Int64(), trx.TrxID, latest.TimeStamp.Int64(), latest.TrxID) {
			latest = trx
		}
		if err := trx.Validate(); err != nil || trx.GroupID != groupID {
			s.loggerOrDefault().Debug("fetched transaction dropped",
				zap.String("group_id", groupID),
				zap.String("trx_id", trx.TrxID),
				zap.String("trx_group_id", trx.GroupID))
			continue
		}
		if _, ok := byTrx[trx.TrxID]; !ok {
			byTrx[trx.TrxID] = trx
		}
	}

	fromPending := make(map[string]struct{}, len(pendingRows))
	var undecodable []string
	for _, row := range pendingRows {
		fromPending[row.TrxID] = struct{}{}
		if _, ok := byTrx[row.TrxID]; ok {
			continue
		}
		trx, err := activity.DecodeTransaction([]byte(row.RawValue))
		if err != nil {
			undecodable = append(undecodable, row.TrxID)
			continue
		}
		byTrx[trx.TrxID] = trx
	}
	if len(undecodable) > 0 {
		s.dropUndecodable(ctx, groupID, undecodable)
	}

	batch := make([]activity.Transaction, 0, len(byTrx))
	for _, trx := range byTrx {
		batch = append(batch, trx)
	}
	activity.SortByTimestamp(batch)
	return batch, fromPending, latest.TrxID
}

func (s *Service) dropUndecodable(ctx context.Context, groupID string, trxIDs []string) {
	err := s.store.Transaction(ctx, []store.Table{store.TablePending}, func(tx *store.Tx) error {
		return tx.Pending().BulkDelete(groupID, trxIDs)
	})
	if err != nil {
		s.logError(opPendingEviction, "undecodable_delete_failed", err, zap.String("group_id", groupID))
		return
	}
	s.logWarn(opPendingEviction, "undecodable", nil,
		zap.String("group_id", groupID),
		zap.Strings("trx_ids", trxIDs))
}

func kindTables(kind activity.Kind) []store.Table {
	switch kind {
	case activity.KindPost:
		return postTables
	case activity.KindPostDelete:
		return postDeleteTables
	case activity.KindComment:
		return commentTables
	case activity.KindCounter:
		return counterTables
	case activity.KindProfile:
		return profileTables
	case activity.KindRelation:
		return relationTables
	}
	return emptyTables
}

// applyKind runs one reducer and settles the pending rows of its items in a
// single unit of work.
func (s *Service) applyKind(ctx context.Context, kind activity.Kind, items []activity.Activity, env applyEnv) (kindResult, error) {
	var result kindResult
	err := s.store.Transaction(ctx, kindTables(kind), func(tx *store.Tx) error {
		var err error
		if result, err = s.reduce(tx, kind, items, env); err != nil {
			return err
		}
		return s.settlePending(tx, env, kind, items, &result)
	})
	if err != nil {
		return kindResult{}, err
	}
	return result, nil
}

func (s *Service) reduce(tx *store.Tx, kind activity.Kind, items []activity.Activity, env applyEnv) (kindResult, error) {
	switch kind {
	case activity.KindPost:
		return s.applyPosts(tx, env, only[activity.Post](items))
	case activity.KindPostDelete:
		return s.applyPostDeletes(tx, env, only[activity.PostDelete](items))
	case activity.KindComment:
		return s.applyComments(tx, env, only[activity.Comment](items))
	case activity.KindCounter:
		return s.applyCounters(tx, env, only[activity.Counter](items))
	case activity.KindProfile:
		return s.applyProfiles(tx, env, only[activity.Profile](items))
	case activity.KindRelation:
		return s.applyRelations(tx, env, only[activity.Relation](items))
	}
	return s.applyEmpty(tx, env, only[activity.Empty](items))
}

func (s *Service) applyEmpty(tx *store.Tx, env applyEnv, items []activity.Empty) (kindResult, error) {
	var result kindResult
	rows := make([]store.UnclassifiedTransaction, 0, len(items))
	for _, item := range items {
		trx := item.Transaction()
		raw, err := trx.Encode()
		if err != nil {
			return result, err
		}
		rows = append(rows, store.UnclassifiedTransaction{
			GroupID:   env.groupID,
			TrxID:     trx.TrxID,
			RawValue:  raw,
			Reason:    item.Reason,
			TimeStamp: trx.TimeStamp.Int64(),
		})
	}
	added, err := tx.Unclassified().BulkAdd(rows)
	if err != nil {
		return result, err
	}
	result.applied = int(added)
	return result, nil
}

func only[T activity.Activity](items []activity.Activity) []T {
	typed := make([]T, 0, len(items))
	for _, item := range items {
		if value, ok := item.(T); ok {
			typed = append(typed, value)
		}
	}
	return typed
}

// firstByKey keeps the first item for every key, preserving order.
func firstByKey[T any](items []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	unique := make([]T, 0, len(items))
	for _, item := range items {
		value := key(item)
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		unique = append(unique, item)
	}
	return unique
}

// collect returns the dirty rows of byKey in key order.
func collect[T any](byKey map[string]*T, dirty map[string]struct{}) []T {
	keys := make([]string, 0, len(dirty))
	for key := range dirty {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([]T, 0, len(keys))
	for _, key := range keys {
		if row, ok := byKey[key]; ok {
			rows = append(rows, *row)
		}
	}
	return rows
}
