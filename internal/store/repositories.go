package store

import (
	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"gorm.io/gorm/clause"
)

const defaultListLimit = 50

// ListOptions pages through timestamp-ordered rows, newest first.
type ListOptions struct {
	Limit           int
	BeforeTimeStamp int64
	Publisher       string
}

func (options ListOptions) limit() int {
	if options.Limit <= 0 {
		return defaultListLimit
	}
	return options.Limit
}

// PostRepository accesses the posts table.
type PostRepository struct {
	repository[Post]
}

// Posts returns the post repository bound to this unit of work.
func (tx *Tx) Posts() PostRepository {
	return PostRepository{repository[Post]{tx: tx, table: TablePosts, keyColumn: columnID}}
}

// List returns non-deleted posts of a group, newest first.
func (r PostRepository) List(groupID string, options ListOptions) ([]Post, error) {
	if err := r.tx.guard(r.table); err != nil {
		return nil, err
	}
	query := r.tx.db.Where("group_id = ? AND deleted = ?", groupID, false)
	if options.BeforeTimeStamp > 0 {
		query = query.Where("timestamp_ns < ?", options.BeforeTimeStamp)
	}
	if options.Publisher != "" {
		query = query.Where("publisher = ?", options.Publisher)
	}
	var posts []Post
	if err := query.Order("timestamp_ns DESC").Limit(options.limit()).Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// CommentRepository accesses the comments table.
type CommentRepository struct {
	repository[Comment]
}

// Comments returns the comment repository bound to this unit of work.
func (tx *Tx) Comments() CommentRepository {
	return CommentRepository{repository[Comment]{tx: tx, table: TableComments, keyColumn: columnID}}
}

// ListByPost returns every comment under a post, oldest first.
func (r CommentRepository) ListByPost(groupID, postID string) ([]Comment, error) {
	if err := r.tx.guard(r.table); err != nil {
		return nil, err
	}
	var comments []Comment
	if err := r.tx.db.Where("group_id = ? AND post_id = ?", groupID, postID).
		Order("timestamp_ns ASC").
		Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// CounterRepository accesses applied vote events keyed by trx id.
type CounterRepository struct {
	repository[Counter]
}

// Counters returns the counter repository bound to this unit of work.
func (tx *Tx) Counters() CounterRepository {
	return CounterRepository{repository[Counter]{tx: tx, table: TableCounters, keyColumn: columnTrxID}}
}

// VoteStateRepository accesses per-actor vote flags.
type VoteStateRepository struct {
	tx *Tx
}

// VoteStates returns the vote state repository bound to this unit of work.
func (tx *Tx) VoteStates() VoteStateRepository {
	return VoteStateRepository{tx: tx}
}

// Get returns the vote flag of publisher on object, or a zero state.
func (r VoteStateRepository) Get(groupID, objectID, publisher string) (VoteState, error) {
	if err := r.tx.guard(TableVoteStates); err != nil {
		return VoteState{}, err
	}
	var state VoteState
	result := r.tx.db.Where("group_id = ? AND object_id = ? AND publisher = ?", groupID, objectID, publisher).Limit(1).Find(&state)
	if result.Error != nil {
		return VoteState{}, result.Error
	}
	if result.RowsAffected == 0 {
		return VoteState{GroupID: groupID, ObjectID: objectID, Publisher: publisher}, nil
	}
	return state, nil
}

// Put upserts vote flags.
func (r VoteStateRepository) Put(states []VoteState) error {
	if err := r.tx.guard(TableVoteStates); err != nil {
		return err
	}
	if len(states) == 0 {
		return nil
	}
	return r.tx.db.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&states, writeBatchSize).Error
}

// ProfileRepository accesses append-only profile revisions keyed by trx id.
type ProfileRepository struct {
	repository[Profile]
}

// Profiles returns the profile repository bound to this unit of work.
func (tx *Tx) Profiles() ProfileRepository {
	return ProfileRepository{repository[Profile]{tx: tx, table: TableProfiles, keyColumn: columnTrxID}}
}

// Current returns the latest synced revision of a publisher.
func (r ProfileRepository) Current(groupID, publisher string) (Profile, bool, error) {
	if err := r.tx.guard(r.table); err != nil {
		return Profile{}, false, err
	}
	var profile Profile
	result := r.tx.db.Where("group_id = ? AND publisher = ? AND status = ?", groupID, publisher, StatusSynced).
		Order("timestamp_ns DESC").
		Limit(1).
		Find(&profile)
	if result.Error != nil {
		return Profile{}, false, result.Error
	}
	return profile, result.RowsAffected > 0, nil
}

// RelationRepository accesses relation edge events keyed by trx id.
type RelationRepository struct {
	repository[Relation]
}

// Relations returns the relation repository bound to this unit of work.
func (tx *Tx) Relations() RelationRepository {
	return RelationRepository{repository[Relation]{tx: tx, table: TableRelations, keyColumn: columnTrxID}}
}

// RelationSummaryRepository accesses last-writer-wins edge state.
type RelationSummaryRepository struct {
	tx *Tx
}

// RelationSummaries returns the relation summary repository bound to this unit of work.
func (tx *Tx) RelationSummaries() RelationSummaryRepository {
	return RelationSummaryRepository{tx: tx}
}

// Get returns the edge state for a base relation type.
func (r RelationSummaryRepository) Get(groupID, from, to string, base activity.RelationType) (RelationSummary, bool, error) {
	if err := r.tx.guard(TableRelationSummaries); err != nil {
		return RelationSummary{}, false, err
	}
	var summary RelationSummary
	result := r.tx.db.Where("group_id = ? AND from_publisher = ? AND to_publisher = ? AND type = ?", groupID, from, to, base).
		Limit(1).
		Find(&summary)
	if result.Error != nil {
		return RelationSummary{}, false, result.Error
	}
	return summary, result.RowsAffected > 0, nil
}

// Put upserts edge states.
func (r RelationSummaryRepository) Put(summaries []RelationSummary) error {
	if err := r.tx.guard(TableRelationSummaries); err != nil {
		return err
	}
	if len(summaries) == 0 {
		return nil
	}
	return r.tx.db.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&summaries, writeBatchSize).Error
}

// ListActive returns the publishers from has an active edge of base type to.
func (r RelationSummaryRepository) ListActive(groupID, from string, base activity.RelationType) ([]string, error) {
	if err := r.tx.guard(TableRelationSummaries); err != nil {
		return nil, err
	}
	var targets []string
	err := r.tx.db.Model(&RelationSummary{}).
		Where("group_id = ? AND from_publisher = ? AND type = ? AND value = ?", groupID, from, base, true).
		Order("to_publisher ASC").
		Pluck("to_publisher", &targets).Error
	return targets, err
}

// NotificationRepository accesses derived notifications.
type NotificationRepository struct {
	repository[Notification]
}

// Notifications returns the notification repository bound to this unit of work.
func (tx *Tx) Notifications() NotificationRepository {
	return NotificationRepository{repository[Notification]{tx: tx, table: TableNotifications, keyColumn: columnID}}
}

// List returns notifications of a group, newest first, optionally filtered by type.
func (r NotificationRepository) List(groupID string, notificationType NotificationType, options ListOptions) ([]Notification, error) {
	if err := r.tx.guard(r.table); err != nil {
		return nil, err
	}
	query := r.tx.db.Where("group_id = ?", groupID)
	if notificationType != "" {
		query = query.Where("type = ?", notificationType)
	}
	if options.BeforeTimeStamp > 0 {
		query = query.Where("timestamp_ns < ?", options.BeforeTimeStamp)
	}
	var notifications []Notification
	if err := query.Order("timestamp_ns DESC").Limit(options.limit()).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// CountUnreadByType returns unread notification counts keyed by type.
func (r NotificationRepository) CountUnreadByType(groupID string) (map[string]int64, error) {
	if err := r.tx.guard(r.table); err != nil {
		return nil, err
	}
	type typeCount struct {
		Type  string
		Total int64
	}
	var rows []typeCount
	if err := r.tx.db.Model(&Notification{}).
		Select("type, COUNT(*) AS total").
		Where("group_id = ? AND status = ?", groupID, NotificationUnread).
		Group("type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Type] = row.Total
	}
	return counts, nil
}

// MarkRead flips unread notifications to read; an empty type marks all.
func (r NotificationRepository) MarkRead(groupID string, notificationType NotificationType) (int64, error) {
	if err := r.tx.guard(r.table); err != nil {
		return 0, err
	}
	query := r.tx.db.Model(&Notification{}).Where("group_id = ? AND status = ?", groupID, NotificationUnread)
	if notificationType != "" {
		query = query.Where("type = ?", notificationType)
	}
	result := query.Update("status", NotificationRead)
	return result.RowsAffected, result.Error
}

// PendingRepository accesses blocked transactions keyed by trx id.
type PendingRepository struct {
	repository[PendingTransaction]
}

// Pending returns the pending transaction repository bound to this unit of work.
func (tx *Tx) Pending() PendingRepository {
	return PendingRepository{repository[PendingTransaction]{tx: tx, table: TablePending, keyColumn: columnTrxID}}
}

// UnclassifiedRepository accesses verbatim Empty transactions keyed by trx id.
type UnclassifiedRepository struct {
	repository[UnclassifiedTransaction]
}

// Unclassified returns the unclassified transaction repository bound to this unit of work.
func (tx *Tx) Unclassified() UnclassifiedRepository {
	return UnclassifiedRepository{repository[UnclassifiedTransaction]{tx: tx, table: TableUnclassified, keyColumn: columnTrxID}}
}

// Count returns the number of pending transactions of a group.
func (r PendingRepository) Count(groupID string) (int64, error) {
	if err := r.tx.guard(r.table); err != nil {
		return 0, err
	}
	var total int64
	err := r.tx.db.Model(&PendingTransaction{}).Where(columnGroupID+" = ?", groupID).Count(&total).Error
	return total, err
}
