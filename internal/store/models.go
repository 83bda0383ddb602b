package store

import "github.com/MarcoPoloResearchLab/feedsync/internal/activity"

// Status tracks whether a row is confirmed by the remote log.
type Status string

const (
	// StatusSyncing marks a locally authored row awaiting its confirming transaction.
	StatusSyncing Status = "syncing"
	// StatusSynced marks a row confirmed by the remote log.
	StatusSynced Status = "synced"
)

// ObjectType names the kind of object a vote targets.
type ObjectType string

const (
	ObjectTypePost    ObjectType = "post"
	ObjectTypeComment ObjectType = "comment"
)

// NotificationType enumerates derived notifications.
type NotificationType string

const (
	NotificationCommentPost  NotificationType = "commentPost"
	NotificationCommentReply NotificationType = "commentReply"
	NotificationObjectLike   NotificationType = "objectLike"
	NotificationCommentLike  NotificationType = "commentLike"
	NotificationPostForward  NotificationType = "postForward"
)

// NotificationStatus tracks whether a notification has been seen.
type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "unread"
	NotificationRead   NotificationStatus = "read"
)

// PostSummary holds the incrementally maintained aggregates of a post.
type PostSummary struct {
	CommentCount int64 `gorm:"column:comment_count;not null;default:0"`
	LikeCount    int64 `gorm:"column:like_count;not null;default:0"`
	DislikeCount int64 `gorm:"column:dislike_count;not null;default:0"`
	ForwardCount int64 `gorm:"column:forward_count;not null;default:0"`
	HotCount     int64 `gorm:"column:hot_count;not null;default:0"`
}

// Post is a materialized top-level post.
type Post struct {
	GroupID       string           `gorm:"column:group_id;primaryKey;size:190;not null;index:idx_posts_group_time,priority:1"`
	ID            string           `gorm:"column:id;primaryKey;size:190;not null"`
	TrxID         string           `gorm:"column:trx_id;size:190;not null"`
	Publisher     string           `gorm:"column:publisher;size:190;not null;index"`
	Content       string           `gorm:"column:content;type:text;not null"`
	Images        []activity.Image `gorm:"column:images;serializer:json"`
	ForwardPostID string           `gorm:"column:forward_post_id;size:190;not null"`
	Status        Status           `gorm:"column:status;size:16;not null"`
	Deleted       bool             `gorm:"column:deleted;not null;default:false"`
	TimeStamp     int64            `gorm:"column:timestamp_ns;not null;index:idx_posts_group_time,priority:2"`
	Summary       PostSummary      `gorm:"embedded"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return string(TablePosts)
}

// CommentSummary holds the incrementally maintained aggregates of a comment.
type CommentSummary struct {
	CommentCount int64 `gorm:"column:comment_count;not null;default:0"`
	LikeCount    int64 `gorm:"column:like_count;not null;default:0"`
	DislikeCount int64 `gorm:"column:dislike_count;not null;default:0"`
	HotCount     int64 `gorm:"column:hot_count;not null;default:0"`
}

// Comment is a materialized reply. ThreadID is the root comment id, empty
// when the comment sits directly under the post.
type Comment struct {
	GroupID   string           `gorm:"column:group_id;primaryKey;size:190;not null;index:idx_comments_group_post,priority:1"`
	ID        string           `gorm:"column:id;primaryKey;size:190;not null"`
	TrxID     string           `gorm:"column:trx_id;size:190;not null"`
	PostID    string           `gorm:"column:post_id;size:190;not null;index:idx_comments_group_post,priority:2"`
	ThreadID  string           `gorm:"column:thread_id;size:190;not null"`
	ReplyTo   string           `gorm:"column:reply_to;size:190;not null"`
	Publisher string           `gorm:"column:publisher;size:190;not null"`
	Content   string           `gorm:"column:content;type:text;not null"`
	Images    []activity.Image `gorm:"column:images;serializer:json"`
	Status    Status           `gorm:"column:status;size:16;not null"`
	TimeStamp int64            `gorm:"column:timestamp_ns;not null;index:idx_comments_group_post,priority:3"`
	Summary   CommentSummary   `gorm:"embedded"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return string(TableComments)
}

// Counter is an applied vote event, kept as the replay guard.
type Counter struct {
	GroupID    string               `gorm:"column:group_id;primaryKey;size:190;not null"`
	TrxID      string               `gorm:"column:trx_id;primaryKey;size:190;not null"`
	ObjectID   string               `gorm:"column:object_id;size:190;not null;index"`
	ObjectType ObjectType           `gorm:"column:object_type;size:16;not null"`
	Type       activity.CounterType `gorm:"column:type;size:16;not null"`
	Publisher  string               `gorm:"column:publisher;size:190;not null"`
	TimeStamp  int64                `gorm:"column:timestamp_ns;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Counter) TableName() string {
	return string(TableCounters)
}

// VoteState is the per-actor vote flag on an object.
type VoteState struct {
	GroupID   string `gorm:"column:group_id;primaryKey;size:190;not null"`
	ObjectID  string `gorm:"column:object_id;primaryKey;size:190;not null"`
	Publisher string `gorm:"column:publisher;primaryKey;size:190;not null"`
	Liked     bool   `gorm:"column:liked;not null;default:false"`
	Disliked  bool   `gorm:"column:disliked;not null;default:false"`
	TimeStamp int64  `gorm:"column:timestamp_ns;not null"`
}

// TableName provides the explicit table binding for GORM.
func (VoteState) TableName() string {
	return string(TableVoteStates)
}

// Profile is one append-only profile revision.
type Profile struct {
	GroupID   string            `gorm:"column:group_id;primaryKey;size:190;not null;index:idx_profiles_group_publisher,priority:1"`
	TrxID     string            `gorm:"column:trx_id;primaryKey;size:190;not null"`
	Publisher string            `gorm:"column:publisher;size:190;not null;index:idx_profiles_group_publisher,priority:2"`
	Name      string            `gorm:"column:name;size:320;not null"`
	Avatar    string            `gorm:"column:avatar;type:text;not null"`
	Wallet    []activity.Wallet `gorm:"column:wallet;serializer:json"`
	Status    Status            `gorm:"column:status;size:16;not null"`
	TimeStamp int64             `gorm:"column:timestamp_ns;not null;index:idx_profiles_group_publisher,priority:3"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return string(TableProfiles)
}

// Relation is one directed edge event.
type Relation struct {
	GroupID       string                `gorm:"column:group_id;primaryKey;size:190;not null"`
	TrxID         string                `gorm:"column:trx_id;primaryKey;size:190;not null"`
	FromPublisher string                `gorm:"column:from_publisher;size:190;not null;index"`
	ToPublisher   string                `gorm:"column:to_publisher;size:190;not null"`
	Type          activity.RelationType `gorm:"column:type;size:16;not null"`
	TimeStamp     int64                 `gorm:"column:timestamp_ns;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Relation) TableName() string {
	return string(TableRelations)
}

// RelationSummary stores the last-writer-wins state of an edge per base type.
type RelationSummary struct {
	GroupID       string                `gorm:"column:group_id;primaryKey;size:190;not null"`
	FromPublisher string                `gorm:"column:from_publisher;primaryKey;size:190;not null"`
	ToPublisher   string                `gorm:"column:to_publisher;primaryKey;size:190;not null"`
	Type          activity.RelationType `gorm:"column:type;primaryKey;size:16;not null"`
	Value         bool                  `gorm:"column:value;not null"`
	TrxID         string                `gorm:"column:trx_id;size:190;not null"`
	TimeStamp     int64                 `gorm:"column:timestamp_ns;not null"`
}

// TableName provides the explicit table binding for GORM.
func (RelationSummary) TableName() string {
	return string(TableRelationSummaries)
}

// Notification is derived from reducer output, never from a transaction directly.
type Notification struct {
	ID            string             `gorm:"column:id;primaryKey;size:64;not null"`
	GroupID       string             `gorm:"column:group_id;size:190;not null;index:idx_notifications_group_status,priority:1;uniqueIndex:idx_notifications_dedupe,priority:1"`
	ObjectID      string             `gorm:"column:object_id;size:190;not null"`
	SourceTrxID   string             `gorm:"column:source_trx_id;size:190;not null;uniqueIndex:idx_notifications_dedupe,priority:2"`
	FromPublisher string             `gorm:"column:from_publisher;size:190;not null"`
	Type          NotificationType   `gorm:"column:type;size:32;not null;uniqueIndex:idx_notifications_dedupe,priority:3"`
	Status        NotificationStatus `gorm:"column:status;size:16;not null;index:idx_notifications_group_status,priority:2"`
	TimeStamp     int64              `gorm:"column:timestamp_ns;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return string(TableNotifications)
}

// PendingTransaction holds a transaction whose parent is not yet materialized.
type PendingTransaction struct {
	GroupID          string        `gorm:"column:group_id;primaryKey;size:190;not null"`
	TrxID            string        `gorm:"column:trx_id;primaryKey;size:190;not null"`
	Kind             activity.Kind `gorm:"column:kind;size:32;not null"`
	RawValue         string        `gorm:"column:raw_value;type:text;not null"`
	Attempts         int64         `gorm:"column:attempts;not null;default:0"`
	FirstSeenSeconds int64         `gorm:"column:first_seen_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PendingTransaction) TableName() string {
	return string(TablePending)
}

// UnclassifiedTransaction stores an Empty transaction verbatim.
type UnclassifiedTransaction struct {
	GroupID   string `gorm:"column:group_id;primaryKey;size:190;not null"`
	TrxID     string `gorm:"column:trx_id;primaryKey;size:190;not null"`
	RawValue  string `gorm:"column:raw_value;type:text;not null"`
	Reason    string `gorm:"column:reason;size:190;not null"`
	TimeStamp int64  `gorm:"column:timestamp_ns;not null"`
}

// TableName provides the explicit table binding for GORM.
func (UnclassifiedTransaction) TableName() string {
	return string(TableUnclassified)
}

// StatusCursor is the per-group bookmark of processed transactions.
type StatusCursor struct {
	GroupID                    string           `gorm:"column:group_id;primaryKey;size:190;not null"`
	LatestTrxID                string           `gorm:"column:latest_trx_id;size:190;not null"`
	LatestPostTimeStamp        int64            `gorm:"column:latest_post_timestamp_ns;not null;default:0"`
	LatestReadTimeStamp        int64            `gorm:"column:latest_read_timestamp_ns;not null;default:0"`
	UnreadCount                int64            `gorm:"column:unread_count;not null;default:0"`
	NotificationUnreadCountMap map[string]int64 `gorm:"column:notification_unread_count_map;serializer:json"`
	RecentContentLogs          []string         `gorm:"column:recent_content_logs;serializer:json"`
	UpdatedAtSeconds           int64            `gorm:"column:updated_at_s;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (StatusCursor) TableName() string {
	return string(TableStatusCursors)
}

// Models lists every table model for schema migration.
func Models() []interface{} {
	return []interface{}{
		&Post{},
		&Comment{},
		&Counter{},
		&VoteState{},
		&Profile{},
		&Relation{},
		&RelationSummary{},
		&Notification{},
		&PendingTransaction{},
		&UnclassifiedTransaction{},
		&StatusCursor{},
	}
}
