package server

import (
	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/materialize"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
)

type postPayload struct {
	ID            string           `json:"id"`
	TrxID         string           `json:"trxId"`
	Publisher     string           `json:"publisher"`
	Content       string           `json:"content"`
	Images        []activity.Image `json:"images,omitempty"`
	ForwardPostID string           `json:"forwardPostId,omitempty"`
	Status        store.Status     `json:"status"`
	Deleted       bool             `json:"deleted"`
	TimeStamp     int64            `json:"timestamp"`
	CommentCount  int64            `json:"commentCount"`
	LikeCount     int64            `json:"likeCount"`
	DislikeCount  int64            `json:"dislikeCount"`
	ForwardCount  int64            `json:"forwardCount"`
	HotCount      int64            `json:"hotCount"`
}

func newPostPayload(post store.Post) postPayload {
	return postPayload{
		ID:            post.ID,
		TrxID:         post.TrxID,
		Publisher:     post.Publisher,
		Content:       post.Content,
		Images:        post.Images,
		ForwardPostID: post.ForwardPostID,
		Status:        post.Status,
		Deleted:       post.Deleted,
		TimeStamp:     post.TimeStamp,
		CommentCount:  post.Summary.CommentCount,
		LikeCount:     post.Summary.LikeCount,
		DislikeCount:  post.Summary.DislikeCount,
		ForwardCount:  post.Summary.ForwardCount,
		HotCount:      post.Summary.HotCount,
	}
}

type commentPayload struct {
	ID           string           `json:"id"`
	TrxID        string           `json:"trxId"`
	PostID       string           `json:"postId"`
	ThreadID     string           `json:"threadId,omitempty"`
	ReplyTo      string           `json:"replyTo"`
	Publisher    string           `json:"publisher"`
	Content      string           `json:"content"`
	Images       []activity.Image `json:"images,omitempty"`
	Status       store.Status     `json:"status"`
	TimeStamp    int64            `json:"timestamp"`
	CommentCount int64            `json:"commentCount"`
	LikeCount    int64            `json:"likeCount"`
	DislikeCount int64            `json:"dislikeCount"`
	HotCount     int64            `json:"hotCount"`
}

func newCommentPayload(comment store.Comment) commentPayload {
	return commentPayload{
		ID:           comment.ID,
		TrxID:        comment.TrxID,
		PostID:       comment.PostID,
		ThreadID:     comment.ThreadID,
		ReplyTo:      comment.ReplyTo,
		Publisher:    comment.Publisher,
		Content:      comment.Content,
		Images:       comment.Images,
		Status:       comment.Status,
		TimeStamp:    comment.TimeStamp,
		CommentCount: comment.Summary.CommentCount,
		LikeCount:    comment.Summary.LikeCount,
		DislikeCount: comment.Summary.DislikeCount,
		HotCount:     comment.Summary.HotCount,
	}
}

type profilePayload struct {
	Publisher string            `json:"publisher"`
	TrxID     string            `json:"trxId"`
	Name      string            `json:"name"`
	Avatar    string            `json:"avatar,omitempty"`
	Wallet    []activity.Wallet `json:"wallet,omitempty"`
	Status    store.Status      `json:"status"`
	TimeStamp int64             `json:"timestamp"`
}

func newProfilePayload(profile store.Profile) profilePayload {
	return profilePayload{
		Publisher: profile.Publisher,
		TrxID:     profile.TrxID,
		Name:      profile.Name,
		Avatar:    profile.Avatar,
		Wallet:    profile.Wallet,
		Status:    profile.Status,
		TimeStamp: profile.TimeStamp,
	}
}

type notificationPayload struct {
	ID            string                   `json:"id"`
	Type          store.NotificationType   `json:"type"`
	ObjectID      string                   `json:"objectId"`
	FromPublisher string                   `json:"fromPublisher"`
	Status        store.NotificationStatus `json:"status"`
	TimeStamp     int64                    `json:"timestamp"`
}

type statusPayload struct {
	GroupID                    string           `json:"groupId"`
	LatestTrxID                string           `json:"latestTrxId"`
	LatestPostTimeStamp        int64            `json:"latestPostTimeStamp"`
	LatestReadTimeStamp        int64            `json:"latestReadTimeStamp"`
	UnreadCount                int64            `json:"unreadCount"`
	NotificationUnreadCountMap map[string]int64 `json:"notificationUnreadCountMap"`
	RecentContentLogs          []string         `json:"recentContentLogs"`
}

func newStatusPayload(cursor store.StatusCursor) statusPayload {
	logs := cursor.RecentContentLogs
	if logs == nil {
		logs = []string{}
	}
	counts := cursor.NotificationUnreadCountMap
	if counts == nil {
		counts = map[string]int64{}
	}
	return statusPayload{
		GroupID:                    cursor.GroupID,
		LatestTrxID:                cursor.LatestTrxID,
		LatestPostTimeStamp:        cursor.LatestPostTimeStamp,
		LatestReadTimeStamp:        cursor.LatestReadTimeStamp,
		UnreadCount:                cursor.UnreadCount,
		NotificationUnreadCountMap: counts,
		RecentContentLogs:          logs,
	}
}

type cyclePayload struct {
	GroupID      string                `json:"groupId"`
	Fetched      int                   `json:"fetched"`
	Applied      map[activity.Kind]int `json:"applied"`
	Blocked      int                   `json:"blocked"`
	Evicted      int                   `json:"evicted"`
	Pending      int64                 `json:"pending"`
	NewObjectIDs []string              `json:"newObjectIds"`
	FullPage     bool                  `json:"fullPage"`
	Status       statusPayload         `json:"status"`
}

func newCyclePayload(report materialize.CycleReport) cyclePayload {
	ids := report.NewObjectIDs
	if ids == nil {
		ids = []string{}
	}
	return cyclePayload{
		GroupID:      report.GroupID,
		Fetched:      report.Fetched,
		Applied:      report.Applied,
		Blocked:      report.Blocked,
		Evicted:      report.Evicted,
		Pending:      report.Pending,
		NewObjectIDs: ids,
		FullPage:     report.FullPage,
		Status:       newStatusPayload(report.Cursor),
	}
}

type realtimePayload struct {
	Source      string   `json:"source"`
	GroupID     string   `json:"groupId"`
	ObjectIDs   []string `json:"objectIds"`
	Applied     int      `json:"applied"`
	Pending     int64    `json:"pending"`
	UnreadCount int64    `json:"unreadCount"`
	Timestamp   string   `json:"timestamp"`
}

type createPostRequest struct {
	TrxID         string           `json:"trxId"`
	ID            string           `json:"id"`
	Content       string           `json:"content"`
	Images        []activity.Image `json:"images"`
	ForwardPostID string           `json:"forwardPostId"`
	TimeStamp     int64            `json:"timestamp"`
}

type createCommentRequest struct {
	TrxID     string           `json:"trxId"`
	ID        string           `json:"id"`
	ReplyTo   string           `json:"replyTo"`
	Content   string           `json:"content"`
	Images    []activity.Image `json:"images"`
	TimeStamp int64            `json:"timestamp"`
}

type updateProfileRequest struct {
	TrxID     string            `json:"trxId"`
	Name      string            `json:"name"`
	Avatar    string            `json:"avatar"`
	Wallet    []activity.Wallet `json:"wallet"`
	TimeStamp int64             `json:"timestamp"`
}

type markReadRequest struct {
	TimeStamp int64 `json:"timestamp"`
}

type markNotificationsReadRequest struct {
	Type string `json:"type"`
}

type muteRequest struct {
	Publisher string `json:"publisher"`
}
