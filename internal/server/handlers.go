package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/materialize"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var notificationTypes = map[store.NotificationType]struct{}{
	store.NotificationCommentPost:  {},
	store.NotificationCommentReply: {},
	store.NotificationObjectLike:   {},
	store.NotificationCommentLike:  {},
	store.NotificationPostForward:  {},
}

func listOptions(c *gin.Context) (store.ListOptions, bool) {
	var options store.ListOptions
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return options, false
		}
		options.Limit = limit
	}
	if raw := c.Query("before"); raw != "" {
		before, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || before < 0 {
			return options, false
		}
		options.BeforeTimeStamp = before
	}
	options.Publisher = strings.TrimSpace(c.Query("publisher"))
	return options, true
}

func notificationType(raw string) (store.NotificationType, bool) {
	value := store.NotificationType(strings.TrimSpace(raw))
	if value == "" {
		return "", true
	}
	_, ok := notificationTypes[value]
	return value, ok
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	return true
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	cursor, err := h.materializer.Status(c.Request.Context(), groupParam(c))
	if err != nil {
		h.respondError(c, err, "status_failed")
		return
	}
	c.JSON(http.StatusOK, newStatusPayload(cursor))
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	options, ok := listOptions(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_query"})
		return
	}
	posts, err := h.materializer.ListPosts(c.Request.Context(), groupParam(c), options)
	if err != nil {
		h.respondError(c, err, "list_posts_failed")
		return
	}
	payload := make([]postPayload, 0, len(posts))
	for _, post := range posts {
		payload = append(payload, newPostPayload(post))
	}
	c.JSON(http.StatusOK, gin.H{"posts": payload})
}

func (h *httpHandler) handleGetPost(c *gin.Context) {
	post, err := h.materializer.GetPost(c.Request.Context(), groupParam(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "get_post_failed")
		return
	}
	c.JSON(http.StatusOK, newPostPayload(post))
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	comments, err := h.materializer.ListComments(c.Request.Context(), groupParam(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "list_comments_failed")
		return
	}
	payload := make([]commentPayload, 0, len(comments))
	for _, comment := range comments {
		payload = append(payload, newCommentPayload(comment))
	}
	c.JSON(http.StatusOK, gin.H{"comments": payload})
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profile, err := h.materializer.CurrentProfile(c.Request.Context(), groupParam(c), c.Param("publisher"))
	if err != nil {
		h.respondError(c, err, "get_profile_failed")
		return
	}
	c.JSON(http.StatusOK, newProfilePayload(profile))
}

func (h *httpHandler) handleListRelations(c *gin.Context) {
	relationType := activity.RelationType(strings.ToLower(strings.TrimSpace(c.DefaultQuery("type", string(activity.RelationFollow)))))
	if relationType != activity.RelationFollow && relationType != activity.RelationBlock {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_relation_type"})
		return
	}
	targets, err := h.materializer.Related(c.Request.Context(), groupParam(c), c.Param("publisher"), relationType)
	if err != nil {
		h.respondError(c, err, "list_relations_failed")
		return
	}
	if targets == nil {
		targets = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"type": relationType, "publishers": targets})
}

func (h *httpHandler) handleGetVote(c *gin.Context) {
	publisher := strings.TrimSpace(c.Query("publisher"))
	if publisher == "" {
		publisher = h.identity.Me()
	}
	if publisher == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_publisher"})
		return
	}
	vote, err := h.materializer.VoteState(c.Request.Context(), groupParam(c), c.Param("object"), publisher)
	if err != nil {
		h.respondError(c, err, "get_vote_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"objectId":  vote.ObjectID,
		"publisher": vote.Publisher,
		"liked":     vote.Liked,
		"disliked":  vote.Disliked,
	})
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	options, ok := listOptions(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_query"})
		return
	}
	filter, ok := notificationType(c.Query("type"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_notification_type"})
		return
	}
	notifications, err := h.materializer.ListNotifications(c.Request.Context(), groupParam(c), filter, options)
	if err != nil {
		h.respondError(c, err, "list_notifications_failed")
		return
	}
	payload := make([]notificationPayload, 0, len(notifications))
	for _, notification := range notifications {
		payload = append(payload, notificationPayload{
			ID:            notification.ID,
			Type:          notification.Type,
			ObjectID:      notification.ObjectID,
			FromPublisher: notification.FromPublisher,
			Status:        notification.Status,
			TimeStamp:     notification.TimeStamp,
		})
	}
	c.JSON(http.StatusOK, gin.H{"notifications": payload})
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	var request createPostRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	post, err := h.materializer.RecordLocalPost(c.Request.Context(), materialize.LocalPost{
		GroupID:       groupParam(c),
		ID:            request.ID,
		TrxID:         request.TrxID,
		Content:       request.Content,
		Images:        request.Images,
		ForwardPostID: request.ForwardPostID,
		TimeStamp:     request.TimeStamp,
	})
	if err != nil {
		h.respondError(c, err, "create_post_failed")
		return
	}
	h.logger.Debug("local post recorded",
		zap.String("subject", c.GetString(subjectContextKey)),
		zap.String("group_id", post.GroupID),
		zap.String("object_id", post.ID))
	c.JSON(http.StatusCreated, newPostPayload(post))
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	var request createCommentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	comment, err := h.materializer.RecordLocalComment(c.Request.Context(), materialize.LocalComment{
		GroupID:   groupParam(c),
		ID:        request.ID,
		TrxID:     request.TrxID,
		ReplyTo:   request.ReplyTo,
		Content:   request.Content,
		Images:    request.Images,
		TimeStamp: request.TimeStamp,
	})
	if err != nil {
		h.respondError(c, err, "create_comment_failed")
		return
	}
	c.JSON(http.StatusCreated, newCommentPayload(comment))
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	var request updateProfileRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	profile, err := h.materializer.RecordLocalProfile(c.Request.Context(), materialize.LocalProfile{
		GroupID:   groupParam(c),
		TrxID:     request.TrxID,
		Name:      request.Name,
		Avatar:    request.Avatar,
		Wallet:    request.Wallet,
		TimeStamp: request.TimeStamp,
	})
	if err != nil {
		h.respondError(c, err, "update_profile_failed")
		return
	}
	c.JSON(http.StatusCreated, newProfilePayload(profile))
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	var request markReadRequest
	if !bindOptionalJSON(c, &request) || request.TimeStamp < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	cursor, err := h.materializer.MarkRead(c.Request.Context(), groupParam(c), request.TimeStamp)
	if err != nil {
		h.respondError(c, err, "mark_read_failed")
		return
	}
	c.JSON(http.StatusOK, newStatusPayload(cursor))
}

func (h *httpHandler) handleMarkNotificationsRead(c *gin.Context) {
	var request markNotificationsReadRequest
	if !bindOptionalJSON(c, &request) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	filter, ok := notificationType(request.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_notification_type"})
		return
	}
	cursor, err := h.materializer.MarkNotificationsRead(c.Request.Context(), groupParam(c), filter)
	if err != nil {
		h.respondError(c, err, "mark_notifications_read_failed")
		return
	}
	c.JSON(http.StatusOK, newStatusPayload(cursor))
}

func (h *httpHandler) handleListMutes(c *gin.Context) {
	publishers, err := h.identity.ListMuted(c.Request.Context(), groupParam(c))
	if err != nil {
		h.respondError(c, err, "list_mutes_failed")
		return
	}
	if publishers == nil {
		publishers = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"publishers": publishers})
}

func (h *httpHandler) handleMute(c *gin.Context) {
	var request muteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.identity.Mute(c.Request.Context(), groupParam(c), request.Publisher); err != nil {
		h.respondError(c, err, "mute_failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUnmute(c *gin.Context) {
	if err := h.identity.Unmute(c.Request.Context(), groupParam(c), c.Param("publisher")); err != nil {
		h.respondError(c, err, "unmute_failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSync(c *gin.Context) {
	report, err := h.materializer.RunCycle(c.Request.Context(), groupParam(c))
	if err != nil {
		h.respondError(c, err, "sync_failed")
		return
	}
	c.JSON(http.StatusOK, newCyclePayload(report))
}

func (h *httpHandler) handleStream(c *gin.Context) {
	groupID := groupParam(c)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, groupID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventReady, gin.H{"source": realtimeSourceBackend, "groupId": groupID})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimePayload{
				Source:      realtimeSourceBackend,
				GroupID:     message.GroupID,
				ObjectIDs:   message.ObjectIDs,
				Applied:     message.Applied,
				Pending:     message.Pending,
				UnreadCount: message.UnreadCount,
				Timestamp:   message.Timestamp.Format(time.RFC3339Nano),
			})
			return true
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"ts": time.Now().UTC().Format(time.RFC3339)})
			return true
		}
	})
}
