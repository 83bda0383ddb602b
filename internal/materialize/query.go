package materialize

import (
	"context"

	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"go.uber.org/zap"
)

func (s *Service) view(ctx context.Context, name, groupID string, fn func(tx *store.Tx) error) error {
	if err := s.store.View(ctx, fn); err != nil {
		s.logError(opQuery, name+"_failed", err, zap.String("group_id", groupID))
		return newServiceError(opQuery, name+"_failed", err)
	}
	return nil
}

// ListPosts returns non-deleted posts of a group, newest first.
func (s *Service) ListPosts(ctx context.Context, groupID string, options store.ListOptions) ([]store.Post, error) {
	var posts []store.Post
	err := s.view(ctx, "list_posts", groupID, func(tx *store.Tx) error {
		var err error
		posts, err = tx.Posts().List(groupID, options)
		return err
	})
	return posts, err
}

// GetPost returns one post, deleted or not.
func (s *Service) GetPost(ctx context.Context, groupID, postID string) (store.Post, error) {
	var post store.Post
	var found bool
	err := s.view(ctx, "get_post", groupID, func(tx *store.Tx) error {
		var err error
		post, found, err = tx.Posts().Get(groupID, postID)
		return err
	})
	if err != nil {
		return store.Post{}, err
	}
	if !found {
		return store.Post{}, newServiceError(opQuery, "post_not_found", ErrNotFound)
	}
	return post, nil
}

// ListComments returns the comments under a post, oldest first.
func (s *Service) ListComments(ctx context.Context, groupID, postID string) ([]store.Comment, error) {
	var comments []store.Comment
	err := s.view(ctx, "list_comments", groupID, func(tx *store.Tx) error {
		var err error
		comments, err = tx.Comments().ListByPost(groupID, postID)
		return err
	})
	return comments, err
}

// CurrentProfile returns the latest synced profile revision of a publisher.
func (s *Service) CurrentProfile(ctx context.Context, groupID, publisher string) (store.Profile, error) {
	var profile store.Profile
	var found bool
	err := s.view(ctx, "current_profile", groupID, func(tx *store.Tx) error {
		var err error
		profile, found, err = tx.Profiles().Current(groupID, publisher)
		return err
	})
	if err != nil {
		return store.Profile{}, err
	}
	if !found {
		return store.Profile{}, newServiceError(opQuery, "profile_not_found", ErrNotFound)
	}
	return profile, nil
}

// VoteState answers whether publisher currently likes or dislikes an object.
func (s *Service) VoteState(ctx context.Context, groupID, objectID, publisher string) (store.VoteState, error) {
	var vote store.VoteState
	err := s.view(ctx, "vote_state", groupID, func(tx *store.Tx) error {
		var err error
		vote, err = tx.VoteStates().Get(groupID, objectID, publisher)
		return err
	})
	return vote, err
}

// Related returns the publishers that publisher currently follows or blocks.
func (s *Service) Related(ctx context.Context, groupID, publisher string, relationType activity.RelationType) ([]string, error) {
	var targets []string
	err := s.view(ctx, "related", groupID, func(tx *store.Tx) error {
		var err error
		targets, err = tx.RelationSummaries().ListActive(groupID, publisher, relationType.Base())
		return err
	})
	return targets, err
}

// ListNotifications returns notifications of a group, newest first. An
// empty type lists every type.
func (s *Service) ListNotifications(ctx context.Context, groupID string, notificationType store.NotificationType, options store.ListOptions) ([]store.Notification, error) {
	var notifications []store.Notification
	err := s.view(ctx, "list_notifications", groupID, func(tx *store.Tx) error {
		var err error
		notifications, err = tx.Notifications().List(groupID, notificationType, options)
		return err
	})
	return notifications, err
}

// Status returns the cursor of a group, or its default when none is stored.
func (s *Service) Status(ctx context.Context, groupID string) (store.StatusCursor, error) {
	var cursor store.StatusCursor
	err := s.view(ctx, "status", groupID, func(tx *store.Tx) error {
		var err error
		cursor, err = tx.Cursors().Get(groupID)
		return err
	})
	return cursor, err
}

// MarkRead moves the read marker and resets the unread post count. A zero
// timestamp marks everything up to now as read.
func (s *Service) MarkRead(ctx context.Context, groupID string, readTimeStamp int64) (store.StatusCursor, error) {
	if readTimeStamp <= 0 {
		readTimeStamp = s.nowNanos()
	}
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	var zero int64
	var cursor store.StatusCursor
	err := s.store.Transaction(ctx, []store.Table{store.TableStatusCursors}, func(tx *store.Tx) error {
		var err error
		cursor, err = tx.Cursors().Update(groupID, store.CursorPatch{
			LatestReadTimeStamp: &readTimeStamp,
			UnreadCount:         &zero,
		}, s.nowSeconds())
		return err
	})
	if err != nil {
		s.logError(opMarkRead, "transaction_failed", err, zap.String("group_id", groupID))
		return store.StatusCursor{}, newServiceError(opMarkRead, "transaction_failed", err)
	}
	return cursor, nil
}

// MarkNotificationsRead marks notifications of one type, or all when empty,
// as read and refreshes the cursor's unread map.
func (s *Service) MarkNotificationsRead(ctx context.Context, groupID string, notificationType store.NotificationType) (store.StatusCursor, error) {
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	var cursor store.StatusCursor
	err := s.store.Transaction(ctx, []store.Table{store.TableNotifications, store.TableStatusCursors}, func(tx *store.Tx) error {
		if _, err := tx.Notifications().MarkRead(groupID, notificationType); err != nil {
			return err
		}
		counts, err := tx.Notifications().CountUnreadByType(groupID)
		if err != nil {
			return err
		}
		cursor, err = tx.Cursors().Update(groupID, store.CursorPatch{NotificationUnreadCountMap: counts}, s.nowSeconds())
		return err
	})
	if err != nil {
		s.logError(opMarkRead, "notifications_failed", err, zap.String("group_id", groupID))
		return store.StatusCursor{}, newServiceError(opMarkRead, "notifications_failed", err)
	}
	return cursor, nil
}
