package materialize

import (
	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"go.uber.org/zap"
)

var commentTables = []store.Table{store.TablePosts, store.TableComments, store.TableNotifications, store.TablePending}

// commentParent is the resolved target of a reply.
type commentParent struct {
	postID   string
	threadID string
}

func (s *Service) applyComments(tx *store.Tx, env applyEnv, items []activity.Comment) (kindResult, error) {
	var result kindResult
	items = firstByKey(items, func(item activity.Comment) string { return item.ID })

	replyKeys := make([]string, 0, len(items))
	commentKeys := make([]string, 0, len(items)*2)
	for _, item := range items {
		replyKeys = append(replyKeys, item.ReplyTo)
		commentKeys = append(commentKeys, item.ReplyTo, item.ID)
	}
	posts, err := loadPosts(tx, env.groupID, replyKeys)
	if err != nil {
		return result, err
	}
	comments, err := loadComments(tx, env.groupID, commentKeys)
	if err != nil {
		return result, err
	}

	dirtyComments := map[string]struct{}{}
	var inserted []activity.Comment
	for _, item := range items {
		trx := item.Transaction()
		if existing, ok := comments[item.ID]; ok {
			current := stored{status: existing.Status, publisher: existing.Publisher, trxID: existing.TrxID}
			if resolveExisting(current, trx.SenderPubkey, trx.TrxID) == reconcileConfirm {
				existing.Status = store.StatusSynced
				dirtyComments[item.ID] = struct{}{}
				result.confirm(item)
				continue
			}
			if collides(current, trx.SenderPubkey) {
				s.loggerOrDefault().Debug("comment id collision ignored",
					zap.String("group_id", env.groupID),
					zap.String("object_id", item.ID),
					zap.String("trx_id", trx.TrxID))
			}
			continue
		}

		parent, ok := resolveParent(item.ReplyTo, posts, comments)
		if !ok {
			result.block(item)
			continue
		}
		comment := store.Comment{
			GroupID:   env.groupID,
			ID:        item.ID,
			TrxID:     trx.TrxID,
			PostID:    parent.postID,
			ThreadID:  parent.threadID,
			ReplyTo:   item.ReplyTo,
			Publisher: trx.SenderPubkey,
			Content:   item.Content,
			Images:    item.Images,
			Status:    store.StatusSynced,
			TimeStamp: trx.TimeStamp.Int64(),
		}
		comments[item.ID] = &comment
		dirtyComments[item.ID] = struct{}{}
		inserted = append(inserted, item)
	}

	// Posts and thread roots of nested replies are not among the reply targets.
	var missingPosts, missingRoots []string
	for _, item := range inserted {
		comment := comments[item.ID]
		if _, ok := posts[comment.PostID]; !ok {
			missingPosts = append(missingPosts, comment.PostID)
		}
		if comment.ThreadID != "" {
			if _, ok := comments[comment.ThreadID]; !ok {
				missingRoots = append(missingRoots, comment.ThreadID)
			}
		}
	}
	if err := mergePosts(tx, env.groupID, missingPosts, posts); err != nil {
		return result, err
	}
	if err := mergeComments(tx, env.groupID, missingRoots, comments); err != nil {
		return result, err
	}

	dirtyPosts := map[string]struct{}{}
	notifications := newNotifier(env.groupID)
	for _, item := range inserted {
		trx := item.Transaction()
		comment := comments[item.ID]
		result.insert(item, item.ID)

		post, hasPost := posts[comment.PostID]
		if hasPost {
			incrementPostComments(post)
			dirtyPosts[post.ID] = struct{}{}
		}
		root, hasRoot := comments[comment.ThreadID]
		if comment.ThreadID != "" && hasRoot {
			incrementCommentComments(root)
			dirtyComments[root.ID] = struct{}{}
		}

		if s.identity.IsMe(trx.SenderPubkey) {
			continue
		}
		parentComment, repliesToComment := comments[item.ReplyTo]
		switch {
		case repliesToComment && s.identity.IsMe(parentComment.Publisher):
			notifications.add(store.NotificationCommentReply, item.ID, trx.TrxID, trx.SenderPubkey, trx.TimeStamp.Int64())
		case comment.ThreadID != "" && hasRoot && s.identity.IsMe(root.Publisher):
			notifications.add(store.NotificationCommentReply, item.ID, trx.TrxID, trx.SenderPubkey, trx.TimeStamp.Int64())
		case hasPost && item.ReplyTo == post.ID && s.identity.IsMe(post.Publisher):
			notifications.add(store.NotificationCommentPost, item.ID, trx.TrxID, trx.SenderPubkey, trx.TimeStamp.Int64())
		}
	}

	if err := tx.Comments().BulkPut(collect(comments, dirtyComments)); err != nil {
		return result, err
	}
	if err := tx.Posts().BulkPut(collect(posts, dirtyPosts)); err != nil {
		return result, err
	}
	added, err := notifications.flush(tx, s.idProvider)
	if err != nil {
		return result, err
	}
	result.notifications += added
	return result, nil
}

// resolveParent finds the post and thread of a reply target. Comments
// inserted earlier in the same batch are already in comments.
func resolveParent(replyTo string, posts map[string]*store.Post, comments map[string]*store.Comment) (commentParent, bool) {
	if post, ok := posts[replyTo]; ok {
		return commentParent{postID: post.ID}, true
	}
	if parent, ok := comments[replyTo]; ok {
		threadID := parent.ThreadID
		if threadID == "" {
			threadID = parent.ID
		}
		return commentParent{postID: parent.PostID, threadID: threadID}, true
	}
	return commentParent{}, false
}

func incrementPostComments(post *store.Post) {
	post.Summary.CommentCount++
	refreshPostHot(post)
}

func incrementCommentComments(comment *store.Comment) {
	comment.Summary.CommentCount++
	refreshCommentHot(comment)
}

func loadPosts(tx *store.Tx, groupID string, keys []string) (map[string]*store.Post, error) {
	posts := map[string]*store.Post{}
	return posts, mergePosts(tx, groupID, keys, posts)
}

func mergePosts(tx *store.Tx, groupID string, keys []string, into map[string]*store.Post) error {
	if len(keys) == 0 {
		return nil
	}
	rows, err := tx.Posts().BulkGet(groupID, keys)
	if err != nil {
		return err
	}
	for index := range rows {
		into[rows[index].ID] = &rows[index]
	}
	return nil
}

func loadComments(tx *store.Tx, groupID string, keys []string) (map[string]*store.Comment, error) {
	comments := map[string]*store.Comment{}
	return comments, mergeComments(tx, groupID, keys, comments)
}

func mergeComments(tx *store.Tx, groupID string, keys []string, into map[string]*store.Comment) error {
	if len(keys) == 0 {
		return nil
	}
	rows, err := tx.Comments().BulkGet(groupID, keys)
	if err != nil {
		return err
	}
	for index := range rows {
		into[rows[index].ID] = &rows[index]
	}
	return nil
}
