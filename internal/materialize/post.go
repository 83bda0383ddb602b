package materialize

import (
	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"go.uber.org/zap"
)

var postTables = []store.Table{store.TablePosts, store.TableNotifications, store.TablePending}

func (s *Service) applyPosts(tx *store.Tx, env applyEnv, items []activity.Post) (kindResult, error) {
	var result kindResult
	items = firstByKey(items, func(item activity.Post) string { return item.ID })

	keys := make([]string, 0, len(items)*2)
	for _, item := range items {
		keys = append(keys, item.ID, item.ForwardPostID)
	}
	rows, err := tx.Posts().BulkGet(env.groupID, keys)
	if err != nil {
		return result, err
	}
	posts := make(map[string]*store.Post, len(rows))
	for index := range rows {
		posts[rows[index].ID] = &rows[index]
	}

	dirty := map[string]struct{}{}
	var inserted []activity.Post
	for _, item := range items {
		trx := item.Transaction()
		if existing, ok := posts[item.ID]; ok {
			current := stored{status: existing.Status, publisher: existing.Publisher, trxID: existing.TrxID}
			if resolveExisting(current, trx.SenderPubkey, trx.TrxID) == reconcileConfirm {
				existing.Status = store.StatusSynced
				dirty[item.ID] = struct{}{}
				result.confirm(item)
				continue
			}
			if collides(current, trx.SenderPubkey) {
				s.loggerOrDefault().Debug("post id collision ignored",
					zap.String("group_id", env.groupID),
					zap.String("object_id", item.ID),
					zap.String("trx_id", trx.TrxID))
			}
			continue
		}

		post := store.Post{
			GroupID:       env.groupID,
			ID:            item.ID,
			TrxID:         trx.TrxID,
			Publisher:     trx.SenderPubkey,
			Content:       item.Content,
			Images:        item.Images,
			ForwardPostID: item.ForwardPostID,
			Status:        store.StatusSynced,
			TimeStamp:     trx.TimeStamp.Int64(),
		}
		posts[item.ID] = &post
		dirty[item.ID] = struct{}{}
		inserted = append(inserted, item)
	}

	notifications := newNotifier(env.groupID)
	for _, item := range inserted {
		trx := item.Transaction()
		result.insert(item, item.ID)
		if trx.TimeStamp.Int64() > result.latestPostTimeStamp {
			result.latestPostTimeStamp = trx.TimeStamp.Int64()
		}
		if trx.TimeStamp.Int64() > env.readTimeStamp && !env.isMuted(trx.SenderPubkey) {
			result.unreadDelta++
		}
		if item.ForwardPostID == "" || item.ForwardPostID == item.ID {
			continue
		}
		target, ok := posts[item.ForwardPostID]
		if !ok {
			s.loggerOrDefault().Debug("forward target absent, count skipped",
				zap.String("group_id", env.groupID),
				zap.String("object_id", item.ForwardPostID),
				zap.String("trx_id", trx.TrxID))
			continue
		}
		target.Summary.ForwardCount++
		dirty[target.ID] = struct{}{}
		if s.identity.IsMe(target.Publisher) && !s.identity.IsMe(trx.SenderPubkey) {
			notifications.add(store.NotificationPostForward, item.ID, trx.TrxID, trx.SenderPubkey, trx.TimeStamp.Int64())
		}
	}

	if err := tx.Posts().BulkPut(collect(posts, dirty)); err != nil {
		return result, err
	}
	added, err := notifications.flush(tx, s.idProvider)
	if err != nil {
		return result, err
	}
	result.notifications += added
	return result, nil
}

var postDeleteTables = []store.Table{store.TablePosts, store.TablePending}

func (s *Service) applyPostDeletes(tx *store.Tx, env applyEnv, items []activity.PostDelete) (kindResult, error) {
	var result kindResult
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.PostID)
	}
	rows, err := tx.Posts().BulkGet(env.groupID, keys)
	if err != nil {
		return result, err
	}
	posts := make(map[string]*store.Post, len(rows))
	for index := range rows {
		posts[rows[index].ID] = &rows[index]
	}

	dirty := map[string]struct{}{}
	for _, item := range items {
		trx := item.Transaction()
		target, ok := posts[item.PostID]
		if !ok {
			result.block(item)
			continue
		}
		if target.Publisher != trx.SenderPubkey {
			s.loggerOrDefault().Debug("foreign post delete ignored",
				zap.String("group_id", env.groupID),
				zap.String("object_id", item.PostID),
				zap.String("trx_id", trx.TrxID))
			continue
		}
		if target.Deleted {
			continue
		}
		target.Deleted = true
		dirty[target.ID] = struct{}{}
		result.confirm(item)
	}

	if err := tx.Posts().BulkPut(collect(posts, dirty)); err != nil {
		return result, err
	}
	return result, nil
}
