package materialize

import (
	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
)

var counterTables = []store.Table{
	store.TablePosts,
	store.TableComments,
	store.TableCounters,
	store.TableVoteStates,
	store.TableNotifications,
	store.TablePending,
}

type voteKey struct {
	objectID  string
	publisher string
}

func (s *Service) applyCounters(tx *store.Tx, env applyEnv, items []activity.Counter) (kindResult, error) {
	var result kindResult
	items = firstByKey(items, func(item activity.Counter) string { return item.Transaction().TrxID })

	trxIDs := make([]string, 0, len(items))
	objectIDs := make([]string, 0, len(items))
	for _, item := range items {
		trxIDs = append(trxIDs, item.Transaction().TrxID)
		objectIDs = append(objectIDs, item.ObjectID)
	}
	applied, err := tx.Counters().BulkGet(env.groupID, trxIDs)
	if err != nil {
		return result, err
	}
	replayed := make(map[string]struct{}, len(applied))
	for _, counter := range applied {
		replayed[counter.TrxID] = struct{}{}
	}
	posts, err := loadPosts(tx, env.groupID, objectIDs)
	if err != nil {
		return result, err
	}
	comments, err := loadComments(tx, env.groupID, objectIDs)
	if err != nil {
		return result, err
	}

	votes := map[voteKey]*store.VoteState{}
	dirtyPosts := map[string]struct{}{}
	dirtyComments := map[string]struct{}{}
	var counters []store.Counter
	notifications := newNotifier(env.groupID)
	for _, item := range items {
		trx := item.Transaction()
		if _, ok := replayed[trx.TrxID]; ok {
			continue
		}
		post, isPost := posts[item.ObjectID]
		comment, isComment := comments[item.ObjectID]
		if !isPost && !isComment {
			result.block(item)
			continue
		}

		vote, err := s.voteState(tx, env.groupID, votes, voteKey{objectID: item.ObjectID, publisher: trx.SenderPubkey})
		if err != nil {
			return result, err
		}
		likeDelta, dislikeDelta := applyVote(vote, item.Type, trx.TimeStamp.Int64())
		objectType := store.ObjectTypePost
		var author string
		if isPost {
			adjust(&post.Summary.LikeCount, likeDelta)
			adjust(&post.Summary.DislikeCount, dislikeDelta)
			refreshPostHot(post)
			dirtyPosts[post.ID] = struct{}{}
			author = post.Publisher
		} else {
			objectType = store.ObjectTypeComment
			adjust(&comment.Summary.LikeCount, likeDelta)
			adjust(&comment.Summary.DislikeCount, dislikeDelta)
			refreshCommentHot(comment)
			dirtyComments[comment.ID] = struct{}{}
			author = comment.Publisher
		}

		counters = append(counters, store.Counter{
			GroupID:    env.groupID,
			TrxID:      trx.TrxID,
			ObjectID:   item.ObjectID,
			ObjectType: objectType,
			Type:       item.Type,
			Publisher:  trx.SenderPubkey,
			TimeStamp:  trx.TimeStamp.Int64(),
		})
		replayed[trx.TrxID] = struct{}{}
		result.insert(item, "")

		if likeDelta > 0 && s.identity.IsMe(author) && !s.identity.IsMe(trx.SenderPubkey) {
			notificationType := store.NotificationObjectLike
			if objectType == store.ObjectTypeComment {
				notificationType = store.NotificationCommentLike
			}
			notifications.add(notificationType, item.ObjectID, trx.TrxID, trx.SenderPubkey, trx.TimeStamp.Int64())
		}
	}

	if _, err := tx.Counters().BulkAdd(counters); err != nil {
		return result, err
	}
	if err := tx.Posts().BulkPut(collect(posts, dirtyPosts)); err != nil {
		return result, err
	}
	if err := tx.Comments().BulkPut(collect(comments, dirtyComments)); err != nil {
		return result, err
	}
	states := make([]store.VoteState, 0, len(votes))
	for _, vote := range votes {
		states = append(states, *vote)
	}
	if err := tx.VoteStates().Put(states); err != nil {
		return result, err
	}
	added, err := notifications.flush(tx, s.idProvider)
	if err != nil {
		return result, err
	}
	result.notifications += added
	return result, nil
}

func (s *Service) voteState(tx *store.Tx, groupID string, cache map[voteKey]*store.VoteState, key voteKey) (*store.VoteState, error) {
	if vote, ok := cache[key]; ok {
		return vote, nil
	}
	vote, err := tx.VoteStates().Get(groupID, key.objectID, key.publisher)
	if err != nil {
		return nil, err
	}
	cache[key] = &vote
	return &vote, nil
}

// applyVote flips the publisher's flag for counterType and returns the
// like and dislike deltas. Only a flag transition moves a count, so a repeated
// vote or an undo without a prior vote leaves the summary untouched.
func applyVote(vote *store.VoteState, counterType activity.CounterType, timeStamp int64) (int64, int64) {
	var likeDelta, dislikeDelta int64
	switch counterType {
	case activity.CounterLike:
		if !vote.Liked {
			vote.Liked = true
			likeDelta = 1
		}
	case activity.CounterDislike:
		if !vote.Disliked {
			vote.Disliked = true
			dislikeDelta = 1
		}
	case activity.CounterUndoLike:
		if vote.Liked {
			vote.Liked = false
			likeDelta = -1
		}
	case activity.CounterUndoDislike:
		if vote.Disliked {
			vote.Disliked = false
			dislikeDelta = -1
		}
	}
	if timeStamp > vote.TimeStamp {
		vote.TimeStamp = timeStamp
	}
	return likeDelta, dislikeDelta
}
