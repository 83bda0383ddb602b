package materialize

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"go.uber.org/zap"
)

var (
	errObjectExists   = errors.New("object already exists")
	errParentNotFound = errors.New("reply target is not materialized")
	errEmptyContent   = errors.New("content or images required")
)

// LocalPost is a post the local user just submitted to the node.
type LocalPost struct {
	GroupID       string
	ID            string
	TrxID         string
	Content       string
	Images        []activity.Image
	ForwardPostID string
	TimeStamp     int64
}

// LocalComment is a comment the local user just submitted to the node.
type LocalComment struct {
	GroupID   string
	ID        string
	TrxID     string
	ReplyTo   string
	Content   string
	Images    []activity.Image
	TimeStamp int64
}

// LocalProfile is a profile revision the local user just submitted to the node.
type LocalProfile struct {
	GroupID   string
	TrxID     string
	Name      string
	Avatar    string
	Wallet    []activity.Wallet
	TimeStamp int64
}

type localIdentity struct {
	groupID   string
	trxID     string
	publisher string
}

func (s *Service) validateLocal(groupID, trxID string) (localIdentity, error) {
	group, err := activity.NewGroupID(groupID)
	if err != nil {
		return localIdentity{}, newServiceError(opRecordLocal, "invalid_group", err)
	}
	validTrx, err := activity.ValidateTrxID(trxID)
	if err != nil {
		return localIdentity{}, newServiceError(opRecordLocal, "invalid_trx", err)
	}
	publisher := s.identity.Me()
	if publisher == "" {
		return localIdentity{}, newServiceError(opRecordLocal, "missing_publisher", errMissingPublisher)
	}
	return localIdentity{groupID: group.String(), trxID: validTrx, publisher: publisher}, nil
}

func (s *Service) objectID(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		id, err := s.idProvider.NewID()
		if err != nil {
			return "", newServiceError(opRecordLocal, "id_generation_failed", err)
		}
		return id, nil
	}
	id, err := activity.NewObjectID(raw)
	if err != nil {
		return "", newServiceError(opRecordLocal, "invalid_object", err)
	}
	return id.String(), nil
}

func (s *Service) localTimeStamp(timeStamp int64) int64 {
	if timeStamp > 0 {
		return timeStamp
	}
	return s.nowNanos()
}

// RecordLocalPost inserts a syncing post ahead of its confirming transaction.
// A forward counts against its target immediately.
func (s *Service) RecordLocalPost(ctx context.Context, input LocalPost) (store.Post, error) {
	local, err := s.validateLocal(input.GroupID, input.TrxID)
	if err != nil {
		return store.Post{}, err
	}
	postID, err := s.objectID(input.ID)
	if err != nil {
		return store.Post{}, err
	}
	if strings.TrimSpace(input.Content) == "" && len(input.Images) == 0 {
		return store.Post{}, newServiceError(opRecordLocal, "empty_content", errEmptyContent)
	}

	lock := s.groupLock(local.groupID)
	lock.Lock()
	defer lock.Unlock()

	post := store.Post{
		GroupID:       local.groupID,
		ID:            postID,
		TrxID:         local.trxID,
		Publisher:     local.publisher,
		Content:       input.Content,
		Images:        input.Images,
		ForwardPostID: strings.TrimSpace(input.ForwardPostID),
		Status:        store.StatusSyncing,
		TimeStamp:     s.localTimeStamp(input.TimeStamp),
	}
	err = s.store.Transaction(ctx, []store.Table{store.TablePosts}, func(tx *store.Tx) error {
		if _, found, err := tx.Posts().Get(local.groupID, postID); err != nil {
			return err
		} else if found {
			return errObjectExists
		}
		rows := []store.Post{post}
		if post.ForwardPostID != "" && post.ForwardPostID != post.ID {
			target, found, err := tx.Posts().Get(local.groupID, post.ForwardPostID)
			if err != nil {
				return err
			}
			if found {
				target.Summary.ForwardCount++
				rows = append(rows, target)
			}
		}
		return tx.Posts().BulkPut(rows)
	})
	if err != nil {
		return store.Post{}, s.localError(err, local, postID)
	}
	return post, nil
}

// RecordLocalComment inserts a syncing comment and counts it against its
// post and thread immediately. The reply target must already be local.
func (s *Service) RecordLocalComment(ctx context.Context, input LocalComment) (store.Comment, error) {
	local, err := s.validateLocal(input.GroupID, input.TrxID)
	if err != nil {
		return store.Comment{}, err
	}
	commentID, err := s.objectID(input.ID)
	if err != nil {
		return store.Comment{}, err
	}
	replyTo, err := activity.NewObjectID(input.ReplyTo)
	if err != nil {
		return store.Comment{}, newServiceError(opRecordLocal, "invalid_reply_to", err)
	}
	if strings.TrimSpace(input.Content) == "" && len(input.Images) == 0 {
		return store.Comment{}, newServiceError(opRecordLocal, "empty_content", errEmptyContent)
	}

	lock := s.groupLock(local.groupID)
	lock.Lock()
	defer lock.Unlock()

	var comment store.Comment
	err = s.store.Transaction(ctx, []store.Table{store.TablePosts, store.TableComments}, func(tx *store.Tx) error {
		comments, err := loadComments(tx, local.groupID, []string{commentID, replyTo.String()})
		if err != nil {
			return err
		}
		if _, found := comments[commentID]; found {
			return errObjectExists
		}
		posts, err := loadPosts(tx, local.groupID, []string{replyTo.String()})
		if err != nil {
			return err
		}
		parent, ok := resolveParent(replyTo.String(), posts, comments)
		if !ok {
			return errParentNotFound
		}
		if err := mergePosts(tx, local.groupID, []string{parent.postID}, posts); err != nil {
			return err
		}
		if err := mergeComments(tx, local.groupID, []string{parent.threadID}, comments); err != nil {
			return err
		}

		comment = store.Comment{
			GroupID:   local.groupID,
			ID:        commentID,
			TrxID:     local.trxID,
			PostID:    parent.postID,
			ThreadID:  parent.threadID,
			ReplyTo:   replyTo.String(),
			Publisher: local.publisher,
			Content:   input.Content,
			Images:    input.Images,
			Status:    store.StatusSyncing,
			TimeStamp: s.localTimeStamp(input.TimeStamp),
		}
		updatedComments := []store.Comment{comment}
		if root, ok := comments[parent.threadID]; ok && parent.threadID != "" {
			incrementCommentComments(root)
			updatedComments = append(updatedComments, *root)
		}
		if err := tx.Comments().BulkPut(updatedComments); err != nil {
			return err
		}
		if post, ok := posts[parent.postID]; ok {
			incrementPostComments(post)
			return tx.Posts().BulkPut([]store.Post{*post})
		}
		return nil
	})
	if err != nil {
		return store.Comment{}, s.localError(err, local, commentID)
	}
	return comment, nil
}

// RecordLocalProfile inserts a syncing profile revision.
func (s *Service) RecordLocalProfile(ctx context.Context, input LocalProfile) (store.Profile, error) {
	local, err := s.validateLocal(input.GroupID, input.TrxID)
	if err != nil {
		return store.Profile{}, err
	}

	profile := store.Profile{
		GroupID:   local.groupID,
		TrxID:     local.trxID,
		Publisher: local.publisher,
		Name:      strings.TrimSpace(input.Name),
		Avatar:    input.Avatar,
		Wallet:    input.Wallet,
		Status:    store.StatusSyncing,
		TimeStamp: s.localTimeStamp(input.TimeStamp),
	}
	err = s.store.Transaction(ctx, []store.Table{store.TableProfiles}, func(tx *store.Tx) error {
		added, err := tx.Profiles().BulkAdd([]store.Profile{profile})
		if err != nil {
			return err
		}
		if added == 0 {
			return errObjectExists
		}
		return nil
	})
	if err != nil {
		return store.Profile{}, s.localError(err, local, local.trxID)
	}
	return profile, nil
}

func (s *Service) localError(err error, local localIdentity, objectID string) error {
	switch {
	case errors.Is(err, errObjectExists):
		return newServiceError(opRecordLocal, "object_exists", err)
	case errors.Is(err, errParentNotFound):
		return newServiceError(opRecordLocal, "parent_not_found", err)
	}
	s.logError(opRecordLocal, "transaction_failed", err,
		zap.String("group_id", local.groupID),
		zap.String("trx_id", local.trxID),
		zap.String("object_id", objectID))
	return newServiceError(opRecordLocal, "transaction_failed", err)
}
