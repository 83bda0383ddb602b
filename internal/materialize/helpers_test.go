package materialize

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/database"
	"github.com/MarcoPoloResearchLab/feedsync/internal/fetcher"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testGroup = "group-1"

type stubIdentity struct {
	me    string
	muted map[string]struct{}
}

func (i *stubIdentity) Me() string { return i.me }

func (i *stubIdentity) IsMe(publisher string) bool { return i.me != "" && publisher == i.me }

func (i *stubIdentity) MutedPublishers(ctx context.Context, groupID string) (map[string]struct{}, error) {
	return i.muted, nil
}

type stubFetcher struct {
	mu      sync.Mutex
	queue   []activity.Transaction
	err     error
	options []fetcher.Options
}

func (f *stubFetcher) Fetch(ctx context.Context, groupID string, options fetcher.Options) ([]activity.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.options = append(f.options, options)
	if f.err != nil {
		return nil, f.err
	}
	items := f.queue
	f.queue = nil
	return items, nil
}

type testHarness struct {
	service  *Service
	store    *store.Store
	db       *gorm.DB
	fetcher  *stubFetcher
	identity *stubIdentity
}

func mustHarness(testContext *testing.T, me string, policy PendingPolicy) *testHarness {
	testContext.Helper()
	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "feedsync.db"), zap.NewNop())
	require.NoError(testContext, err)
	testContext.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	localStore, err := store.New(db)
	require.NoError(testContext, err)

	identity := &stubIdentity{me: me, muted: map[string]struct{}{}}
	source := &stubFetcher{}
	service, err := NewService(ServiceConfig{
		Store:         localStore,
		Identity:      identity,
		Fetcher:       source,
		Clock:         func() time.Time { return time.Unix(1000, 0) },
		IDProvider:    NewUUIDProvider(),
		PageSize:      50,
		PendingPolicy: policy,
	})
	require.NoError(testContext, err)
	return &testHarness{service: service, store: localStore, db: db, fetcher: source, identity: identity}
}

// cycle feeds items as the next fetched page and runs one cycle.
func (h *testHarness) cycle(testContext *testing.T, items ...activity.Transaction) CycleReport {
	testContext.Helper()
	h.fetcher.mu.Lock()
	h.fetcher.queue = items
	h.fetcher.mu.Unlock()
	report, err := h.service.RunCycle(context.Background(), testGroup)
	require.NoError(testContext, err)
	return report
}

func (h *testHarness) post(testContext *testing.T, id string) (store.Post, bool) {
	testContext.Helper()
	var post store.Post
	var found bool
	require.NoError(testContext, h.store.View(context.Background(), func(tx *store.Tx) error {
		var err error
		post, found, err = tx.Posts().Get(testGroup, id)
		return err
	}))
	return post, found
}

func (h *testHarness) mustPost(testContext *testing.T, id string) store.Post {
	testContext.Helper()
	post, found := h.post(testContext, id)
	require.True(testContext, found, "post %s not materialized", id)
	return post
}

func (h *testHarness) comment(testContext *testing.T, id string) (store.Comment, bool) {
	testContext.Helper()
	var comment store.Comment
	var found bool
	require.NoError(testContext, h.store.View(context.Background(), func(tx *store.Tx) error {
		var err error
		comment, found, err = tx.Comments().Get(testGroup, id)
		return err
	}))
	return comment, found
}

func (h *testHarness) mustComment(testContext *testing.T, id string) store.Comment {
	testContext.Helper()
	comment, found := h.comment(testContext, id)
	require.True(testContext, found, "comment %s not materialized", id)
	return comment
}

func (h *testHarness) pending(testContext *testing.T) []store.PendingTransaction {
	testContext.Helper()
	var rows []store.PendingTransaction
	require.NoError(testContext, h.store.View(context.Background(), func(tx *store.Tx) error {
		var err error
		rows, err = tx.Pending().ListByGroup(testGroup)
		return err
	}))
	return rows
}

func (h *testHarness) notifications(testContext *testing.T) []store.Notification {
	testContext.Helper()
	notifications, err := h.service.ListNotifications(context.Background(), testGroup, "", store.ListOptions{Limit: 100})
	require.NoError(testContext, err)
	return notifications
}

func (h *testHarness) status(testContext *testing.T) store.StatusCursor {
	testContext.Helper()
	cursor, err := h.service.Status(context.Background(), testGroup)
	require.NoError(testContext, err)
	return cursor
}

func trx(trxID, publisher string, timeStamp int64, data string) activity.Transaction {
	return activity.Transaction{
		TrxID:        trxID,
		GroupID:      testGroup,
		SenderPubkey: publisher,
		TimeStamp:    activity.Timestamp(timeStamp),
		Data:         []byte(data),
	}
}

func postTrx(trxID, id, publisher string, timeStamp int64) activity.Transaction {
	return trx(trxID, publisher, timeStamp,
		fmt.Sprintf(`{"type":"Create","object":{"type":"Note","id":%q,"content":"post %s"}}`, id, id))
}

func forwardTrx(trxID, id, target, publisher string, timeStamp int64) activity.Transaction {
	return trx(trxID, publisher, timeStamp,
		fmt.Sprintf(`{"type":"Create","object":{"type":"Note","id":%q,"content":"fwd","forward":{"type":"Note","id":%q}}}`, id, target))
}

func deleteTrx(trxID, id, publisher string, timeStamp int64) activity.Transaction {
	return trx(trxID, publisher, timeStamp,
		fmt.Sprintf(`{"type":"Delete","object":{"type":"Note","id":%q}}`, id))
}

func commentTrx(trxID, id, replyTo, publisher string, timeStamp int64) activity.Transaction {
	return trx(trxID, publisher, timeStamp,
		fmt.Sprintf(`{"type":"Create","object":{"type":"Note","id":%q,"content":"reply","inreplyto":{"type":"Note","id":%q}}}`, id, replyTo))
}

func voteTrx(trxID, objectID, voteType, publisher string, timeStamp int64) activity.Transaction {
	return trx(trxID, publisher, timeStamp,
		fmt.Sprintf(`{"type":%q,"object":{"type":"Note","id":%q}}`, voteType, objectID))
}

func undoTrx(trxID, objectID, voteType, publisher string, timeStamp int64) activity.Transaction {
	return trx(trxID, publisher, timeStamp,
		fmt.Sprintf(`{"type":"Undo","object":{"type":%q,"object":{"type":"Note","id":%q}}}`, voteType, objectID))
}

func relationTrx(trxID, relationType, to, publisher string, timeStamp int64) activity.Transaction {
	return trx(trxID, publisher, timeStamp,
		fmt.Sprintf(`{"type":%q,"object":{"type":"Person","id":%q}}`, relationType, to))
}

func undoRelationTrx(trxID, relationType, to, publisher string, timeStamp int64) activity.Transaction {
	return trx(trxID, publisher, timeStamp,
		fmt.Sprintf(`{"type":"Undo","object":{"type":%q,"object":{"type":"Person","id":%q}}}`, relationType, to))
}

func profileTrx(trxID, name, subject, publisher string, timeStamp int64) activity.Transaction {
	return trx(trxID, publisher, timeStamp,
		fmt.Sprintf(`{"type":"Create","object":{"type":"Profile","name":%q,"describes":{"type":"Person","id":%q}}}`, name, subject))
}
