package materialize

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestVotesAdjustCountsAndHotScore(testContext *testing.T) {
	harness := mustHarness(testContext, "alice", PendingPolicy{})
	harness.cycle(testContext, postTrx("t0", "p1", "alice", 10))

	var votes []activity.Transaction
	for index, voter := range []string{"v1", "v2", "v3", "v4", "v5"} {
		votes = append(votes, voteTrx("like-"+voter, "p1", "Like", voter, int64(100+index)))
	}
	votes = append(votes,
		undoTrx("undo-v1", "p1", "Like", "v1", 200),
		undoTrx("undo-v2", "p1", "Like", "v2", 201),
		voteTrx("dislike-v6", "p1", "Dislike", "v6", 202),
	)
	report := harness.cycle(testContext, votes...)
	require.Equal(testContext, 8, report.Applied[activity.KindCounter])

	post := harness.mustPost(testContext, "p1")
	require.Equal(testContext, int64(3), post.Summary.LikeCount)
	require.Equal(testContext, int64(1), post.Summary.DislikeCount)
	require.Equal(testContext, int64(20), post.Summary.HotCount)

	harness.cycle(testContext, commentTrx("t-c", "c1", "p1", "bob", 300))
	require.Equal(testContext, int64(24), harness.mustPost(testContext, "p1").Summary.HotCount)

	harness.cycle(testContext,
		undoTrx("undo-d1", "p1", "Dislike", "v6", 400),
		undoTrx("undo-d2", "p1", "Dislike", "v7", 401),
	)
	require.Equal(testContext, int64(0), harness.mustPost(testContext, "p1").Summary.DislikeCount)

	vote, err := harness.service.VoteState(context.Background(), testGroup, "p1", "v1")
	require.NoError(testContext, err)
	require.False(testContext, vote.Liked)
	vote, err = harness.service.VoteState(context.Background(), testGroup, "p1", "v3")
	require.NoError(testContext, err)
	require.True(testContext, vote.Liked)
	vote, err = harness.service.VoteState(context.Background(), testGroup, "p1", "nobody")
	require.NoError(testContext, err)
	require.False(testContext, vote.Liked)
	require.False(testContext, vote.Disliked)
}

func TestVotesOnlyMoveCountsOnFlagChanges(testContext *testing.T) {
	harness := mustHarness(testContext, "dave", PendingPolicy{})
	harness.cycle(testContext, postTrx("t0", "p1", "dave", 10))

	report := harness.cycle(testContext,
		voteTrx("like-alice", "p1", "Like", "alice", 100),
		voteTrx("like-carol", "p1", "Like", "carol", 101),
		undoTrx("undo-bob-1", "p1", "Like", "bob", 102),
		undoTrx("undo-bob-2", "p1", "Like", "bob", 103),
		voteTrx("like-alice-again", "p1", "Like", "alice", 104),
	)
	require.Equal(testContext, 5, report.Applied[activity.KindCounter])

	post := harness.mustPost(testContext, "p1")
	require.Equal(testContext, int64(2), post.Summary.LikeCount)
	require.Equal(testContext, int64(20), post.Summary.HotCount)
	require.Len(testContext, harness.notifications(testContext), 2)

	vote, err := harness.service.VoteState(context.Background(), testGroup, "p1", "bob")
	require.NoError(testContext, err)
	require.False(testContext, vote.Liked)

	report = harness.cycle(testContext,
		undoTrx("undo-bob-1", "p1", "Like", "bob", 102),
		voteTrx("dislike-alice", "p1", "Dislike", "alice", 105),
		undoTrx("undo-dislike-carol", "p1", "Dislike", "carol", 106),
	)
	require.Equal(testContext, 2, report.Applied[activity.KindCounter])
	post = harness.mustPost(testContext, "p1")
	require.Equal(testContext, int64(2), post.Summary.LikeCount)
	require.Equal(testContext, int64(1), post.Summary.DislikeCount)
	require.Equal(testContext, int64(10), post.Summary.HotCount)
}

func TestVoteOnCommentAndPendingTarget(testContext *testing.T) {
	harness := mustHarness(testContext, "alice", PendingPolicy{})

	report := harness.cycle(testContext, voteTrx("t1", "later", "Like", "bob", 100))
	require.Equal(testContext, 1, report.Blocked)
	pending := harness.pending(testContext)
	require.Len(testContext, pending, 1)
	require.Equal(testContext, activity.KindCounter, pending[0].Kind)

	harness.cycle(testContext,
		postTrx("t2", "later", "carol", 50),
		commentTrx("t3", "c1", "later", "alice", 60),
		voteTrx("t4", "c1", "Like", "bob", 200),
	)
	require.Empty(testContext, harness.pending(testContext))
	require.Equal(testContext, int64(1), harness.mustPost(testContext, "later").Summary.LikeCount)

	comment := harness.mustComment(testContext, "c1")
	require.Equal(testContext, int64(1), comment.Summary.LikeCount)
	require.Equal(testContext, int64(10), comment.Summary.HotCount)

	notifications, err := harness.service.ListNotifications(context.Background(), testGroup, store.NotificationCommentLike, store.ListOptions{})
	require.NoError(testContext, err)
	require.Len(testContext, notifications, 1)
	require.Equal(testContext, "c1", notifications[0].ObjectID)
}

func TestLikeNotificationsSkipSelfAndDislikes(testContext *testing.T) {
	harness := mustHarness(testContext, "alice", PendingPolicy{})
	harness.cycle(testContext, postTrx("t1", "p1", "alice", 100))

	report := harness.cycle(testContext,
		voteTrx("t2", "p1", "Like", "bob", 200),
		voteTrx("t3", "p1", "Like", "alice", 201),
		voteTrx("t4", "p1", "Dislike", "carol", 202),
	)
	require.Equal(testContext, int64(1), report.Notifications)

	notifications := harness.notifications(testContext)
	require.Len(testContext, notifications, 1)
	require.Equal(testContext, store.NotificationObjectLike, notifications[0].Type)
	require.Equal(testContext, "p1", notifications[0].ObjectID)
	require.Equal(testContext, "t2", notifications[0].SourceTrxID)
}

func TestForwardsCountAgainstTarget(testContext *testing.T) {
	harness := mustHarness(testContext, "alice", PendingPolicy{})

	harness.cycle(testContext,
		postTrx("t1", "p1", "alice", 100),
		forwardTrx("t2", "p2", "p1", "bob", 200),
		forwardTrx("t3", "p3", "p1", "carol", 300),
		forwardTrx("t4", "p4", "absent", "dave", 400),
	)
	require.Equal(testContext, int64(2), harness.mustPost(testContext, "p1").Summary.ForwardCount)

	forwarded := harness.mustPost(testContext, "p4")
	require.Equal(testContext, "absent", forwarded.ForwardPostID)

	harness.cycle(testContext, forwardTrx("t2", "p2", "p1", "bob", 200))
	require.Equal(testContext, int64(2), harness.mustPost(testContext, "p1").Summary.ForwardCount)

	notifications, err := harness.service.ListNotifications(context.Background(), testGroup, store.NotificationPostForward, store.ListOptions{})
	require.NoError(testContext, err)
	require.Len(testContext, notifications, 2)
	require.Equal(testContext, "p3", notifications[0].ObjectID)
	require.Equal(testContext, "p2", notifications[1].ObjectID)
}

func TestPostDeleteHonorsPublisher(testContext *testing.T) {
	harness := mustHarness(testContext, "alice", PendingPolicy{})
	harness.cycle(testContext, postTrx("t1", "p1", "alice", 100), postTrx("t2", "p2", "bob", 110))

	report := harness.cycle(testContext,
		deleteTrx("t3", "p1", "bob", 200),
		deleteTrx("t4", "p9", "bob", 210),
	)
	require.Zero(testContext, report.Applied[activity.KindPostDelete])
	require.Equal(testContext, 1, report.Blocked)
	require.False(testContext, harness.mustPost(testContext, "p1").Deleted)

	report = harness.cycle(testContext, deleteTrx("t5", "p1", "alice", 300))
	require.Equal(testContext, 1, report.Applied[activity.KindPostDelete])

	deleted, err := harness.service.GetPost(context.Background(), testGroup, "p1")
	require.NoError(testContext, err)
	require.True(testContext, deleted.Deleted)

	posts, err := harness.service.ListPosts(context.Background(), testGroup, store.ListOptions{})
	require.NoError(testContext, err)
	require.Len(testContext, posts, 1)
	require.Equal(testContext, "p2", posts[0].ID)

	_, err = harness.service.GetPost(context.Background(), testGroup, "missing")
	requireCode(testContext, err, "materialize.query.post_not_found")
	require.True(testContext, errors.Is(err, ErrNotFound))
}

func TestNestedReplyNotifications(testContext *testing.T) {
	harness := mustHarness(testContext, "alice", PendingPolicy{})

	harness.cycle(testContext,
		postTrx("t1", "p1", "bob", 100),
		commentTrx("t2", "c1", "p1", "alice", 200),
		commentTrx("t3", "c2", "c1", "dave", 300),
		commentTrx("t4", "c3", "c2", "erin", 400),
		commentTrx("t5", "c4", "c1", "alice", 500),
	)

	notifications, err := harness.service.ListNotifications(context.Background(), testGroup, store.NotificationCommentReply, store.ListOptions{})
	require.NoError(testContext, err)
	require.Len(testContext, notifications, 2)
	require.Equal(testContext, "c3", notifications[0].ObjectID)
	require.Equal(testContext, "erin", notifications[0].FromPublisher)
	require.Equal(testContext, "c2", notifications[1].ObjectID)

	require.Equal(testContext, "c1", harness.mustComment(testContext, "c3").ThreadID)
	require.Equal(testContext, int64(3), harness.mustComment(testContext, "c1").Summary.CommentCount)
	require.Equal(testContext, int64(4), harness.mustPost(testContext, "p1").Summary.CommentCount)

	comments, err := harness.service.ListComments(context.Background(), testGroup, "p1")
	require.NoError(testContext, err)
	require.Len(testContext, comments, 4)
	require.Equal(testContext, "c1", comments[0].ID)
	require.Equal(testContext, "c4", comments[3].ID)
}

func TestProfilesRequireMatchingSubject(testContext *testing.T) {
	harness := mustHarness(testContext, "alice", PendingPolicy{})
	one := make([]byte, 32)
	one[31] = 1
	privateKey, _ := btcec.PrivKeyFromBytes(one)
	sender := base64.StdEncoding.EncodeToString(privateKey.PubKey().SerializeCompressed())
	const address = "0x7e5f4552091a69125d5dfcb7b8c2659029395bdf"

	report := harness.cycle(testContext,
		profileTrx("t1", "Keyholder", address, sender, 100),
		profileTrx("t2", "Impostor", address, "mallory", 110),
		profileTrx("t3", "Bob", "bob", "bob", 120),
	)
	require.Equal(testContext, 2, report.Applied[activity.KindProfile])

	profile, err := harness.service.CurrentProfile(context.Background(), testGroup, sender)
	require.NoError(testContext, err)
	require.Equal(testContext, "Keyholder", profile.Name)

	_, err = harness.service.CurrentProfile(context.Background(), testGroup, "mallory")
	requireCode(testContext, err, "materialize.query.profile_not_found")

	harness.cycle(testContext, profileTrx("t4", "Robert", "bob", "bob", 200))
	profile, err = harness.service.CurrentProfile(context.Background(), testGroup, "bob")
	require.NoError(testContext, err)
	require.Equal(testContext, "Robert", profile.Name)
}

func TestRelationsAreLastWriterWins(testContext *testing.T) {
	harness := mustHarness(testContext, "alice", PendingPolicy{})
	related := func(relationType activity.RelationType) []string {
		targets, err := harness.service.Related(context.Background(), testGroup, "bob", relationType)
		require.NoError(testContext, err)
		return targets
	}

	harness.cycle(testContext,
		relationTrx("t1", "Follow", "carol", "bob", 10),
		relationTrx("t2", "Block", "dave", "bob", 11),
	)
	require.Equal(testContext, []string{"carol"}, related(activity.RelationFollow))
	require.Equal(testContext, []string{"dave"}, related(activity.RelationBlock))

	harness.cycle(testContext, undoRelationTrx("t3", "Follow", "carol", "bob", 5))
	require.Equal(testContext, []string{"carol"}, related(activity.RelationFollow))

	harness.cycle(testContext, undoRelationTrx("t4", "Follow", "carol", "bob", 20))
	require.Empty(testContext, related(activity.RelationFollow))

	report := harness.cycle(testContext, relationTrx("t1", "Follow", "carol", "bob", 10))
	require.Zero(testContext, report.Applied[activity.KindRelation])
	require.Empty(testContext, related(activity.RelationUndoFollow))
	require.Equal(testContext, []string{"dave"}, related(activity.RelationUndoBlock))
}
