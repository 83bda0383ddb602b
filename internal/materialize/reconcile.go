package materialize

import "github.com/MarcoPoloResearchLab/feedsync/internal/store"

type reconcileOutcome int

const (
	// reconcileSkip leaves the stored row untouched.
	reconcileSkip reconcileOutcome = iota
	// reconcileConfirm flips a locally authored row to synced.
	reconcileConfirm
)

// stored identifies the fields a reducer compares when a transaction names an
// object that already exists locally.
type stored struct {
	status    store.Status
	publisher string
	trxID     string
}

// resolveExisting decides what a confirming transaction does to an existing
// row. Only a syncing row authored by the same publisher under the same trx
// id is confirmed; anything else is already applied or an id collision.
func resolveExisting(existing stored, publisher, trxID string) reconcileOutcome {
	if existing.status != store.StatusSyncing {
		return reconcileSkip
	}
	if existing.publisher != publisher || existing.trxID != trxID {
		return reconcileSkip
	}
	return reconcileConfirm
}

// collides reports whether the existing row belongs to someone else.
func collides(existing stored, publisher string) bool {
	return existing.publisher != publisher
}

func hotCount(likeCount, dislikeCount, commentCount int64) int64 {
	return 10*(likeCount-dislikeCount) + 4*commentCount
}

func refreshPostHot(post *store.Post) {
	post.Summary.HotCount = hotCount(post.Summary.LikeCount, post.Summary.DislikeCount, post.Summary.CommentCount)
}

func refreshCommentHot(comment *store.Comment) {
	comment.Summary.HotCount = hotCount(comment.Summary.LikeCount, comment.Summary.DislikeCount, comment.Summary.CommentCount)
}

// adjust applies a signed delta and clamps the result at zero.
func adjust(value *int64, delta int64) {
	*value += delta
	if *value < 0 {
		*value = 0
	}
}
