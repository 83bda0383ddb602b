package materialize

import (
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
)

// notifier collects notifications derived by a reducer and inserts them in
// the reducer's unit of work.
type notifier struct {
	groupID string
	pending []store.Notification
	seen    map[string]struct{}
}

func newNotifier(groupID string) *notifier {
	return &notifier{groupID: groupID, seen: map[string]struct{}{}}
}

func (n *notifier) add(notificationType store.NotificationType, objectID, sourceTrxID, fromPublisher string, timeStamp int64) {
	key := sourceTrxID + "|" + string(notificationType)
	if _, ok := n.seen[key]; ok {
		return
	}
	n.seen[key] = struct{}{}
	n.pending = append(n.pending, store.Notification{
		GroupID:       n.groupID,
		ObjectID:      objectID,
		SourceTrxID:   sourceTrxID,
		FromPublisher: fromPublisher,
		Type:          notificationType,
		Status:        store.NotificationUnread,
		TimeStamp:     timeStamp,
	})
}

// flush assigns ids and inserts the collected notifications. Rows already
// derived from the same transaction are ignored.
func (n *notifier) flush(tx *store.Tx, ids IDProvider) (int64, error) {
	if len(n.pending) == 0 {
		return 0, nil
	}
	for index := range n.pending {
		id, err := ids.NewID()
		if err != nil {
			return 0, err
		}
		n.pending[index].ID = id
	}
	return tx.Notifications().BulkAdd(n.pending)
}
