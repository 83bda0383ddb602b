package materialize

import (
	"context"

	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"go.uber.org/zap"
)

// settlePending removes pending rows of items that reached a terminal state
// and records every blocked item with one more attempt. Items reaching the
// policy's attempt limit are evicted.
func (s *Service) settlePending(tx *store.Tx, env applyEnv, kind activity.Kind, items []activity.Activity, result *kindResult) error {
	blocked := make(map[string]struct{}, len(result.blocked))
	blockedIDs := make([]string, 0, len(result.blocked))
	for _, item := range result.blocked {
		trxID := item.Transaction().TrxID
		blocked[trxID] = struct{}{}
		blockedIDs = append(blockedIDs, trxID)
	}

	var settled []string
	for _, item := range items {
		trxID := item.Transaction().TrxID
		if _, ok := blocked[trxID]; ok {
			continue
		}
		if _, ok := env.fromPending[trxID]; ok {
			settled = append(settled, trxID)
		}
	}
	if err := tx.Pending().BulkDelete(env.groupID, settled); err != nil {
		return err
	}
	if len(blockedIDs) == 0 {
		return nil
	}

	rows, err := tx.Pending().BulkGet(env.groupID, blockedIDs)
	if err != nil {
		return err
	}
	existing := make(map[string]store.PendingTransaction, len(rows))
	for _, row := range rows {
		existing[row.TrxID] = row
	}

	var keep []store.PendingTransaction
	var evict []string
	for _, item := range firstByKey(result.blocked, func(item activity.Activity) string { return item.Transaction().TrxID }) {
		trx := item.Transaction()
		row, ok := existing[trx.TrxID]
		if !ok {
			raw, err := trx.Encode()
			if err != nil {
				return err
			}
			row = store.PendingTransaction{
				GroupID:          env.groupID,
				TrxID:            trx.TrxID,
				Kind:             kind,
				RawValue:         raw,
				FirstSeenSeconds: s.nowSeconds(),
			}
		}
		row.Attempts++
		if s.pendingPolicy.MaxAttempts > 0 && row.Attempts >= int64(s.pendingPolicy.MaxAttempts) {
			evict = append(evict, trx.TrxID)
			s.logWarn(opPendingEviction, "evicted", nil,
				zap.String("group_id", env.groupID),
				zap.String("trx_id", trx.TrxID),
				zap.String("kind", string(kind)),
				zap.Int64("attempts", row.Attempts))
			continue
		}
		keep = append(keep, row)
	}
	result.evicted += len(evict)
	if err := tx.Pending().BulkDelete(env.groupID, evict); err != nil {
		return err
	}
	return tx.Pending().BulkPut(keep)
}

// Reclassify re-runs the classifier over stored unclassified transactions.
// Those that now map to a concrete kind move to the pending set, so the next
// cycle applies them. It returns how many moved.
func (s *Service) Reclassify(ctx context.Context, groupID string) (int, error) {
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	moved := 0
	err := s.store.Transaction(ctx, []store.Table{store.TableUnclassified, store.TablePending}, func(tx *store.Tx) error {
		rows, err := tx.Unclassified().ListByGroup(groupID)
		if err != nil {
			return err
		}
		var promoted []store.PendingTransaction
		var removed []string
		for _, row := range rows {
			trx, err := activity.DecodeTransaction([]byte(row.RawValue))
			if err != nil {
				continue
			}
			kind := activity.Classify(trx).Kind()
			if kind == activity.KindEmpty {
				continue
			}
			promoted = append(promoted, store.PendingTransaction{
				GroupID:          groupID,
				TrxID:            trx.TrxID,
				Kind:             kind,
				RawValue:         row.RawValue,
				FirstSeenSeconds: s.nowSeconds(),
			})
			removed = append(removed, row.TrxID)
		}
		if _, err := tx.Pending().BulkAdd(promoted); err != nil {
			return err
		}
		if err := tx.Unclassified().BulkDelete(groupID, removed); err != nil {
			return err
		}
		moved = len(promoted)
		return nil
	})
	if err != nil {
		s.logError(opReclassify, "transaction_failed", err, zap.String("group_id", groupID))
		return 0, newServiceError(opReclassify, "transaction_failed", err)
	}
	if moved > 0 {
		s.loggerOrDefault().Info("unclassified transactions promoted",
			zap.String("group_id", groupID),
			zap.Int("count", moved))
	}
	return moved, nil
}
