package materialize

import (
	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/identity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"go.uber.org/zap"
)

var profileTables = []store.Table{store.TableProfiles, store.TablePending}

func (s *Service) applyProfiles(tx *store.Tx, env applyEnv, items []activity.Profile) (kindResult, error) {
	var result kindResult
	items = firstByKey(items, func(item activity.Profile) string { return item.Transaction().TrxID })

	trxIDs := make([]string, 0, len(items))
	for _, item := range items {
		trxIDs = append(trxIDs, item.Transaction().TrxID)
	}
	rows, err := tx.Profiles().BulkGet(env.groupID, trxIDs)
	if err != nil {
		return result, err
	}
	existing := make(map[string]*store.Profile, len(rows))
	for index := range rows {
		existing[rows[index].TrxID] = &rows[index]
	}

	dirty := map[string]struct{}{}
	for _, item := range items {
		trx := item.Transaction()
		if revision, ok := existing[trx.TrxID]; ok {
			current := stored{status: revision.Status, publisher: revision.Publisher, trxID: revision.TrxID}
			if resolveExisting(current, trx.SenderPubkey, trx.TrxID) == reconcileConfirm {
				revision.Status = store.StatusSynced
				dirty[trx.TrxID] = struct{}{}
				result.confirm(item)
			}
			continue
		}
		if !identity.SubjectMatchesSender(item.Subject, trx.SenderPubkey) {
			s.loggerOrDefault().Debug("spoofed profile ignored",
				zap.String("group_id", env.groupID),
				zap.String("trx_id", trx.TrxID),
				zap.String("subject", item.Subject))
			continue
		}
		existing[trx.TrxID] = &store.Profile{
			GroupID:   env.groupID,
			TrxID:     trx.TrxID,
			Publisher: trx.SenderPubkey,
			Name:      item.Name,
			Avatar:    item.Avatar,
			Wallet:    item.Wallet,
			Status:    store.StatusSynced,
			TimeStamp: trx.TimeStamp.Int64(),
		}
		dirty[trx.TrxID] = struct{}{}
		result.insert(item, trx.SenderPubkey)
	}

	return result, tx.Profiles().BulkPut(collect(existing, dirty))
}
