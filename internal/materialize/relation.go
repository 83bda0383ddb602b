package materialize

import (
	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
)

var relationTables = []store.Table{store.TableRelations, store.TableRelationSummaries, store.TablePending}

type edgeKey struct {
	from string
	to   string
	base activity.RelationType
}

func (s *Service) applyRelations(tx *store.Tx, env applyEnv, items []activity.Relation) (kindResult, error) {
	var result kindResult
	items = firstByKey(items, func(item activity.Relation) string { return item.Transaction().TrxID })

	trxIDs := make([]string, 0, len(items))
	for _, item := range items {
		trxIDs = append(trxIDs, item.Transaction().TrxID)
	}
	rows, err := tx.Relations().BulkGet(env.groupID, trxIDs)
	if err != nil {
		return result, err
	}
	applied := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		applied[row.TrxID] = struct{}{}
	}

	summaries := map[edgeKey]*store.RelationSummary{}
	var edges []store.Relation
	for _, item := range items {
		trx := item.Transaction()
		if _, ok := applied[trx.TrxID]; ok {
			continue
		}
		applied[trx.TrxID] = struct{}{}
		edges = append(edges, store.Relation{
			GroupID:       env.groupID,
			TrxID:         trx.TrxID,
			FromPublisher: trx.SenderPubkey,
			ToPublisher:   item.To,
			Type:          item.Type,
			TimeStamp:     trx.TimeStamp.Int64(),
		})
		result.insert(item, "")

		key := edgeKey{from: trx.SenderPubkey, to: item.To, base: item.Type.Base()}
		summary, ok := summaries[key]
		if !ok {
			loaded, found, err := tx.RelationSummaries().Get(env.groupID, key.from, key.to, key.base)
			if err != nil {
				return result, err
			}
			if !found {
				loaded = store.RelationSummary{GroupID: env.groupID, FromPublisher: key.from, ToPublisher: key.to, Type: key.base}
			}
			summary = &loaded
			summaries[key] = summary
		}
		if newerThan(trx.TimeStamp.Int64(), trx.TrxID, summary.TimeStamp, summary.TrxID) {
			summary.Value = item.Type.Active()
			summary.TrxID = trx.TrxID
			summary.TimeStamp = trx.TimeStamp.Int64()
		}
	}

	if _, err := tx.Relations().BulkAdd(edges); err != nil {
		return result, err
	}
	updated := make([]store.RelationSummary, 0, len(summaries))
	for _, summary := range summaries {
		updated = append(updated, *summary)
	}
	return result, tx.RelationSummaries().Put(updated)
}

// newerThan orders edge writes by timestamp, then trx id.
func newerThan(timeStamp int64, trxID string, currentTimeStamp int64, currentTrxID string) bool {
	if currentTrxID == "" {
		return true
	}
	if timeStamp != currentTimeStamp {
		return timeStamp > currentTimeStamp
	}
	return trxID > currentTrxID
}
