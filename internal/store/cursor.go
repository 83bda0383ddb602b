package store

import (
	"gorm.io/gorm/clause"
)

// MaxRecentContentLogs bounds the ring of recent content log lines.
const MaxRecentContentLogs = 210

// CursorPatch lists the cursor fields a caller wants to change. Nil fields
// are left as they are.
type CursorPatch struct {
	LatestTrxID                *string
	LatestPostTimeStamp        *int64
	LatestReadTimeStamp        *int64
	UnreadCount                *int64
	UnreadDelta                int64
	NotificationUnreadCountMap map[string]int64
	AppendContentLogs          []string
}

// CursorRepository accesses per-group status cursors.
type CursorRepository struct {
	tx *Tx
}

// Cursors returns the cursor repository bound to this unit of work.
func (tx *Tx) Cursors() CursorRepository {
	return CursorRepository{tx: tx}
}

// Get returns the cursor of a group, or an empty cursor if none is stored.
func (r CursorRepository) Get(groupID string) (StatusCursor, error) {
	if err := r.tx.guard(TableStatusCursors); err != nil {
		return StatusCursor{}, err
	}
	var cursor StatusCursor
	result := r.tx.db.Where(columnGroupID+" = ?", groupID).Limit(1).Find(&cursor)
	if result.Error != nil {
		return StatusCursor{}, result.Error
	}
	if result.RowsAffected == 0 {
		return StatusCursor{GroupID: groupID, NotificationUnreadCountMap: map[string]int64{}}, nil
	}
	if cursor.NotificationUnreadCountMap == nil {
		cursor.NotificationUnreadCountMap = map[string]int64{}
	}
	return cursor, nil
}

// Update merges patch into the stored cursor and returns the result.
func (r CursorRepository) Update(groupID string, patch CursorPatch, nowSeconds int64) (StatusCursor, error) {
	cursor, err := r.Get(groupID)
	if err != nil {
		return StatusCursor{}, err
	}
	applyCursorPatch(&cursor, patch)
	cursor.UpdatedAtSeconds = nowSeconds
	if err := r.tx.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&cursor).Error; err != nil {
		return StatusCursor{}, err
	}
	return cursor, nil
}

func applyCursorPatch(cursor *StatusCursor, patch CursorPatch) {
	if patch.LatestTrxID != nil {
		cursor.LatestTrxID = *patch.LatestTrxID
	}
	if patch.LatestPostTimeStamp != nil && *patch.LatestPostTimeStamp > cursor.LatestPostTimeStamp {
		cursor.LatestPostTimeStamp = *patch.LatestPostTimeStamp
	}
	if patch.LatestReadTimeStamp != nil {
		cursor.LatestReadTimeStamp = *patch.LatestReadTimeStamp
	}
	if patch.UnreadCount != nil {
		cursor.UnreadCount = *patch.UnreadCount
	}
	cursor.UnreadCount += patch.UnreadDelta
	if cursor.UnreadCount < 0 {
		cursor.UnreadCount = 0
	}
	if patch.NotificationUnreadCountMap != nil {
		counts := make(map[string]int64, len(patch.NotificationUnreadCountMap))
		for key, value := range patch.NotificationUnreadCountMap {
			counts[key] = value
		}
		cursor.NotificationUnreadCountMap = counts
	}
	if len(patch.AppendContentLogs) > 0 {
		logs := append(append([]string{}, cursor.RecentContentLogs...), patch.AppendContentLogs...)
		if len(logs) > MaxRecentContentLogs {
			logs = logs[len(logs)-MaxRecentContentLogs:]
		}
		cursor.RecentContentLogs = logs
	}
}
