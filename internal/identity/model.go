package identity

import "strings"

// MutedPublisher records a publisher whose posts do not count as unread.
type MutedPublisher struct {
	GroupID         string `gorm:"column:group_id;primaryKey;size:190;not null"`
	Publisher       string `gorm:"column:publisher;primaryKey;size:190;not null"`
	CreatedAtSecond int64  `gorm:"column:created_at_s;not null"`
}

// TableName exposes the table backing muted publishers.
func (MutedPublisher) TableName() string {
	return "muted_publishers"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
