package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/materialize"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultChannelPrefix  = "feedsync"
	defaultPublishTimeout = 3 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMissingClient indicates the publisher was built without a redis client.
var ErrMissingClient = errors.New("events: redis client is required")

// CycleEvent is the message published for every committed cycle.
type CycleEvent struct {
	GroupID       string                `json:"groupId"`
	Fetched       int                   `json:"fetched"`
	Applied       map[activity.Kind]int `json:"applied"`
	Pending       int64                 `json:"pending"`
	Notifications int64                 `json:"notifications"`
	NewObjectIDs  []string              `json:"newObjectIds"`
	LatestTrxID   string                `json:"latestTrxId"`
	UnreadCount   int64                 `json:"unreadCount"`
}

// NewCycleEvent projects a cycle report onto its public event.
func NewCycleEvent(report materialize.CycleReport) CycleEvent {
	return CycleEvent{
		GroupID:       report.GroupID,
		Fetched:       report.Fetched,
		Applied:       report.Applied,
		Pending:       report.Pending,
		Notifications: report.Notifications,
		NewObjectIDs:  report.NewObjectIDs,
		LatestTrxID:   report.Cursor.LatestTrxID,
		UnreadCount:   report.Cursor.UnreadCount,
	}
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Config describes the redis cycle publisher.
type Config struct {
	Client        redisPublisher
	ChannelPrefix string
	Timeout       time.Duration
	Logger        *zap.Logger
}

// Publisher forwards cycle reports to redis pub/sub, one channel per group.
type Publisher struct {
	client  redisPublisher
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedisClient builds a redis client for address.
func NewRedisClient(address string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         address,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// NewPublisher constructs a cycle publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Client == nil {
		return nil, ErrMissingClient
	}
	prefix := strings.TrimSpace(cfg.ChannelPrefix)
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: cfg.Client, prefix: prefix, timeout: timeout, logger: logger}, nil
}

// Channel returns the channel cycle events of a group are published on.
func (p *Publisher) Channel(groupID string) string {
	return p.prefix + ":cycles:" + groupID
}

// CycleCompleted publishes the report. Failures are logged and dropped.
func (p *Publisher) CycleCompleted(ctx context.Context, report materialize.CycleReport) {
	payload, err := json.Marshal(NewCycleEvent(report))
	if err != nil {
		p.logger.Error("cycle event encode failed", zap.String("group_id", report.GroupID), zap.Error(err))
		return
	}
	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Publish(publishCtx, p.Channel(report.GroupID), payload).Err(); err != nil {
		p.logger.Warn("cycle event publish failed",
			zap.String("group_id", report.GroupID),
			zap.String("channel", p.Channel(report.GroupID)),
			zap.Error(err))
	}
}
