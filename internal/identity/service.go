package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidPublisher indicates an empty publisher key.
	ErrInvalidPublisher = errors.New("identity: invalid publisher")
	// ErrInvalidGroup indicates an empty group id.
	ErrInvalidGroup = errors.New("identity: invalid group")
)

// ServiceConfig describes the dependencies of the local identity.
type ServiceConfig struct {
	Database  *gorm.DB
	Publisher string
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service knows who "me" is and which publishers the local user muted.
type Service struct {
	db        *gorm.DB
	publisher string
	now       func() time.Time
	logger    *zap.Logger
	cache     sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("identity: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        cfg.Database,
		publisher: normalize(cfg.Publisher),
		now:       clock,
		logger:    logger,
	}, nil
}

// Me returns the local publisher key; empty when the node runs read-only.
func (s *Service) Me() string {
	return s.publisher
}

// IsMe reports whether publisher is the local user.
func (s *Service) IsMe(publisher string) bool {
	return s.publisher != "" && normalize(publisher) == s.publisher
}

// Mute adds publisher to the muted set of a group.
func (s *Service) Mute(ctx context.Context, groupID, publisher string) error {
	groupID, publisher, err := validateMute(groupID, publisher)
	if err != nil {
		return err
	}
	record := MutedPublisher{GroupID: groupID, Publisher: publisher, CreatedAtSecond: s.now().UTC().Unix()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		return err
	}
	s.cache.Delete(groupID)
	s.logger.Info("publisher muted", zap.String("group_id", groupID), zap.String("publisher", publisher))
	return nil
}

// Unmute removes publisher from the muted set of a group.
func (s *Service) Unmute(ctx context.Context, groupID, publisher string) error {
	groupID, publisher, err := validateMute(groupID, publisher)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).
		Where("group_id = ? AND publisher = ?", groupID, publisher).
		Delete(&MutedPublisher{}).Error; err != nil {
		return err
	}
	s.cache.Delete(groupID)
	s.logger.Info("publisher unmuted", zap.String("group_id", groupID), zap.String("publisher", publisher))
	return nil
}

// MutedPublishers returns the muted set of a group.
func (s *Service) MutedPublishers(ctx context.Context, groupID string) (map[string]struct{}, error) {
	groupID = normalize(groupID)
	if cached, ok := s.cache.Load(groupID); ok {
		if muted, ok := cached.(map[string]struct{}); ok {
			return muted, nil
		}
	}
	var records []MutedPublisher
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Find(&records).Error; err != nil {
		return nil, err
	}
	muted := make(map[string]struct{}, len(records))
	for _, record := range records {
		muted[record.Publisher] = struct{}{}
	}
	s.cache.Store(groupID, muted)
	return muted, nil
}

// ListMuted returns the muted publishers of a group in key order.
func (s *Service) ListMuted(ctx context.Context, groupID string) ([]string, error) {
	muted, err := s.MutedPublishers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	publishers := make([]string, 0, len(muted))
	for publisher := range muted {
		publishers = append(publishers, publisher)
	}
	sort.Strings(publishers)
	return publishers, nil
}

func validateMute(groupID, publisher string) (string, string, error) {
	groupID = normalize(groupID)
	publisher = normalize(publisher)
	if groupID == "" {
		return "", "", ErrInvalidGroup
	}
	if publisher == "" {
		return "", "", ErrInvalidPublisher
	}
	return groupID, publisher, nil
}
