package materialize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/feedsync/internal/activity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/fetcher"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"go.uber.org/zap"
)

const defaultPageSize = 50

var (
	errMissingStore      = errors.New("store is required")
	errMissingIdentity   = errors.New("identity is required")
	errMissingFetcher    = errors.New("fetcher is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingPublisher  = errors.New("local publisher is not configured")
	// ErrNotFound indicates a queried object is not materialized.
	ErrNotFound = errors.New("materialize: not found")
	noOpLogger  = zap.NewNop()
)

// ServiceError carries a stable "<operation>.<reason>" code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "materialize.service.new"
	opRunCycle        = "materialize.run_cycle"
	opApplyKind       = "materialize.apply_kind"
	opRecordLocal     = "materialize.record_local"
	opQuery           = "materialize.query"
	opMarkRead        = "materialize.mark_read"
	opReclassify      = "materialize.reclassify"
	opPendingEviction = "materialize.pending"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Identity answers who the local user is and whom they muted.
type Identity interface {
	Me() string
	IsMe(publisher string) bool
	MutedPublishers(ctx context.Context, groupID string) (map[string]struct{}, error)
}

// Fetcher is the remote paginated transaction source.
type Fetcher interface {
	Fetch(ctx context.Context, groupID string, options fetcher.Options) ([]activity.Transaction, error)
}

// IDProvider issues identifiers for derived rows.
type IDProvider interface {
	NewID() (string, error)
}

// Recorder receives a report for every cycle, including failed ones.
type Recorder interface {
	ObserveCycle(report CycleReport)
}

// CycleObserver is notified after a cycle has committed its changes.
type CycleObserver interface {
	CycleCompleted(ctx context.Context, report CycleReport)
}

// PendingPolicy bounds how long a blocked transaction is retried. Zero
// MaxAttempts keeps blocked transactions forever.
type PendingPolicy struct {
	MaxAttempts int
}

// ServiceConfig describes the dependencies of the materialization engine.
type ServiceConfig struct {
	Store         *store.Store
	Identity      Identity
	Fetcher       Fetcher
	Clock         func() time.Time
	IDProvider    IDProvider
	Logger        *zap.Logger
	PageSize      int
	PendingPolicy PendingPolicy
	Recorder      Recorder
	Observers     []CycleObserver
}

// Service builds the local materialized view from the remote transaction stream.
type Service struct {
	store         *store.Store
	identity      Identity
	fetcher       Fetcher
	clock         func() time.Time
	idProvider    IDProvider
	logger        *zap.Logger
	pageSize      int
	pendingPolicy PendingPolicy
	recorder      Recorder
	observers     []CycleObserver
	groupLocks    sync.Map
}

// NewService validates the configuration and constructs the engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Identity == nil {
		return nil, newServiceError(opServiceNew, "missing_identity", errMissingIdentity)
	}
	if cfg.Fetcher == nil {
		return nil, newServiceError(opServiceNew, "missing_fetcher", errMissingFetcher)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &Service{
		store:         cfg.Store,
		identity:      cfg.Identity,
		fetcher:       cfg.Fetcher,
		clock:         clock,
		idProvider:    cfg.IDProvider,
		logger:        logger,
		pageSize:      pageSize,
		pendingPolicy: cfg.PendingPolicy,
		recorder:      cfg.Recorder,
		observers:     append([]CycleObserver(nil), cfg.Observers...),
	}, nil
}

// PageSize reports the number of transactions requested per cycle.
func (s *Service) PageSize() int {
	return s.pageSize
}

// groupLock serializes writers of one group; distinct groups proceed independently.
func (s *Service) groupLock(groupID string) *sync.Mutex {
	lock, _ := s.groupLocks.LoadOrStore(groupID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (s *Service) nowNanos() int64 {
	return s.clock().UTC().UnixNano()
}

func (s *Service) nowSeconds() int64 {
	return s.clock().UTC().Unix()
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	s.loggerOrDefault().Error("materialize service error", errorFields(operation, reason, err, fields)...)
}

func (s *Service) logWarn(operation, reason string, err error, fields ...zap.Field) {
	s.loggerOrDefault().Warn("materialize service warning", errorFields(operation, reason, err, fields)...)
}

func errorFields(operation, reason string, err error, fields []zap.Field) []zap.Field {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	return append(attrs, fields...)
}
