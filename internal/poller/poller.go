package poller

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/feedsync/internal/materialize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultInterval = 5 * time.Second

var (
	// ErrMissingRunner indicates the poller was built without a cycle runner.
	ErrMissingRunner = errors.New("poller: cycle runner is required")
	// ErrNoGroups indicates the poller has nothing to poll.
	ErrNoGroups = errors.New("poller: at least one group is required")
)

// CycleRunner runs one poll cycle of a group.
type CycleRunner interface {
	RunCycle(ctx context.Context, groupID string) (materialize.CycleReport, error)
}

// Config describes the poller.
type Config struct {
	Runner   CycleRunner
	Groups   []string
	Interval time.Duration
	Logger   *zap.Logger
}

// Poller runs one loop per group. A group's next cycle starts only after its
// previous cycle returned; distinct groups run concurrently.
type Poller struct {
	runner   CycleRunner
	groups   []string
	interval time.Duration
	logger   *zap.Logger
}

// New validates the configuration and constructs a poller.
func New(cfg Config) (*Poller, error) {
	if cfg.Runner == nil {
		return nil, ErrMissingRunner
	}
	if len(cfg.Groups) == 0 {
		return nil, ErrNoGroups
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		runner:   cfg.Runner,
		groups:   append([]string(nil), cfg.Groups...),
		interval: interval,
		logger:   logger,
	}, nil
}

// Run polls until ctx is canceled. Cycle failures are logged and retried on
// the next tick.
func (p *Poller) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, groupID := range p.groups {
		groupID := groupID
		group.Go(func() error {
			p.loop(groupCtx, groupID)
			return nil
		})
	}
	return group.Wait()
}

// RunOnce runs cycles for every group until each has caught up, then returns.
func (p *Poller) RunOnce(ctx context.Context) ([]materialize.CycleReport, error) {
	reports := make([][]materialize.CycleReport, len(p.groups))
	group, groupCtx := errgroup.WithContext(ctx)
	for index, groupID := range p.groups {
		index, groupID := index, groupID
		group.Go(func() error {
			for {
				report, err := p.runner.RunCycle(groupCtx, groupID)
				reports[index] = append(reports[index], report)
				if err != nil {
					return err
				}
				if !report.FullPage {
					return nil
				}
			}
		})
	}
	err := group.Wait()
	var flattened []materialize.CycleReport
	for _, groupReports := range reports {
		flattened = append(flattened, groupReports...)
	}
	return flattened, err
}

func (p *Poller) loop(ctx context.Context, groupID string) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		report, err := p.runner.RunCycle(ctx, groupID)
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("poll cycle failed", zap.String("group_id", groupID), zap.Error(err))
		}

		next := p.interval
		if err == nil && report.FullPage {
			next = 0
		}
		timer.Reset(next)
	}
}
