package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/feedsync/internal/materialize"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedRunner struct {
	mu      sync.Mutex
	calls   map[string]int
	full    map[string]int
	failed  map[string]bool
	active  map[string]bool
	overlap bool
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{
		calls:  map[string]int{},
		full:   map[string]int{},
		failed: map[string]bool{},
		active: map[string]bool{},
	}
}

func (r *scriptedRunner) RunCycle(ctx context.Context, groupID string) (materialize.CycleReport, error) {
	r.mu.Lock()
	if r.active[groupID] {
		r.overlap = true
	}
	r.active[groupID] = true
	r.calls[groupID]++
	call := r.calls[groupID]
	fullPages := r.full[groupID]
	failed := r.failed[groupID]
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active[groupID] = false
		r.mu.Unlock()
	}()

	if failed {
		return materialize.CycleReport{GroupID: groupID, FetchFailed: true}, errors.New("node unavailable")
	}
	return materialize.CycleReport{GroupID: groupID, FullPage: call <= fullPages}, nil
}

func (r *scriptedRunner) callCount(groupID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[groupID]
}

func TestRunOnceCatchesUpEveryGroup(testContext *testing.T) {
	runner := newScriptedRunner()
	runner.full["g1"] = 2
	poller, err := New(Config{Runner: runner, Groups: []string{"g1", "g2"}, Interval: time.Hour})
	require.NoError(testContext, err)

	reports, err := poller.RunOnce(context.Background())
	require.NoError(testContext, err)
	require.Len(testContext, reports, 4)
	require.Equal(testContext, 3, runner.callCount("g1"))
	require.Equal(testContext, 1, runner.callCount("g2"))
}

func TestRunOnceReportsFailure(testContext *testing.T) {
	runner := newScriptedRunner()
	runner.failed["g1"] = true
	poller, err := New(Config{Runner: runner, Groups: []string{"g1"}})
	require.NoError(testContext, err)

	_, err = poller.RunOnce(context.Background())
	require.Error(testContext, err)
}

func TestRunPollsUntilCanceled(testContext *testing.T) {
	runner := newScriptedRunner()
	runner.full["g1"] = 3
	runner.failed["g2"] = true
	poller, err := New(Config{Runner: runner, Groups: []string{"g1", "g2"}, Interval: 5 * time.Millisecond})
	require.NoError(testContext, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- poller.Run(ctx)
	}()

	require.Eventually(testContext, func() bool {
		return runner.callCount("g1") >= 5 && runner.callCount("g2") >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(testContext, err)
	case <-time.After(2 * time.Second):
		testContext.Fatalf("poller did not stop after cancellation")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.False(testContext, runner.overlap, "cycles of one group must not overlap")
}

func TestNewValidatesConfig(testContext *testing.T) {
	_, err := New(Config{Groups: []string{"g1"}})
	require.ErrorIs(testContext, err, ErrMissingRunner)

	_, err = New(Config{Runner: newScriptedRunner()})
	require.ErrorIs(testContext, err, ErrNoGroups)
}
