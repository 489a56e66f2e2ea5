package modelsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/duet3d/dcsd/internal/model"
)

// Fake is an in-memory Source for tests, the way the teacher's integration
// tests fake `docker` with a mock shell script rather than touching a real
// daemon.
type Fake struct {
	mu       sync.Mutex
	snapshot model.Snapshot
	fail     bool
}

// NewFake builds a Fake seeded with snapshot.
func NewFake(snapshot model.Snapshot) *Fake {
	return &Fake{snapshot: snapshot}
}

// SetFailing makes every subsequent call return an error, for exercising
// BreakerSource.
func (f *Fake) SetFailing(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

// SetSnapshot replaces the backing snapshot (simulating model churn).
func (f *Fake) SetSnapshot(s model.Snapshot) {
	f.mu.Lock()
	f.snapshot = s
	f.mu.Unlock()
}

func (f *Fake) Snapshot(ctx context.Context) (model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("fake source: simulated failure")
	}
	return f.snapshot.Clone(), nil
}

func (f *Fake) SubmitCode(ctx context.Context, channel CodeChannel, raw string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("fake source: simulated failure")
	}
	return "ok\n", nil
}

func (f *Fake) Flush(ctx context.Context, channel CodeChannel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("fake source: simulated failure")
	}
	return nil
}

func (f *Fake) EvaluateExpression(ctx context.Context, channel CodeChannel, expr string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("fake source: simulated failure")
	}
	return expr, nil
}
