package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePrunable struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakePrunable) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

func (f *fakePrunable) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.cutoffs...)
}

func TestPruner_Prune(t *testing.T) {
	now := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	history := &fakePrunable{}
	audit := &fakePrunable{err: errors.New("db down")}

	p := NewPruner(48*time.Hour, map[string]Prunable{"history": history, "audit": audit}, nil)
	p.now = func() time.Time { return now }
	p.Prune(context.Background())

	want := []time.Time{now.Add(-48 * time.Hour)}
	assert.Equal(t, want, history.calls())
	assert.Equal(t, want, audit.calls(), "a failing target does not stop the pass")
}

func TestPruner_StartDisabled(t *testing.T) {
	target := &fakePrunable{}
	p := NewPruner(0, map[string]Prunable{"history": target}, nil)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return immediately when retention is disabled")
	}
	assert.Empty(t, target.calls())
}

func TestPruner_StartPrunesUntilCancelled(t *testing.T) {
	target := &fakePrunable{}
	p := NewPruner(time.Hour, map[string]Prunable{"history": target}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(target.calls()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not stop after cancel")
	}
}
