package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeOrchestrator struct {
	processed  int32
	reconciled int32
}

func (f *fakeOrchestrator) Process(ctx context.Context, owner string, leaseDurationMs int64) error {
	atomic.AddInt32(&f.processed, 1)
	return nil
}

func (f *fakeOrchestrator) Reconcile(staleBeforeMs int64) ([]string, int, error) {
	atomic.AddInt32(&f.reconciled, 1)
	return nil, 0, nil
}

func TestPool_PollsAndShutsDownGracefully(t *testing.T) {
	orch := &fakeOrchestrator{}
	pool := New(orch, nil, "test-worker")
	pool.Concurrency = 2

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- pool.Run(ctx) }()

	time.Sleep(900 * time.Millisecond)
	cancel()

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pool did not shut down in time")
	}

	if atomic.LoadInt32(&orch.processed) == 0 {
		t.Fatal("expected at least one Process call before shutdown")
	}
}
