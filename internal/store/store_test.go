package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSQLiteWithMigrations(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestEnqueueRun_IdempotentAndSingleFlight(t *testing.T) {
	s := newTestStore(t)

	run1, err := s.EnqueueRun("run-1", "proj-1", "sess-1", "tg:100:7", "hello", 1000)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	run2, err := s.EnqueueRun("run-1-retry", "proj-1", "sess-1", "tg:100:7", "hello", 1001)
	if err != nil {
		t.Fatalf("idempotent re-enqueue: %v", err)
	}
	if run2.ID != run1.ID {
		t.Fatalf("expected same run id, got %s vs %s", run2.ID, run1.ID)
	}

	if _, err := s.EnqueueRun("run-2", "proj-1", "sess-1", "tg:100:8", "other prompt", 1002); err != ErrSessionAlreadyActive {
		t.Fatalf("expected ErrSessionAlreadyActive, got %v", err)
	}
}

func TestAppendRunEvent_GapFreeSeq(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.EnqueueRun("run-1", "proj-1", "sess-1", "idem-1", "hi", 1000); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var seqs []int64
	for i := 0; i < 5; i++ {
		seq, err := s.AppendRunEvent("run-1", "text_delta", "{}", int64(1000+i))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		seqs = append(seqs, seq)
	}
	for i, seq := range seqs {
		if seq != int64(i+1) {
			t.Fatalf("seqs not gap-free: %v", seqs)
		}
	}
}

func TestInsertInboxUpdate_FirstWriterWins(t *testing.T) {
	s := newTestStore(t)
	accepted1, err := s.InsertInboxUpdate("upd-1", "chat-1", "{}", 1000)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !accepted1 {
		t.Fatalf("first insert should be accepted")
	}
	accepted2, err := s.InsertInboxUpdate("upd-1", "chat-1", "{}", 1001)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if accepted2 {
		t.Fatalf("duplicate insert should not be accepted")
	}
}

func TestLeaseNextJob_ThenRenewThenComplete(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.EnqueueRun("run-1", "proj-1", "sess-1", "idem-1", "hi", 1000); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, err := s.LeaseNextJob("worker-1", 2000, 30000)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if job.Status != "leased" || job.LeaseOwner != "worker-1" {
		t.Fatalf("unexpected leased job: %+v", job)
	}

	if _, err := s.LeaseNextJob("worker-2", 2001, 30000); err != ErrNotFound {
		t.Fatalf("second lease should find nothing, got %v", err)
	}

	if err := s.RenewJobLease(job.ID, 2500, 30000); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if err := s.CompleteJob(job.ID, 3000); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestReconcileStaleInFlight(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.EnqueueRun("run-1", "proj-1", "sess-1", "idem-1", "hi", 2); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := s.LeaseNextJob("worker-1", 2, 30000); err != nil {
		t.Fatalf("lease: %v", err)
	}
	if err := s.SetRunStatus("run-1", "in_flight", 2, 0, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}

	ids, err := s.ListStaleInFlightRuns(1999)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(ids) != 1 || ids[0] != "run-1" {
		t.Fatalf("unexpected stale ids: %v", ids)
	}

	abandoned, err := s.AbandonRun("run-1", 2000)
	if err != nil || !abandoned {
		t.Fatalf("abandon: %v %v", abandoned, err)
	}
	if err := s.RequeueLeasedJobByRunID("run-1", 2000); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	run, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != "abandoned" {
		t.Fatalf("run status = %s, want abandoned", run.Status)
	}
}
