package sponsor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MoveSocial/social_layer/internal/app/domain/task"
	"github.com/MoveSocial/social_layer/internal/app/storage/memory"
	"github.com/MoveSocial/social_layer/internal/chain"
)

func startWorker(t *testing.T, svc *Service, store *memory.Store) *Worker {
	t.Helper()
	w := NewWorker(svc, store, store, quietLogger(), WithPollInterval(10*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.Stop(ctx); err != nil {
			t.Errorf("stop worker: %v", err)
		}
	})
	return w
}

func TestWorkerExecutesEnqueuedTask(t *testing.T) {
	store := memory.New()
	seedLease(t, store, "0xgas", 1)

	sub := &fakeSubmitter{handle: func(*chain.TransactionBlock) (*chain.TransactionResult, error) {
		return successResult("digest-1", chain.ObjectRef{ObjectID: "0xgas", Version: 2, Digest: "d"}), nil
	}}
	svc := newTestService(store, sub, &fakeReader{}, testConfig())
	startWorker(t, svc, store)

	id, err := svc.Enqueue(context.Background(), task.ActionLikePost, task.Payload{Profile: "0xp", Post: "0xq"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	resp, err := svc.AwaitResult(context.Background(), id)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if resp.Failed() {
		t.Fatalf("task failed: %s", resp.Error)
	}
	if resp.Digest != "digest-1" {
		t.Fatalf("digest = %q, want digest-1", resp.Digest)
	}
}

func TestWorkerReportsFailureAsResponse(t *testing.T) {
	store := memory.New()
	seedLease(t, store, "0xgas", 1)

	sub := &fakeSubmitter{handle: func(*chain.TransactionBlock) (*chain.TransactionResult, error) {
		return nil, errors.New("object version mismatch")
	}}
	svc := newTestService(store, sub, &fakeReader{}, testConfig())
	startWorker(t, svc, store)

	id, err := svc.Enqueue(context.Background(), task.ActionLikePost, task.Payload{Profile: "0xp", Post: "0xq"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	resp, err := svc.AwaitResult(context.Background(), id)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !resp.Failed() {
		t.Fatal("failed execution must still produce a response")
	}
}

func TestWorkerDrainsBacklogConcurrently(t *testing.T) {
	store := memory.New()
	for i := 0; i < 4; i++ {
		seedLease(t, store, fmt.Sprintf("0xgas%d", i), 1)
	}

	var mu sync.Mutex
	executed := make(map[string]bool)
	sub := &fakeSubmitter{}
	sub.handle = func(block *chain.TransactionBlock) (*chain.TransactionResult, error) {
		gasID := block.GasPayment[0].ObjectID
		mu.Lock()
		executed[gasID] = true
		mu.Unlock()
		return successResult("digest-"+gasID, chain.ObjectRef{ObjectID: gasID, Version: 2, Digest: "d"}), nil
	}
	cfg := testConfig()
	cfg.BorrowAttempts = 50
	svc := newTestService(store, sub, &fakeReader{}, cfg)

	ids := make([]string, 8)
	for i := range ids {
		id, err := svc.Enqueue(context.Background(), task.ActionLikePost, task.Payload{Profile: "0xp", Post: "0xq"})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		ids[i] = id
	}

	startWorker(t, svc, store)

	for i, id := range ids {
		resp, err := svc.AwaitResult(context.Background(), id)
		if err != nil {
			t.Fatalf("await %d: %v", i, err)
		}
		if resp.Failed() {
			t.Fatalf("task %d failed: %s", i, resp.Error)
		}
	}

	n, _ := store.CountLeases(context.Background())
	if n != 4 {
		t.Fatalf("pool size = %d after drain, want 4", n)
	}
}

func TestWorkerStopRecordsOutcomeOfCancelledTask(t *testing.T) {
	store := memory.New()
	seedLease(t, store, "0xgas", 1)

	started := make(chan struct{})
	release := make(chan struct{})
	sub := &fakeSubmitter{handle: func(*chain.TransactionBlock) (*chain.TransactionResult, error) {
		close(started)
		<-release
		return nil, errors.New("interrupted by shutdown")
	}}
	svc := New(ctxStore{store}, ctxStore{store}, store, sub, &fakeReader{}, testConfig(), quietLogger())

	w := NewWorker(svc, ctxStore{store}, store, quietLogger(), WithPollInterval(10*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start worker: %v", err)
	}

	id, err := svc.Enqueue(context.Background(), task.ActionLikePost, task.Payload{Profile: "0xp", Post: "0xq"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	<-started
	// Stop cancels the run context while the submit is blocked; the store
	// rejects writes on a cancelled context, so the response and the lease
	// return only succeed if the bookkeeping is detached from it.
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	resp, ok, err := store.TakeResponse(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("response after stop: ok=%v err=%v", ok, err)
	}
	if !resp.Failed() {
		t.Fatal("interrupted execution must report its failure")
	}
	n, _ := store.CountLeases(context.Background())
	if n != 1 {
		t.Fatalf("pool size = %d after stop, want the lease back", n)
	}
}

func TestWorkerStopWaitsForInFlightTask(t *testing.T) {
	store := memory.New()
	seedLease(t, store, "0xgas", 1)

	release := make(chan struct{})
	sub := &fakeSubmitter{handle: func(*chain.TransactionBlock) (*chain.TransactionResult, error) {
		<-release
		return successResult("digest-1", chain.ObjectRef{ObjectID: "0xgas", Version: 2, Digest: "d"}), nil
	}}
	svc := newTestService(store, sub, &fakeReader{}, testConfig())

	w := NewWorker(svc, store, store, quietLogger(), WithPollInterval(10*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start worker: %v", err)
	}

	id, err := svc.Enqueue(context.Background(), task.ActionLikePost, task.Payload{Profile: "0xp", Post: "0xq"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Let the worker claim the task, then stop while submission is blocked.
	time.Sleep(50 * time.Millisecond)
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// The in-flight task must have finished with a response despite shutdown.
	resp, ok, err := store.TakeResponse(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("response after stop: ok=%v err=%v", ok, err)
	}
	if resp.Failed() {
		t.Fatalf("task failed: %s", resp.Error)
	}
}
