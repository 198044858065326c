package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MoveSocial/social_layer/internal/app/domain/gas"
	"github.com/MoveSocial/social_layer/internal/app/domain/task"
)

func TestBorrowPopsLeastRecentlyUsed(t *testing.T) {
	store := New()
	ctx := context.Background()

	old := gas.Lease{ObjectID: "0xOLD", Version: 1, Digest: "d1", LastUsed: time.Now().Add(-time.Hour)}
	fresh := gas.Lease{ObjectID: "0xNEW", Version: 2, Digest: "d2", LastUsed: time.Now()}
	if err := store.ReplaceLeases(ctx, []gas.Lease{fresh, old}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	lease, ok, err := store.BorrowLease(ctx)
	if err != nil || !ok {
		t.Fatalf("borrow: ok=%v err=%v", ok, err)
	}
	if lease.ObjectID != "0xOLD" {
		t.Fatalf("expected LRU lease, got %s", lease.ObjectID)
	}
}

func TestBorrowEmptyPoolIsNotAnError(t *testing.T) {
	store := New()
	_, ok, err := store.BorrowLease(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("borrow from empty pool reported success")
	}
}

func TestBorrowMutualExclusion(t *testing.T) {
	store := New()
	ctx := context.Background()

	const poolSize = 8
	leases := make([]gas.Lease, poolSize)
	for i := range leases {
		leases[i] = gas.Lease{ObjectID: string(rune('A' + i)), Version: 1, Digest: "d"}
	}
	if err := store.ReplaceLeases(ctx, leases); err != nil {
		t.Fatalf("replace: %v", err)
	}

	const borrowers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]int)
	misses := 0

	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, ok, err := store.BorrowLease(ctx)
			if err != nil {
				t.Errorf("borrow: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				seen[lease.ObjectID]++
			} else {
				misses++
			}
		}()
	}
	wg.Wait()

	if len(seen) != poolSize {
		t.Fatalf("expected %d distinct leases handed out, got %d", poolSize, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("lease %s borrowed %d times", id, n)
		}
	}
	if misses != borrowers-poolSize {
		t.Fatalf("expected %d empty-pool results, got %d", borrowers-poolSize, misses)
	}
}

func TestBorrowReturnConservation(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.ReplaceLeases(ctx, []gas.Lease{
		{ObjectID: "0x1"}, {ObjectID: "0x2"}, {ObjectID: "0x3"},
	}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	lease, ok, _ := store.BorrowLease(ctx)
	if !ok {
		t.Fatal("borrow failed")
	}
	if n, _ := store.CountLeases(ctx); n != 2 {
		t.Fatalf("count after borrow: %d", n)
	}

	if err := store.ReturnLease(ctx, lease); err != nil {
		t.Fatalf("return: %v", err)
	}
	if n, _ := store.CountLeases(ctx); n != 3 {
		t.Fatalf("count after return: %d", n)
	}
}

func TestReplaceLeasesDiscardsOldPool(t *testing.T) {
	store := New()
	ctx := context.Background()

	_ = store.ReplaceLeases(ctx, []gas.Lease{{ObjectID: "0xOLD1"}, {ObjectID: "0xOLD2"}})
	_ = store.ReplaceLeases(ctx, []gas.Lease{{ObjectID: "0xN1"}, {ObjectID: "0xN2"}, {ObjectID: "0xN3"}})

	if n, _ := store.CountLeases(ctx); n != 3 {
		t.Fatalf("count after replace: %d", n)
	}
	for i := 0; i < 3; i++ {
		lease, ok, _ := store.BorrowLease(ctx)
		if !ok {
			t.Fatal("pool exhausted early")
		}
		if lease.ObjectID == "0xOLD1" || lease.ObjectID == "0xOLD2" {
			t.Fatalf("old lease %s survived replace", lease.ObjectID)
		}
	}
}

func TestClaimTaskAtMostOnce(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		if err := store.CreateTask(ctx, task.Task{ID: id, Action: task.ActionLikePost}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	seen := make(map[string]bool)
	for {
		claimed, ok, err := store.ClaimTask(ctx)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if !ok {
			break
		}
		if seen[claimed.ID] {
			t.Fatalf("task %s claimed twice", claimed.ID)
		}
		seen[claimed.ID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(seen))
	}
}

func TestTakeResponseDeletesOnRead(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.PutResponse(ctx, "t1", task.Response{Digest: "0xD"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	resp, ok, err := store.TakeResponse(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}
	if resp.Digest != "0xD" {
		t.Fatalf("unexpected digest %s", resp.Digest)
	}

	if _, ok, _ := store.TakeResponse(ctx, "t1"); ok {
		t.Fatal("second take returned stale response")
	}
}

func TestTaskCreatedHint(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.CreateTask(ctx, task.Task{ID: "t1", Action: task.ActionCreatePost}); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case <-store.TaskCreated():
	case <-time.After(time.Second):
		t.Fatal("no hint after task creation")
	}
}

func TestRequeueClaimedTasksMovesStuckClaims(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.CreateTask(ctx, task.Task{ID: "t1", Action: task.ActionCreatePost}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok, err := store.ClaimTask(ctx); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	moved, err := store.RequeueClaimedTasks(ctx, time.Now().UTC().Add(time.Second))
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}

	got, ok, err := store.ClaimTask(ctx)
	if err != nil || !ok {
		t.Fatalf("reclaim: ok=%v err=%v", ok, err)
	}
	if got.ID != "t1" {
		t.Fatalf("reclaimed %s, want t1", got.ID)
	}

	// A claim younger than the cutoff stays put.
	if moved, _ := store.RequeueClaimedTasks(ctx, time.Now().UTC().Add(-time.Minute)); moved != 0 {
		t.Fatalf("moved = %d for a fresh claim, want 0", moved)
	}
}

func TestExpireTasksHonorsCutoff(t *testing.T) {
	store := New()
	ctx := context.Background()

	old := task.Task{ID: "old", Action: task.ActionCreatePost, CreatedAt: time.Now().UTC().Add(-2 * time.Hour)}
	fresh := task.Task{ID: "fresh", Action: task.ActionCreatePost}
	for _, tsk := range []task.Task{old, fresh} {
		if err := store.CreateTask(ctx, tsk); err != nil {
			t.Fatalf("create %s: %v", tsk.ID, err)
		}
	}

	expired, err := store.ExpireTasks(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	got, ok, _ := store.ClaimTask(ctx)
	if !ok || got.ID != "fresh" {
		t.Fatalf("claim after expiry = %+v ok=%v, want fresh", got, ok)
	}
}

func TestExpireResponsesDropsAged(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.PutResponse(ctx, "t1", task.Response{Digest: "0xD"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if expired, _ := store.ExpireResponses(ctx, time.Now().UTC().Add(-time.Minute)); expired != 0 {
		t.Fatalf("expired = %d for a fresh response, want 0", expired)
	}

	expired, err := store.ExpireResponses(ctx, time.Now().UTC().Add(time.Second))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}
	if _, ok, _ := store.TakeResponse(ctx, "t1"); ok {
		t.Fatal("expired response still readable")
	}
}
