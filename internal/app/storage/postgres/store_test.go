package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"

	"github.com/MoveSocial/social_layer/internal/app/domain/gas"
	"github.com/MoveSocial/social_layer/internal/app/domain/task"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestBorrowLeaseSingleStatement(t *testing.T) {
	store, mock := newMockStore(t)

	lastUsed := time.Now().UTC()
	mock.ExpectQuery(`DELETE FROM gas_leases`).
		WillReturnRows(sqlmock.NewRows([]string{"object_id", "version", "digest", "last_used"}).
			AddRow("0xA", int64(3), "dA", lastUsed))

	lease, ok, err := store.BorrowLease(context.Background())
	if err != nil || !ok {
		t.Fatalf("borrow: ok=%v err=%v", ok, err)
	}
	if lease.ObjectID != "0xA" || lease.Version != 3 {
		t.Fatalf("unexpected lease: %+v", lease)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBorrowLeaseEmptyPool(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`DELETE FROM gas_leases`).WillReturnError(sql.ErrNoRows)

	_, ok, err := store.BorrowLease(context.Background())
	if err != nil {
		t.Fatalf("empty pool must not be an error: %v", err)
	}
	if ok {
		t.Fatal("empty pool reported a lease")
	}
}

func TestReturnLeaseUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO gas_leases`).
		WithArgs("0xB", int64(5), "dB", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.ReturnLease(context.Background(), gas.Lease{ObjectID: "0xB", Version: 5, Digest: "dB"})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceLeasesRunsInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM gas_leases`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO gas_leases`).
		WithArgs("0x1", int64(1), "d1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO gas_leases`).
		WithArgs("0x2", int64(1), "d2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ReplaceLeases(context.Background(), []gas.Lease{
		{ObjectID: "0x1", Version: 1, Digest: "d1"},
		{ObjectID: "0x2", Version: 1, Digest: "d2"},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimTaskSkipLocked(t *testing.T) {
	store, mock := newMockStore(t)

	payload, _ := json.Marshal(task.Payload{Profile: "0xP", Post: "0xPost"})
	mock.ExpectQuery(`UPDATE sponsor_tasks`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "payload", "created_at"}).
			AddRow("t1", "likePost", payload, time.Now().UTC()))

	claimed, ok, err := store.ClaimTask(context.Background())
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if claimed.Action != task.ActionLikePost || claimed.Payload.Post != "0xPost" {
		t.Fatalf("unexpected task: %+v", claimed)
	}
}

func TestTakeResponseDeleteReturning(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`DELETE FROM sponsor_task_responses`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"digest", "effects", "events", "error"}).
			AddRow("0xD", []byte(`{}`), nil, nil))

	resp, ok, err := store.TakeResponse(context.Background(), "t1")
	if err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}
	if resp.Digest != "0xD" || resp.Failed() {
		t.Fatalf("unexpected response: %+v", resp)
	}

	mock.ExpectQuery(`DELETE FROM sponsor_task_responses`).
		WithArgs("t1").
		WillReturnError(sql.ErrNoRows)

	if _, ok, err := store.TakeResponse(context.Background(), "t1"); err != nil || ok {
		t.Fatalf("consumed response should be gone: ok=%v err=%v", ok, err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)
	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	if err := store.ReplaceLeases(ctx, []gas.Lease{{ObjectID: "0xIT", Version: 1, Digest: "d"}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	lease, ok, err := store.BorrowLease(ctx)
	if err != nil || !ok {
		t.Fatalf("borrow: ok=%v err=%v", ok, err)
	}
	if err := store.ReturnLease(ctx, lease); err != nil {
		t.Fatalf("return: %v", err)
	}
	if n, _ := store.CountLeases(ctx); n != 1 {
		t.Fatalf("count: %d", n)
	}
}

func TestRequeueClaimedTasksUpdatesStuckRows(t *testing.T) {
	store, mock := newMockStore(t)

	cutoff := time.Now().UTC().Add(-10 * time.Minute)
	mock.ExpectExec(`UPDATE sponsor_tasks`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	moved, err := store.RequeueClaimedTasks(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d, want 2", moved)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestExpireTasksDeletesAgedRows(t *testing.T) {
	store, mock := newMockStore(t)

	cutoff := time.Now().UTC().Add(-time.Hour)
	mock.ExpectExec(`DELETE FROM sponsor_tasks`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	expired, err := store.ExpireTasks(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("expire tasks: %v", err)
	}
	if expired != 3 {
		t.Fatalf("expired = %d, want 3", expired)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestExpireResponsesDeletesAgedRows(t *testing.T) {
	store, mock := newMockStore(t)

	cutoff := time.Now().UTC().Add(-10 * time.Minute)
	mock.ExpectExec(`DELETE FROM sponsor_task_responses`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))

	expired, err := store.ExpireResponses(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("expire responses: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
