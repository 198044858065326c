// Package storage defines the persistence interfaces for the sponsor core.
// The gas lease table, task log, and response mailbox are only ever mutated
// through these operations; no component reads or writes the underlying
// records directly.
package storage

import (
	"context"
	"time"

	"github.com/MoveSocial/social_layer/internal/app/domain/gas"
	"github.com/MoveSocial/social_layer/internal/app/domain/task"
)

// GasLeaseStore is the shared pool of spendable fee objects.
type GasLeaseStore interface {
	// BorrowLease atomically removes and returns the least-recently-used
	// lease. The second return is false when the pool is empty, which is not
	// an error. Two concurrent borrowers never observe the same lease.
	BorrowLease(ctx context.Context) (gas.Lease, bool, error)

	// ReturnLease upserts the lease back into the pool with LastUsed set to
	// now. Stale references are accepted; the next borrower discovers
	// staleness at submission time.
	ReturnLease(ctx context.Context, lease gas.Lease) error

	// CountLeases reports the approximate pool size, used as a health
	// threshold only.
	CountLeases(ctx context.Context) (int, error)

	// ReplaceLeases clears the pool and inserts the given leases in a single
	// transaction. Only the rebalancer calls this.
	ReplaceLeases(ctx context.Context, leases []gas.Lease) error
}

// TaskStore is the append log of pending tasks plus the per-task response
// mailbox bridging HTTP producers and the background worker.
type TaskStore interface {
	// CreateTask appends a pending task under its caller-assigned id.
	CreateTask(ctx context.Context, t task.Task) error

	// ClaimTask atomically hands out one pending task, oldest first. A task
	// is claimed at most once. The second return is false when nothing is
	// pending.
	ClaimTask(ctx context.Context) (task.Task, bool, error)

	// DeleteTask removes a task record. Called after its response has been
	// written.
	DeleteTask(ctx context.Context, id string) error

	// PutResponse writes the task's outcome to the mailbox.
	PutResponse(ctx context.Context, id string, resp task.Response) error

	// TakeResponse reads and deletes the response for a task in one step.
	// The second return is false while no response exists. A response is
	// delivered at most once.
	TakeResponse(ctx context.Context, id string) (task.Response, bool, error)
}

// TaskNotifier is optionally implemented by task stores that can signal new
// work, letting the worker skip its poll interval.
type TaskNotifier interface {
	// TaskCreated returns a channel that receives a hint whenever a task is
	// appended. Hints may be coalesced or dropped; the worker still polls.
	TaskCreated() <-chan struct{}
}

// TaskJanitor is implemented by task stores that support the background
// sweep: re-delivering claims abandoned by a crashed worker and expiring
// aged tasks and unread responses.
type TaskJanitor interface {
	// RequeueClaimedTasks moves tasks claimed before the cutoff back to
	// pending and returns how many moved. The cutoff must exceed the
	// worst-case execution time or a slow task runs twice.
	RequeueClaimedTasks(ctx context.Context, claimedBefore time.Time) (int, error)

	// ExpireTasks deletes pending and claimed tasks created before the
	// cutoff. An expired task never executes and never answers.
	ExpireTasks(ctx context.Context, createdBefore time.Time) (int, error)

	// ExpireResponses deletes unread responses written before the cutoff,
	// left behind by callers that timed out.
	ExpireResponses(ctx context.Context, writtenBefore time.Time) (int, error)
}

// ProfileCapStore caches the profile owner-cap object ids discovered on
// chain.
type ProfileCapStore interface {
	GetProfileCap(ctx context.Context, profile string) (string, bool, error)
	SetProfileCap(ctx context.Context, profile, capID string) error
}
