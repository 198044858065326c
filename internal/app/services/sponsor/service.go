// Package sponsor implements the delegated-transaction core: the task queue
// bridge between HTTP producers and the background worker, gas lease
// acquisition, transaction construction, and the pool rebalancer.
package sponsor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MoveSocial/social_layer/internal/app/domain/gas"
	"github.com/MoveSocial/social_layer/internal/app/domain/task"
	"github.com/MoveSocial/social_layer/internal/app/metrics"
	"github.com/MoveSocial/social_layer/internal/app/storage"
	"github.com/MoveSocial/social_layer/internal/chain"
	"github.com/MoveSocial/social_layer/internal/retry"
	"github.com/MoveSocial/social_layer/pkg/logger"
)

// ErrPoolExhausted is returned when no gas lease could be acquired within the
// retry budget. Clients should treat it as retryable.
var ErrPoolExhausted = errors.New("server busy, no gas coin available")

// ErrAwaitTimeout is returned when a task result did not arrive before the
// caller's deadline. It is distinct from a worker-reported failure.
var ErrAwaitTimeout = errors.New("timed out waiting for task result")

const (
	// DefaultGasCount is the target pool size after a rebalance.
	DefaultGasCount = 20
	// DefaultGasAmount is the base-unit size of each minted fee coin.
	DefaultGasAmount = 1 * chain.MistPerCoin

	// The borrow budget is deliberately large: the pool is small and shared
	// across all traffic, so waiting out a busy pool usually succeeds.
	defaultBorrowAttempts = 50
	defaultBorrowDelay    = 500 * time.Millisecond

	// Submission retries are small; repeated rejection is usually a real
	// fault. Profile creation is the exception: it contends on the shared
	// on-chain name index, so its budget matches the borrow budget.
	defaultSubmitAttempts       = 5
	createProfileSubmitAttempts = 50

	defaultAwaitTimeout = 90 * time.Second

	// cleanupTimeout bounds the bookkeeping writes that must survive
	// cancellation of the execution context.
	cleanupTimeout = 10 * time.Second
)

// detach returns a context for lease returns and mailbox writes that stays
// usable after ctx is cancelled. A cancelled execution must still put its
// lease back and record an outcome, or the pool shrinks and the task is
// stranded.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

// Submitter signs and submits an assembled transaction block.
type Submitter interface {
	Address() string
	SignAndExecute(ctx context.Context, block *chain.TransactionBlock, opts chain.ExecuteOptions) (*chain.TransactionResult, error)
}

// ObjectReader reads on-chain state owned by the custodial wallet.
type ObjectReader interface {
	GetAllCoins(ctx context.Context, owner string) ([]chain.ObjectRef, error)
	GetAllOwnedObjects(ctx context.Context, owner string) ([]chain.OwnedObject, error)
	GetDynamicFieldObject(ctx context.Context, parentID, name string) (*chain.ObjectData, error)
}

// Config carries the deployed-contract identifiers and tuning knobs.
type Config struct {
	// Packages lists the deployed social package ids; the first is the call
	// target, the rest are accepted when matching owned capability objects.
	Packages []string
	// AdminCap is the admin capability object passed to profile creation.
	AdminCap string
	// ProfileIndex is the shared index object profile creation registers in.
	ProfileIndex string
	// ProfileTable is the dynamic-field table mapping names to profiles.
	ProfileTable string

	GasCount  int
	GasAmount uint64

	BorrowAttempts int
	BorrowDelay    time.Duration
	AwaitTimeout   time.Duration
}

func (c *Config) withDefaults() {
	if c.GasCount == 0 {
		c.GasCount = DefaultGasCount
	}
	if c.GasAmount == 0 {
		c.GasAmount = DefaultGasAmount
	}
	if c.BorrowAttempts == 0 {
		c.BorrowAttempts = defaultBorrowAttempts
	}
	if c.BorrowDelay == 0 {
		c.BorrowDelay = defaultBorrowDelay
	}
	if c.AwaitTimeout == 0 {
		c.AwaitTimeout = defaultAwaitTimeout
	}
}

// Service is the delegated-transaction core.
type Service struct {
	tasks     storage.TaskStore
	leases    storage.GasLeaseStore
	caps      storage.ProfileCapStore
	submitter Submitter
	reader    ObjectReader
	cfg       Config
	log       *logger.Logger
}

// New constructs the sponsor service.
func New(tasks storage.TaskStore, leases storage.GasLeaseStore, caps storage.ProfileCapStore, submitter Submitter, reader ObjectReader, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("sponsor")
	}
	cfg.withDefaults()
	return &Service{
		tasks:     tasks,
		leases:    leases,
		caps:      caps,
		submitter: submitter,
		reader:    reader,
		cfg:       cfg,
		log:       log,
	}
}

// Enqueue appends a delegated action to the pending log and returns its task
// id without waiting for execution.
func (s *Service) Enqueue(ctx context.Context, action task.Action, payload task.Payload) (string, error) {
	t := task.Task{
		ID:        uuid.NewString(),
		Action:    action,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := t.Validate(); err != nil {
		return "", err
	}
	if err := s.tasks.CreateTask(ctx, t); err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return t.ID, nil
}

// AwaitResult polls the response mailbox for the task's outcome, backing off
// exponentially up to the configured deadline. The returned response may
// itself carry a worker-reported error; ErrAwaitTimeout means no response
// arrived at all.
func (s *Service) AwaitResult(ctx context.Context, taskID string) (task.Response, error) {
	deadline := time.Now().Add(s.cfg.AwaitTimeout)
	interval := 25 * time.Millisecond

	for {
		resp, ok, err := s.tasks.TakeResponse(ctx, taskID)
		if err != nil {
			return task.Response{}, fmt.Errorf("read task response: %w", err)
		}
		if ok {
			return resp, nil
		}

		if time.Now().After(deadline) {
			return task.Response{}, fmt.Errorf("task %s: %w", taskID, ErrAwaitTimeout)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return task.Response{}, ctx.Err()
		case <-timer.C:
		}

		if interval < time.Second {
			interval *= 2
		}
	}
}

// Execute runs one task to completion and shapes the outcome as a response.
// Submission is retried per the action's budget; the returned response is
// always either digest-bearing or error-bearing.
func (s *Service) Execute(ctx context.Context, t task.Task) task.Response {
	attempts := defaultSubmitAttempts
	if t.Action == task.ActionCreateProfile {
		attempts = createProfileSubmitAttempts
	}

	start := time.Now()
	result, err := retry.Do(ctx, retry.Options{Attempts: attempts}, func(ctx context.Context) (*chain.TransactionResult, error) {
		return s.executeTasks(ctx, []task.Task{t})
	})
	metrics.RecordTaskExecution(string(t.Action), time.Since(start), err == nil)

	if err != nil {
		s.log.WithError(err).WithField("task", t.ID).Warnf("task %s failed", t.Action)
		return task.Response{Error: err.Error()}
	}
	return task.Response{
		Digest:  result.Digest,
		Effects: result.Effects,
		Events:  result.Events,
	}
}

// executeTasks borrows one lease, assembles every task into a single
// transaction block sharing that lease as gas payment, and submits it. The
// lease is always disposed of exactly once: as chain change on success, or
// returned as-is on failure.
func (s *Service) executeTasks(ctx context.Context, tasks []task.Task) (*chain.TransactionResult, error) {
	borrowStart := time.Now()
	lease, err := retry.Do(ctx, retry.Options{Attempts: s.cfg.BorrowAttempts, Delay: s.cfg.BorrowDelay}, func(ctx context.Context) (gas.Lease, error) {
		lease, ok, err := s.leases.BorrowLease(ctx)
		if err != nil {
			return gas.Lease{}, err
		}
		if !ok {
			return gas.Lease{}, ErrPoolExhausted
		}
		return lease, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveBorrowWait(time.Since(borrowStart))

	block := chain.NewTransactionBlock()
	for _, t := range tasks {
		if err := s.appendCall(block, t); err != nil {
			// A malformed task burns no gas; give the lease straight back.
			if returnErr := s.giveBack(ctx, lease); returnErr != nil {
				s.log.WithError(returnErr).Warn("return lease after build failure")
			}
			return nil, err
		}
	}
	block.SetGasPayment(lease.Ref())

	result, err := s.submitter.SignAndExecute(ctx, block, chain.ExecuteOptions{ShowEffects: true, ShowEvents: true})
	if err != nil {
		// The lease's on-chain validity is now uncertain, but it is returned
		// anyway so the pool does not shrink on every failure; the next
		// borrower discovers staleness at submission time.
		if returnErr := s.giveBack(ctx, lease); returnErr != nil {
			s.log.WithError(returnErr).WithField("lease", lease.ObjectID).Error("return lease after failed submission")
		}
		return nil, err
	}

	if changeRef, ok := result.GasObjectRef(); ok {
		err = s.giveBack(ctx, gas.FromRef(changeRef))
	} else {
		s.log.WithField("digest", result.Digest).Warn("no gas object in effects; returning original lease")
		err = s.giveBack(ctx, lease)
	}
	if err != nil {
		// The submission is committed; failing the call here would make the
		// outer retry re-submit an already-applied action. The pool runs one
		// lease short until the next rebalance.
		s.log.WithError(err).WithField("digest", result.Digest).Error("return lease after confirmed submission")
	}

	return result, nil
}

// giveBack returns a lease on a context detached from ctx, so a cancelled
// execution never leaks its borrowed lease.
func (s *Service) giveBack(ctx context.Context, lease gas.Lease) error {
	returnCtx, cancel := detach(ctx)
	defer cancel()
	return s.leases.ReturnLease(returnCtx, lease)
}

// PoolSize reports the current lease count and refreshes the pool gauge.
func (s *Service) PoolSize(ctx context.Context) (int, error) {
	n, err := s.leases.CountLeases(ctx)
	if err != nil {
		return 0, err
	}
	metrics.SetGasPoolSize(n)
	return n, nil
}

// ProfileNameTaken reports whether the profile name is already registered in
// the on-chain profile table.
func (s *Service) ProfileNameTaken(ctx context.Context, name string) (bool, error) {
	if s.reader == nil {
		return false, fmt.Errorf("object reader not configured")
	}
	data, err := s.reader.GetDynamicFieldObject(ctx, s.cfg.ProfileTable, name)
	if err != nil {
		// An absent dynamic field surfaces as a not-found RPC error; treat
		// that as available. Any other node failure is a real error.
		var rpcErr *chain.RPCError
		if errors.As(err, &rpcErr) && rpcErr.NotFound() {
			return false, nil
		}
		return false, err
	}
	return data != nil && data.Content != nil, nil
}
