package sponsor

import (
	"context"
	"sync"
	"time"

	"github.com/MoveSocial/social_layer/internal/app/storage"
	"github.com/MoveSocial/social_layer/pkg/logger"
)

const (
	defaultSweepInterval = time.Minute

	// The claim timeout must exceed the worst-case execution time (full
	// borrow budget plus the create-profile submit budget), or a slow task
	// would be re-delivered while still running.
	defaultClaimTimeout = 10 * time.Minute

	defaultTaskMaxAge     = time.Hour
	defaultResponseMaxAge = 10 * time.Minute
)

// Sweeper periodically re-queues tasks whose worker died mid-execution and
// deletes tasks and responses past their maximum age. Without it a crashed
// claim stays stuck forever and responses abandoned by timed-out callers
// accumulate unboundedly.
type Sweeper struct {
	store storage.TaskJanitor
	log   *logger.Logger

	interval       time.Duration
	claimTimeout   time.Duration
	taskMaxAge     time.Duration
	responseMaxAge time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// SweeperOption tunes the sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides how often the sweep runs.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

// WithClaimTimeout overrides how long a claim may stay open before it is
// re-queued.
func WithClaimTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.claimTimeout = d }
}

// WithTaskMaxAge overrides the age past which a task is dropped unexecuted.
func WithTaskMaxAge(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.taskMaxAge = d }
}

// WithResponseMaxAge overrides the age past which an unread response is
// dropped.
func WithResponseMaxAge(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.responseMaxAge = d }
}

// NewSweeper constructs the task sweeper.
func NewSweeper(store storage.TaskJanitor, log *logger.Logger, opts ...SweeperOption) *Sweeper {
	if log == nil {
		log = logger.NewDefault("sponsor-sweeper")
	}
	s := &Sweeper{
		store:          store,
		log:            log,
		interval:       defaultSweepInterval,
		claimTimeout:   defaultClaimTimeout,
		taskMaxAge:     defaultTaskMaxAge,
		responseMaxAge: defaultResponseMaxAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements system.Service.
func (s *Sweeper) Name() string { return "sponsor-sweeper" }

// Start implements system.Service.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.run(runCtx)

	s.log.Info("task sweeper started")
	return nil
}

// Stop implements system.Service.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("task sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass: expired records first so they are not re-queued, then
// stuck claims back to pending.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	if n, err := s.store.ExpireTasks(ctx, now.Add(-s.taskMaxAge)); err != nil {
		s.log.WithError(err).Error("expire aged tasks")
	} else if n > 0 {
		s.log.WithField("count", n).Warn("dropped tasks past max age")
	}

	if n, err := s.store.ExpireResponses(ctx, now.Add(-s.responseMaxAge)); err != nil {
		s.log.WithError(err).Error("expire aged responses")
	} else if n > 0 {
		s.log.WithField("count", n).Info("dropped unread responses")
	}

	if n, err := s.store.RequeueClaimedTasks(ctx, now.Add(-s.claimTimeout)); err != nil {
		s.log.WithError(err).Error("requeue stuck claims")
	} else if n > 0 {
		s.log.WithField("count", n).Warn("re-queued tasks from dead claims")
	}
}
