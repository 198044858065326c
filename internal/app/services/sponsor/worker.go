package sponsor

import (
	"context"
	"sync"
	"time"

	"github.com/MoveSocial/social_layer/internal/app/domain/task"
	"github.com/MoveSocial/social_layer/internal/app/storage"
	"github.com/MoveSocial/social_layer/pkg/logger"
)

const (
	defaultPollInterval  = 100 * time.Millisecond
	defaultMaxConcurrent = 8
)

// Worker drains the pending task log in the background. It claims tasks one
// at a time and executes each on its own goroutine, bounded by a semaphore.
// Every claimed task ends with a response written before the task record is
// removed, so a crash between the two leaves a re-deliverable task rather
// than a lost one.
type Worker struct {
	svc      *Service
	store    storage.TaskStore
	notifier storage.TaskNotifier
	log      *logger.Logger

	pollInterval  time.Duration
	maxConcurrent int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// WorkerOption tunes the worker.
type WorkerOption func(*Worker)

// WithPollInterval overrides the claim poll interval.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollInterval = d }
}

// WithMaxConcurrent caps the number of tasks executing at once.
func WithMaxConcurrent(n int) WorkerOption {
	return func(w *Worker) { w.maxConcurrent = n }
}

// NewWorker constructs the task worker. notifier may be nil; the worker then
// relies on polling alone.
func NewWorker(svc *Service, store storage.TaskStore, notifier storage.TaskNotifier, log *logger.Logger, opts ...WorkerOption) *Worker {
	if log == nil {
		log = logger.NewDefault("sponsor-worker")
	}
	w := &Worker{
		svc:           svc,
		store:         store,
		notifier:      notifier,
		log:           log,
		pollInterval:  defaultPollInterval,
		maxConcurrent: defaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements system.Service.
func (w *Worker) Name() string { return "sponsor-worker" }

// Start implements system.Service.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.run(runCtx)

	w.log.Info("task worker started")
	return nil
}

// Stop implements system.Service. It waits for in-flight tasks to finish.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.log.Info("task worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	var hint <-chan struct{}
	if w.notifier != nil {
		hint = w.notifier.TaskCreated()
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.maxConcurrent)

	for {
		w.drain(ctx, sem)
		select {
		case <-ctx.Done():
			return
		case <-hint:
		case <-ticker.C:
		}
	}
}

// drain claims tasks until the log is empty or the semaphore is full.
func (w *Worker) drain(ctx context.Context, sem chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}

		t, ok, err := w.store.ClaimTask(ctx)
		if err != nil {
			<-sem
			if ctx.Err() == nil {
				w.log.WithError(err).Error("claim task")
			}
			return
		}
		if !ok {
			<-sem
			return
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-sem }()
			w.handle(ctx, t)
		}()
	}
}

// handle executes one claimed task. The response write precedes the task
// delete unconditionally, including on execution failure.
func (w *Worker) handle(ctx context.Context, t task.Task) {
	resp := w.svc.Execute(ctx, t)

	// The mailbox writes run detached from the run context: stopping the
	// worker mid-task must still record the outcome.
	writeCtx, cancel := detach(ctx)
	defer cancel()

	if err := w.store.PutResponse(writeCtx, t.ID, resp); err != nil {
		// Without a response the producer would wait out its full deadline;
		// the task stays claimed so the record is not silently dropped.
		w.log.WithError(err).WithField("task", t.ID).Error("write task response")
		return
	}
	if err := w.store.DeleteTask(writeCtx, t.ID); err != nil {
		w.log.WithError(err).WithField("task", t.ID).Warn("delete completed task")
	}
}
