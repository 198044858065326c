// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MoveSocial/social_layer/internal/app/domain/gas"
	"github.com/MoveSocial/social_layer/internal/app/domain/task"
	"github.com/MoveSocial/social_layer/internal/app/storage"
)

// Store implements every storage interface in memory.
type Store struct {
	mu          sync.Mutex
	leases      map[string]gas.Lease
	pending     []task.Task
	claimed     map[string]claimedTask
	responses   map[string]mailboxEntry
	profileCaps map[string]string
	taskHints   chan struct{}
}

type claimedTask struct {
	task      task.Task
	claimedAt time.Time
}

type mailboxEntry struct {
	resp      task.Response
	writtenAt time.Time
}

var _ storage.GasLeaseStore = (*Store)(nil)
var _ storage.TaskStore = (*Store)(nil)
var _ storage.TaskNotifier = (*Store)(nil)
var _ storage.TaskJanitor = (*Store)(nil)
var _ storage.ProfileCapStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		leases:      make(map[string]gas.Lease),
		claimed:     make(map[string]claimedTask),
		responses:   make(map[string]mailboxEntry),
		profileCaps: make(map[string]string),
		taskHints:   make(chan struct{}, 1),
	}
}

// GasLeaseStore implementation ------------------------------------------------

func (s *Store) BorrowLease(_ context.Context) (gas.Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.leases) == 0 {
		return gas.Lease{}, false, nil
	}

	ids := make([]string, 0, len(s.leases))
	for id := range s.leases {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.leases[ids[i]], s.leases[ids[j]]
		if a.LastUsed.Equal(b.LastUsed) {
			return ids[i] < ids[j]
		}
		return a.LastUsed.Before(b.LastUsed)
	})

	lease := s.leases[ids[0]]
	delete(s.leases, ids[0])
	return lease, true, nil
}

func (s *Store) ReturnLease(_ context.Context, lease gas.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lease.LastUsed = time.Now().UTC()
	s.leases[lease.ObjectID] = lease
	return nil
}

func (s *Store) CountLeases(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leases), nil
}

func (s *Store) ReplaceLeases(_ context.Context, leases []gas.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leases = make(map[string]gas.Lease, len(leases))
	now := time.Now().UTC()
	for _, lease := range leases {
		if lease.LastUsed.IsZero() {
			lease.LastUsed = now
		}
		s.leases[lease.ObjectID] = lease
	}
	return nil
}

// TaskStore implementation ----------------------------------------------------

func (s *Store) CreateTask(_ context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		return fmt.Errorf("task id required")
	}
	for _, existing := range s.pending {
		if existing.ID == t.ID {
			return fmt.Errorf("task %s already pending", t.ID)
		}
	}
	if _, ok := s.claimed[t.ID]; ok {
		return fmt.Errorf("task %s already claimed", t.ID)
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.pending = append(s.pending, t)

	select {
	case s.taskHints <- struct{}{}:
	default:
	}
	return nil
}

func (s *Store) ClaimTask(_ context.Context) (task.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return task.Task{}, false, nil
	}

	t := s.pending[0]
	s.pending = s.pending[1:]
	s.claimed[t.ID] = claimedTask{task: t, claimedAt: time.Now().UTC()}
	return t, true, nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claimed, id)
	for i, t := range s.pending {
		if t.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) PutResponse(_ context.Context, id string, resp task.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.responses[id] = mailboxEntry{resp: resp, writtenAt: time.Now().UTC()}
	return nil
}

func (s *Store) TakeResponse(_ context.Context, id string) (task.Response, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.responses[id]
	if !ok {
		return task.Response{}, false, nil
	}
	delete(s.responses, id)
	return entry.resp, true, nil
}

// TaskCreated implements storage.TaskNotifier.
func (s *Store) TaskCreated() <-chan struct{} { return s.taskHints }

// TaskJanitor implementation ---------------------------------------------------

func (s *Store) RequeueClaimedTasks(_ context.Context, claimedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := 0
	for id, claimed := range s.claimed {
		if claimed.claimedAt.Before(claimedBefore) {
			delete(s.claimed, id)
			s.pending = append(s.pending, claimed.task)
			moved++
		}
	}
	if moved > 0 {
		select {
		case s.taskHints <- struct{}{}:
		default:
		}
	}
	return moved, nil
}

func (s *Store) ExpireTasks(_ context.Context, createdBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	kept := s.pending[:0]
	for _, t := range s.pending {
		if t.CreatedAt.Before(createdBefore) {
			expired++
			continue
		}
		kept = append(kept, t)
	}
	s.pending = kept

	for id, claimed := range s.claimed {
		if claimed.task.CreatedAt.Before(createdBefore) {
			delete(s.claimed, id)
			expired++
		}
	}
	return expired, nil
}

func (s *Store) ExpireResponses(_ context.Context, writtenBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, entry := range s.responses {
		if entry.writtenAt.Before(writtenBefore) {
			delete(s.responses, id)
			expired++
		}
	}
	return expired, nil
}

// ProfileCapStore implementation ----------------------------------------------

func (s *Store) GetProfileCap(_ context.Context, profile string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capID, ok := s.profileCaps[profile]
	return capID, ok, nil
}

func (s *Store) SetProfileCap(_ context.Context, profile, capID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profileCaps[profile] = capID
	return nil
}
