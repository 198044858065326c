// Package redis implements the task queue bridge on Redis: a list of pending
// tasks plus a per-task response mailbox with delete-on-read semantics.
// Lease records stay in the relational store; only the task hand-off is
// offloaded here.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/MoveSocial/social_layer/internal/app/domain/task"
	"github.com/MoveSocial/social_layer/internal/app/storage"
)

const (
	pendingKey    = "sponsor:tasks:pending"
	claimedKey    = "sponsor:tasks:claimed"
	claimedAtKey  = "sponsor:tasks:claimed_at"
	responsePrefx = "sponsor:tasks:response:"
)

// responseTTL bounds how long an unread response survives an abandoned
// caller.
const responseTTL = 10 * time.Minute

// claimScript pops the oldest pending task and records it as claimed in one
// atomic step, so a crash mid-claim cannot lose the popped task.
// KEYS: pending list, claimed hash, claim-time hash. ARGV: claim unix time.
var claimScript = redis.NewScript(`
local raw = redis.call('RPOP', KEYS[1])
if not raw then
	return false
end
local id = cjson.decode(raw)['id']
redis.call('HSET', KEYS[2], id, raw)
redis.call('HSET', KEYS[3], id, ARGV[1])
return raw
`)

// requeueScript moves one claimed task back to the pending list, again as a
// single step. KEYS: claimed hash, claim-time hash, pending list. ARGV: id.
var requeueScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then
	return 0
end
redis.call('RPUSH', KEYS[3], raw)
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return 1
`)

// Store implements storage.TaskStore on a Redis connection.
type Store struct {
	rdb *redis.Client
}

var _ storage.TaskStore = (*Store)(nil)
var _ storage.TaskJanitor = (*Store)(nil)

// New creates a task store over the given client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Open connects to the given address and verifies the connection.
func Open(ctx context.Context, addr string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return New(rdb), nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) CreateTask(ctx context.Context, t task.Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.rdb.LPush(ctx, pendingKey, raw).Err()
}

func (s *Store) ClaimTask(ctx context.Context) (task.Task, bool, error) {
	// The claimed record sticks around until the response is written so a
	// crashed worker leaves evidence for the re-queue sweep.
	raw, err := claimScript.Run(ctx, s.rdb,
		[]string{pendingKey, claimedKey, claimedAtKey},
		time.Now().UTC().Unix(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return task.Task{}, false, nil
	}
	if err != nil {
		return task.Task{}, false, err
	}

	var t task.Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return task.Task{}, false, fmt.Errorf("decode claimed task: %w", err)
	}
	return t, true, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if err := s.rdb.HDel(ctx, claimedKey, id).Err(); err != nil {
		return err
	}
	return s.rdb.HDel(ctx, claimedAtKey, id).Err()
}

func (s *Store) PutResponse(ctx context.Context, id string, resp task.Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, responsePrefx+id, raw, responseTTL).Err()
}

func (s *Store) TakeResponse(ctx context.Context, id string) (task.Response, bool, error) {
	raw, err := s.rdb.GetDel(ctx, responsePrefx+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return task.Response{}, false, nil
	}
	if err != nil {
		return task.Response{}, false, err
	}

	var resp task.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return task.Response{}, false, fmt.Errorf("decode response: %w", err)
	}
	return resp, true, nil
}

func (s *Store) RequeueClaimedTasks(ctx context.Context, claimedBefore time.Time) (int, error) {
	claimTimes, err := s.rdb.HGetAll(ctx, claimedAtKey).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for id, rawTime := range claimTimes {
		claimedAt, err := strconv.ParseInt(rawTime, 10, 64)
		if err != nil {
			return moved, fmt.Errorf("decode claim time for task %s: %w", id, err)
		}
		if !time.Unix(claimedAt, 0).Before(claimedBefore) {
			continue
		}
		n, err := requeueScript.Run(ctx, s.rdb, []string{claimedKey, claimedAtKey, pendingKey}, id).Int()
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

func (s *Store) ExpireTasks(ctx context.Context, createdBefore time.Time) (int, error) {
	expired := 0

	pending, err := s.rdb.LRange(ctx, pendingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	for _, raw := range pending {
		var t task.Task
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return expired, fmt.Errorf("decode pending task: %w", err)
		}
		if !t.CreatedAt.Before(createdBefore) {
			continue
		}
		n, err := s.rdb.LRem(ctx, pendingKey, 1, raw).Result()
		if err != nil {
			return expired, err
		}
		expired += int(n)
	}

	claimed, err := s.rdb.HGetAll(ctx, claimedKey).Result()
	if err != nil {
		return expired, err
	}
	for id, raw := range claimed {
		var t task.Task
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return expired, fmt.Errorf("decode claimed task %s: %w", id, err)
		}
		if !t.CreatedAt.Before(createdBefore) {
			continue
		}
		if err := s.DeleteTask(ctx, id); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// ExpireResponses is a no-op: responses carry a TTL and Redis expires them
// on its own.
func (s *Store) ExpireResponses(context.Context, time.Time) (int, error) {
	return 0, nil
}
