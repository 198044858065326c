// Package postgres implements the storage interfaces backed by PostgreSQL.
//
// Atomicity of BorrowLease and ClaimTask comes from single-statement
// DELETE/UPDATE with a FOR UPDATE SKIP LOCKED subselect: concurrent callers
// contend on row locks inside the database rather than retrying in the
// application.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MoveSocial/social_layer/internal/app/domain/gas"
	"github.com/MoveSocial/social_layer/internal/app/domain/task"
	"github.com/MoveSocial/social_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.GasLeaseStore = (*Store)(nil)
var _ storage.TaskStore = (*Store)(nil)
var _ storage.TaskJanitor = (*Store)(nil)
var _ storage.ProfileCapStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the sponsor tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS gas_leases (
			object_id TEXT PRIMARY KEY,
			version   BIGINT NOT NULL,
			digest    TEXT NOT NULL,
			last_used TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sponsor_tasks (
			id         TEXT PRIMARY KEY,
			action     TEXT NOT NULL,
			payload    JSONB NOT NULL,
			status     TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL,
			claimed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS sponsor_task_responses (
			id         TEXT PRIMARY KEY,
			digest     TEXT,
			effects    JSONB,
			events     JSONB,
			error      TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS profile_caps (
			profile   TEXT PRIMARY KEY,
			owner_cap TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- GasLeaseStore ----------------------------------------------------------

func (s *Store) BorrowLease(ctx context.Context) (gas.Lease, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM gas_leases
		WHERE object_id = (
			SELECT object_id FROM gas_leases
			ORDER BY last_used, object_id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING object_id, version, digest, last_used
	`)

	var lease gas.Lease
	if err := row.Scan(&lease.ObjectID, &lease.Version, &lease.Digest, &lease.LastUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return gas.Lease{}, false, nil
		}
		return gas.Lease{}, false, err
	}
	return lease, true, nil
}

func (s *Store) ReturnLease(ctx context.Context, lease gas.Lease) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gas_leases (object_id, version, digest, last_used)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (object_id)
		DO UPDATE SET version = $2, digest = $3, last_used = $4
	`, lease.ObjectID, lease.Version, lease.Digest, time.Now().UTC())
	return err
}

func (s *Store) CountLeases(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gas_leases`).Scan(&count)
	return count, err
}

func (s *Store) ReplaceLeases(ctx context.Context, leases []gas.Lease) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM gas_leases`); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, lease := range leases {
		lastUsed := lease.LastUsed
		if lastUsed.IsZero() {
			lastUsed = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO gas_leases (object_id, version, digest, last_used)
			VALUES ($1, $2, $3, $4)
		`, lease.ObjectID, lease.Version, lease.Digest, lastUsed); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- TaskStore --------------------------------------------------------------

func (s *Store) CreateTask(ctx context.Context, t task.Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(t.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sponsor_tasks (id, action, payload, status, created_at)
		VALUES ($1, $2, $3, 'pending', $4)
	`, t.ID, string(t.Action), payloadJSON, t.CreatedAt)
	return err
}

func (s *Store) ClaimTask(ctx context.Context) (task.Task, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE sponsor_tasks
		SET status = 'running', claimed_at = now()
		WHERE id = (
			SELECT id FROM sponsor_tasks
			WHERE status = 'pending'
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, action, payload, created_at
	`)

	var (
		t          task.Task
		action     string
		payloadRaw []byte
	)
	if err := row.Scan(&t.ID, &action, &payloadRaw, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return task.Task{}, false, nil
		}
		return task.Task{}, false, err
	}

	t.Action = task.Action(action)
	if err := json.Unmarshal(payloadRaw, &t.Payload); err != nil {
		return task.Task{}, false, fmt.Errorf("decode task %s payload: %w", t.ID, err)
	}
	return t, true, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sponsor_tasks WHERE id = $1`, id)
	return err
}

func (s *Store) PutResponse(ctx context.Context, id string, resp task.Response) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sponsor_task_responses (id, digest, effects, events, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET digest = $2, effects = $3, events = $4, error = $5
	`, id, nullString(resp.Digest), nullBytes(resp.Effects), nullBytes(resp.Events), nullString(resp.Error), time.Now().UTC())
	return err
}

func (s *Store) TakeResponse(ctx context.Context, id string) (task.Response, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM sponsor_task_responses
		WHERE id = $1
		RETURNING digest, effects, events, error
	`, id)

	var (
		digest, errMsg  sql.NullString
		effects, events []byte
	)
	if err := row.Scan(&digest, &effects, &events, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return task.Response{}, false, nil
		}
		return task.Response{}, false, err
	}

	return task.Response{
		Digest:  digest.String,
		Effects: effects,
		Events:  events,
		Error:   errMsg.String,
	}, true, nil
}

// --- TaskJanitor ------------------------------------------------------------

func (s *Store) RequeueClaimedTasks(ctx context.Context, claimedBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sponsor_tasks
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'running' AND claimed_at < $1
	`, claimedBefore)
	if err != nil {
		return 0, err
	}
	return rowCount(res)
}

func (s *Store) ExpireTasks(ctx context.Context, createdBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sponsor_tasks WHERE created_at < $1
	`, createdBefore)
	if err != nil {
		return 0, err
	}
	return rowCount(res)
}

func (s *Store) ExpireResponses(ctx context.Context, writtenBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sponsor_task_responses WHERE created_at < $1
	`, writtenBefore)
	if err != nil {
		return 0, err
	}
	return rowCount(res)
}

func rowCount(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	return int(n), err
}

// --- ProfileCapStore --------------------------------------------------------

func (s *Store) GetProfileCap(ctx context.Context, profile string) (string, bool, error) {
	var capID string
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_cap FROM profile_caps WHERE profile = $1
	`, profile).Scan(&capID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return capID, true, nil
}

func (s *Store) SetProfileCap(ctx context.Context, profile, capID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_caps (profile, owner_cap)
		VALUES ($1, $2)
		ON CONFLICT (profile) DO UPDATE SET owner_cap = $2
	`, profile, capID)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
