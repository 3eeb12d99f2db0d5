// Package sqlitestore is the embedded-relational-store implementation
// of pkg/store.Store (spec §4.2), built on jmoiron/sqlx over SQLite —
// grounded on the teacher's repository.NewWorkflowRepository(db, logger)
// constructor shape (legacy/datastorage/workflow_repository_test.go).
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/state"
	"github.com/stewart-y/photopipeline/pkg/store"
)

// Open connects to the SQLite file at path, enabling foreign keys and
// a busy timeout so concurrent executors waiting on the same row don't
// immediately fail with SQLITE_BUSY.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errx.Wrap(errx.StorageFailed, "open sqlite database", err)
	}
	db.SetMaxOpenConns(1) // spec §5: serialize writes; SQLite has one writer anyway.
	return db, nil
}

// Store is the sqlx-backed implementation of store.Store.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New wraps an already-open database handle.
func New(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

var _ store.Store = (*Store)(nil)

func now() string { return time.Now().UTC().Format(rfc3339) }

func (s *Store) Create(ctx context.Context, sku, imageHash, theme, sourceURL string) (state.Job, bool, error) {
	if theme == "" {
		theme = "default"
	}

	existing, found, err := s.getBySKU(ctx, sku, imageHash, theme)
	if err != nil {
		return state.Job{}, false, err
	}
	if found {
		return existing, false, nil
	}

	id := uuid.NewString()
	ts := now()
	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs (
		id, sku, image_hash, theme, status, prior_status, attempt, created_at, updated_at, source_url,
		s3_bg_keys, s3_composite_keys, s3_derivative_keys, shopify_media_ids, step_durations_ms, provider_job_ids
	) VALUES (?, ?, ?, ?, ?, '', 0, ?, ?, ?, '[]', '[]', '[]', '[]', '{}', '{}')`,
		id, sku, imageHash, theme, state.StatusNew, ts, ts, sourceURL)
	if err != nil {
		// A concurrent insert may have won the race on the UNIQUE
		// constraint between our read and this write; the constraint,
		// not this check, is the deduplication authority (spec §4.2).
		if existing, found, gerr := s.getBySKU(ctx, sku, imageHash, theme); gerr == nil && found {
			return existing, false, nil
		}
		return state.Job{}, false, errx.Wrap(errx.StorageFailed, "insert job", err)
	}

	job, _, err := s.Get(ctx, id)
	return job, true, err
}

func (s *Store) getBySKU(ctx context.Context, sku, imageHash, theme string) (state.Job, bool, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE sku = ? AND image_hash = ? AND theme = ?`, sku, imageHash, theme)
	if err == sql.ErrNoRows {
		return state.Job{}, false, nil
	}
	if err != nil {
		return state.Job{}, false, errx.Wrap(errx.StorageFailed, "query job by sku/hash/theme", err)
	}
	job, err := row.toJob()
	return job, true, err
}

func (s *Store) Get(ctx context.Context, id string) (state.Job, bool, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return state.Job{}, false, nil
	}
	if err != nil {
		return state.Job{}, false, errx.Wrap(errx.StorageFailed, "query job by id", err)
	}
	job, err := row.toJob()
	return job, true, err
}

func (s *Store) List(ctx context.Context, filters store.ListFilters) ([]state.Job, error) {
	q := `SELECT * FROM jobs WHERE 1 = 1`
	var args []interface{}

	if len(filters.Status) > 0 {
		q += ` AND status IN (?)`
		q, args = expandIn(q, args, filters.Status)
	}
	if filters.SKU != "" {
		q += ` AND sku = ?`
		args = append(args, filters.SKU)
	}
	if filters.Theme != "" {
		q += ` AND theme = ?`
		args = append(args, filters.Theme)
	}
	q += ` ORDER BY created_at DESC`
	if filters.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filters.Limit)
		if filters.Offset > 0 {
			q += ` OFFSET ?`
			args = append(args, filters.Offset)
		}
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errx.Wrap(errx.StorageFailed, "list jobs", err)
	}

	jobs := make([]state.Job, 0, len(rows))
	for _, r := range rows {
		j, err := r.toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// expandIn rewrites a trailing "status IN (?)" placeholder into one
// placeholder per status, since the driver has no native slice
// binding. Kept local and tiny rather than pulling sqlx.In's rebind
// machinery for a single call site.
func expandIn(q string, args []interface{}, statuses []state.Status) (string, []interface{}) {
	placeholders := ""
	for i, st := range statuses {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, string(st))
	}
	return replaceLast(q, "(?)", "("+placeholders+")"), args
}

func replaceLast(s, old, new string) string {
	i := len(s) - len(old)
	for ; i >= 0; i-- {
		if s[i:i+len(old)] == old {
			return s[:i] + new + s[i+len(old):]
		}
	}
	return s
}

func (s *Store) UpdateStatus(ctx context.Context, id string, target state.Status, updates state.Updates) (state.Job, error) {
	var result state.Job
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		next, terr := state.Transition(current, target, updates, time.Now().UTC())
		if terr != nil {
			return terr
		}

		return writeJob(ctx, tx, next)
	})
	if err != nil {
		return state.Job{}, err
	}
	result, _, err = s.Get(ctx, id)
	return result, err
}

func (s *Store) SetArtifacts(ctx context.Context, id string, updates state.Updates) (state.Job, error) {
	var result state.Job
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		updates.apply(&next)
		next.UpdatedAt = time.Now().UTC()
		return writeJob(ctx, tx, next)
	})
	if err != nil {
		return state.Job{}, err
	}
	result, _, err = s.Get(ctx, id)
	return result, err
}

func (s *Store) IncrementAttempt(ctx context.Context, id string) (state.Job, error) {
	ts := now()
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET attempt = attempt + 1, updated_at = ? WHERE id = ?`, ts, id)
	if err != nil {
		return state.Job{}, errx.Wrap(errx.StorageFailed, "increment attempt", err)
	}
	job, _, err := s.Get(ctx, id)
	return job, err
}

func (s *Store) AddCost(ctx context.Context, id string, delta float64) error {
	if delta < 0 {
		return errx.New(errx.Unknown, "cost delta must not be negative")
	}
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET cost_usd = cost_usd + ?, updated_at = ? WHERE id = ?`, delta, now(), id)
	if err != nil {
		return errx.Wrap(errx.StorageFailed, "add cost", err)
	}
	return nil
}

func (s *Store) LeaseRunnable(ctx context.Context, limit int, owner string, ttl time.Duration) ([]state.Job, error) {
	var leased []state.Job
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		ts := time.Now().UTC()
		var rows []jobRow
		err := tx.SelectContext(ctx, &rows, `SELECT * FROM jobs
			WHERE status NOT IN (?, ?)
			AND (lease_until IS NULL OR lease_until < ?)
			ORDER BY created_at ASC
			LIMIT ?`, state.StatusDone, state.StatusFailed, ts.Format(rfc3339), limit)
		if err != nil {
			return errx.Wrap(errx.StorageFailed, "select leasable jobs", err)
		}

		leaseUntil := ts.Add(ttl).Format(rfc3339)
		for _, r := range rows {
			// The lease_until condition is repeated in the WHERE
			// clause here even though we just selected this row,
			// closing the race window against another process
			// leasing the same row between the SELECT and this
			// UPDATE (spec §4.6 concurrency invariant).
			res, err := tx.ExecContext(ctx, `UPDATE jobs SET lease_owner = ?, lease_until = ?, updated_at = ?
				WHERE id = ? AND (lease_until IS NULL OR lease_until < ?)`,
				owner, leaseUntil, ts.Format(rfc3339), r.ID, ts.Format(rfc3339))
			if err != nil {
				return errx.Wrap(errx.StorageFailed, "lease job", err)
			}
			affected, _ := res.RowsAffected()
			if affected == 0 {
				continue // lost the race to another worker
			}
			job, err := r.toJob()
			if err != nil {
				return err
			}
			job.LeaseOwner = &owner
			lu := ts.Add(ttl)
			job.LeaseUntil = &lu
			leased = append(leased, job)
		}
		return nil
	})
	return leased, err
}

func (s *Store) ReleaseLease(ctx context.Context, id, owner string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET lease_owner = NULL, lease_until = NULL, updated_at = ?
		WHERE id = ? AND lease_owner = ?`, now(), id, owner)
	if err != nil {
		return errx.Wrap(errx.StorageFailed, "release lease", err)
	}
	return nil
}

func (s *Store) Requeue(ctx context.Context, id string) (state.Job, error) {
	var result state.Job
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		next, rerr := state.Requeue(current, time.Now().UTC())
		if rerr != nil {
			return rerr
		}
		return writeJob(ctx, tx, next)
	})
	if err != nil {
		return state.Job{}, err
	}
	result, _, err = s.Get(ctx, id)
	return result, err
}

func (s *Store) CountDoneForSKU(ctx context.Context, sku string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM jobs WHERE sku = ? AND status = ?`, sku, state.StatusDone)
	if err != nil {
		return 0, errx.Wrap(errx.StorageFailed, "count done jobs for sku", err)
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	out := store.Stats{TotalByStatus: map[state.Status]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return out, errx.Wrap(errx.StorageFailed, "stats by status", err)
	}
	defer rows.Close()
	var total, failed int
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return out, err
		}
		out.TotalByStatus[state.Status(st)] = n
		total += n
		if state.Status(st) == state.StatusFailed {
			failed = n
		}
	}
	if total > 0 {
		out.FailureRate = float64(failed) / float64(total)
	}

	if err := s.db.GetContext(ctx, &out.TotalCostUSD, `SELECT COALESCE(SUM(cost_usd), 0) FROM jobs`); err != nil {
		return out, errx.Wrap(errx.StorageFailed, "total cost", err)
	}

	var avgSecs sql.NullFloat64
	err = s.db.GetContext(ctx, &avgSecs, `SELECT AVG(
		(julianday(completed_at) - julianday(created_at)) * 86400.0
	) FROM jobs WHERE status = ? AND completed_at IS NOT NULL`, state.StatusDone)
	if err != nil {
		return out, errx.Wrap(errx.StorageFailed, "avg duration", err)
	}
	if avgSecs.Valid {
		out.AvgDurationSecs = avgSecs.Float64
	}

	return out, nil
}

func (s *Store) getForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (state.Job, error) {
	var row jobRow
	err := tx.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return state.Job{}, errx.New(errx.Unknown, fmt.Sprintf("job %s not found", id))
	}
	if err != nil {
		return state.Job{}, errx.Wrap(errx.StorageFailed, "select job for update", err)
	}
	return row.toJob()
}

func writeJob(ctx context.Context, tx *sqlx.Tx, j state.Job) error {
	_, err := tx.ExecContext(ctx, `UPDATE jobs SET
		status = ?, prior_status = ?, attempt = ?, updated_at = ?, completed_at = ?,
		lease_owner = ?, lease_until = ?, source_url = ?,
		original_key = ?, cutout_key = ?, mask_key = ?,
		s3_bg_keys = ?, s3_composite_keys = ?, s3_derivative_keys = ?,
		manifest_key = ?, shopify_media_ids = ?,
		error_code = ?, error_message = ?, error_stack = ?,
		cost_usd = ?, step_durations_ms = ?, provider_job_ids = ?
		WHERE id = ?`,
		string(j.Status), string(j.PriorStatus), j.Attempt, j.UpdatedAt.Format(rfc3339), nullableTime(j.CompletedAt),
		nullableStr(j.LeaseOwner), nullableTime(j.LeaseUntil), j.SourceURL,
		j.OriginalKey, j.CutoutKey, j.MaskKey,
		marshalList(j.BackgroundKeys), marshalList(j.CompositeKeys), marshalList(j.DerivativeKeys),
		j.ManifestKey, marshalList(j.ShopifyMediaIDs),
		string(j.ErrorCode), j.ErrorMessage, nullableStr(j.ErrorStack),
		j.CostUSD, marshalMapInt(j.StepDurationsMs), marshalMapStr(j.ProviderJobIDs),
		j.ID)
	if err != nil {
		return errx.Wrap(errx.StorageFailed, "write job", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(errx.StorageFailed, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errx.Wrap(errx.StorageFailed, "commit transaction", err)
	}
	return nil
}
