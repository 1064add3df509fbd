package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrNoJob is returned by Claim when no runnable job is due.
var ErrNoJob = errors.New("no runnable job")

// DefaultMaxAttempts is the retry ceiling for transient failures.
const DefaultMaxAttempts = 3

// Broker is the durable queue. It shares the store's SQLite database so
// delivery state survives restarts.
type Broker struct {
	db          *sql.DB
	logger      *slog.Logger
	backoffBase time.Duration
}

// BrokerConfig configures a broker.
type BrokerConfig struct {
	DB     *sql.DB
	Logger *slog.Logger

	// BackoffBase is the first retry delay; each further attempt
	// doubles it. Defaults to 2s.
	BackoffBase time.Duration
}

// NewBroker creates a broker over an opened store database.
func NewBroker(cfg BrokerConfig) *Broker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = 2 * time.Second
	}
	return &Broker{db: cfg.DB, logger: logger, backoffBase: base}
}

// JobSpec describes one job to enqueue.
type JobSpec struct {
	Type    string
	Payload any
}

// Enqueue inserts one runnable job and returns its id.
func (b *Broker) Enqueue(ctx context.Context, spec JobSpec) (string, error) {
	raw, err := marshalPayload(spec.Payload)
	if err != nil {
		return "", err
	}
	if err := ValidatePayload(spec.Type, raw); err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO jobs (id, job_type, status, payload, max_attempts, not_before, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, spec.Type, string(StatusQueued), string(raw), DefaultMaxAttempts, now, now, now)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", spec.Type, err)
	}
	b.logger.Info("job enqueued", "job_id", id, "type", spec.Type)
	return id, nil
}

// EnqueueGraph inserts a set of child jobs plus one parent that becomes
// runnable only after every child has settled (completed or failed).
// This is the join/barrier behind the finalization reconciler: settled,
// not succeeded, is the trigger condition.
func (b *Broker) EnqueueGraph(ctx context.Context, parent JobSpec, children []JobSpec) (string, error) {
	if len(children) == 0 {
		return "", errors.New("job graph requires at least one child")
	}

	parentRaw, err := marshalPayload(parent.Payload)
	if err != nil {
		return "", err
	}
	if err := ValidatePayload(parent.Type, parentRaw); err != nil {
		return "", err
	}
	childRaws := make([]json.RawMessage, len(children))
	for i, c := range children {
		raw, err := marshalPayload(c.Payload)
		if err != nil {
			return "", err
		}
		if err := ValidatePayload(c.Type, raw); err != nil {
			return "", err
		}
		childRaws[i] = raw
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin graph tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	parentID := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, job_type, status, payload, max_attempts, not_before, pending_children, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		parentID, parent.Type, string(StatusWaiting), string(parentRaw),
		DefaultMaxAttempts, now, len(children), now, now)
	if err != nil {
		return "", fmt.Errorf("enqueue parent %s: %w", parent.Type, err)
	}

	for i, c := range children {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO jobs (id, job_type, status, payload, max_attempts, not_before, parent_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), c.Type, string(StatusQueued), string(childRaws[i]),
			DefaultMaxAttempts, now, parentID, now, now)
		if err != nil {
			return "", fmt.Errorf("enqueue child %s: %w", c.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit graph: %w", err)
	}
	b.logger.Info("job graph enqueued", "parent_id", parentID, "parent_type", parent.Type, "children", len(children))
	return parentID, nil
}

// Claim atomically claims the oldest runnable job of the given type.
// Returns ErrNoJob when nothing is due.
func (b *Broker) Claim(ctx context.Context, jobType string) (*Record, error) {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT id, job_type, status, payload, attempts, max_attempts, not_before,
		        COALESCE(parent_id, ''), pending_children, error, created_at, updated_at
		 FROM jobs
		 WHERE job_type = ? AND status = ? AND not_before <= ?
		 ORDER BY created_at
		 LIMIT 1`,
		jobType, string(StatusQueued), nowStr)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = attempts + 1, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusRunning), nowStr, rec.ID, string(StatusQueued))
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNoJob
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	rec.Status = StatusRunning
	rec.Attempts++
	// Payload shape is revalidated on the way out: the queue is durable
	// state and may have been written by an older binary.
	if err := ValidatePayload(rec.Type, rec.Payload); err != nil {
		return nil, errors.Join(err, b.finalizeFailure(ctx, rec, err.Error()))
	}
	return rec, nil
}

// Complete marks a job successful and settles its parent gate. Only a
// running job can complete; if a reclaim already resettled the job the
// call is a no-op so the parent gate is never decremented twice.
func (b *Broker) Complete(ctx context.Context, jobID string) error {
	rec, err := b.Get(ctx, jobID)
	if err != nil {
		return err
	}
	res, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = '', updated_at = ? WHERE id = ? AND status = ?`,
		string(StatusCompleted), time.Now().UTC().Format(time.RFC3339Nano), jobID, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("complete %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		b.logger.Warn("job outcome already recorded, ignoring completion", "job_id", jobID)
		return nil
	}
	return b.settleParent(ctx, rec.ParentID)
}

// Fail records a failure. Retryable failures under the attempt ceiling
// are requeued with exponential backoff; anything else settles the job
// as failed (which still releases the parent gate).
func (b *Broker) Fail(ctx context.Context, jobID, errMsg string, retryable bool) error {
	rec, err := b.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if retryable && rec.Attempts < rec.MaxAttempts {
		delay := b.backoffBase << (rec.Attempts - 1)
		notBefore := time.Now().UTC().Add(delay)
		_, err = b.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, error = ?, not_before = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(StatusQueued), errMsg,
			notBefore.Format(time.RFC3339Nano),
			time.Now().UTC().Format(time.RFC3339Nano), jobID, string(StatusRunning))
		if err != nil {
			return fmt.Errorf("requeue %s: %w", jobID, err)
		}
		b.logger.Warn("job requeued", "job_id", jobID, "type", rec.Type,
			"attempt", rec.Attempts, "retry_in", delay, "error", errMsg)
		return nil
	}

	return b.finalizeFailure(ctx, rec, errMsg)
}

func (b *Broker) finalizeFailure(ctx context.Context, rec *Record, errMsg string) error {
	res, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(StatusFailed), errMsg, time.Now().UTC().Format(time.RFC3339Nano), rec.ID, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("fail %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		b.logger.Warn("job outcome already recorded, ignoring failure", "job_id", rec.ID)
		return nil
	}
	b.logger.Error("job failed", "job_id", rec.ID, "type", rec.Type, "error", errMsg)
	return b.settleParent(ctx, rec.ParentID)
}

// staleJobError is recorded on a reclaimed job that has no attempts left.
const staleJobError = "worker lost before recording an outcome"

// ReclaimStale returns jobs stuck in running since before cutoff to the
// queue. A worker that dies between Claim and its outcome write (crash,
// kill, power loss) otherwise strands its job forever, and a stranded
// child keeps its parent gated for good. Attempts are counted at claim,
// so the retry ceiling still holds: a stale job with no attempts left
// settles as failed instead, releasing the parent gate, and those
// records are returned so the caller can run exhaustion cleanup. The
// cutoff must predate every claim a live worker may still hold.
func (b *Broker) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, []*Record, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, job_type, status, payload, attempts, max_attempts, not_before,
		        COALESCE(parent_id, ''), pending_children, error, created_at, updated_at
		 FROM jobs WHERE status = ? AND updated_at < ? ORDER BY created_at`,
		string(StatusRunning), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, nil, fmt.Errorf("list stale jobs: %w", err)
	}
	var stale []*Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			rows.Close()
			return 0, nil, scanErr
		}
		stale = append(stale, rec)
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return 0, nil, fmt.Errorf("list stale jobs: %w", rowsErr)
	}

	var requeued int64
	var failed []*Record
	for _, rec := range stale {
		if rec.Attempts >= rec.MaxAttempts {
			if err := b.finalizeFailure(ctx, rec, staleJobError); err != nil {
				return requeued, failed, err
			}
			rec.Status = StatusFailed
			rec.Error = staleJobError
			failed = append(failed, rec)
			continue
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := b.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, not_before = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			string(StatusQueued), now, now, rec.ID, string(StatusRunning))
		if err != nil {
			return requeued, failed, fmt.Errorf("reclaim %s: %w", rec.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			requeued++
			b.logger.Warn("stale job reclaimed", "job_id", rec.ID, "type", rec.Type, "attempt", rec.Attempts)
		}
	}
	return requeued, failed, nil
}

// settleParent decrements the parent's unsettled-children gate and makes
// the parent runnable once every child has settled.
func (b *Broker) settleParent(ctx context.Context, parentID string) error {
	if parentID == "" {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET pending_children = pending_children - 1, updated_at = ? WHERE id = ?`,
		now, parentID)
	if err != nil {
		return fmt.Errorf("settle parent %s: %w", parentID, err)
	}
	res, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, not_before = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND pending_children <= 0`,
		string(StatusQueued), now, now, parentID, string(StatusWaiting))
	if err != nil {
		return fmt.Errorf("release parent %s: %w", parentID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		b.logger.Info("job graph settled, parent released", "parent_id", parentID)
	}
	return nil
}

// Get returns one job record.
func (b *Broker) Get(ctx context.Context, jobID string) (*Record, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, job_type, status, payload, attempts, max_attempts, not_before,
		        COALESCE(parent_id, ''), pending_children, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, jobID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return rec, err
}

// ListByType returns all jobs of one type, oldest first.
func (b *Broker) ListByType(ctx context.Context, jobType string) ([]*Record, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, job_type, status, payload, attempts, max_attempts, not_before,
		        COALESCE(parent_id, ''), pending_children, error, created_at, updated_at
		 FROM jobs WHERE job_type = ? ORDER BY created_at`, jobType)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var status, payload, notBefore, createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.Type, &status, &payload, &rec.Attempts, &rec.MaxAttempts,
		&notBefore, &rec.ParentID, &rec.PendingChildren, &rec.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.Payload = json.RawMessage(payload)
	rec.NotBefore, _ = time.Parse(time.RFC3339Nano, notBefore)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}
