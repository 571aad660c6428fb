package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/martinemde/stepagent/internal/sqlitedb"
)

// JobStatus is the lifecycle state of a queued query.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobStarted  JobStatus = "started"
	JobFinished JobStatus = "finished"
	JobFailed   JobStatus = "failed"
)

// Job is a queued query and, once processed, its answer.
type Job struct {
	ID        string    `json:"job_id"`
	Query     string    `json:"query"`
	Status    JobStatus `json:"status"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("retrieval: job not found")

const queueSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	status TEXT NOT NULL,
	result TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);
`

// Handler processes a single query.
type Handler func(ctx context.Context, query string) (string, error)

// Queue is a durable FIFO of queries backed by SQLite.
type Queue struct {
	db     *sql.DB
	logger *slog.Logger
	wake   chan struct{}
	poll   time.Duration
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the queue's logger.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithPollInterval sets how often idle workers look for jobs enqueued by
// other processes.
func WithPollInterval(d time.Duration) QueueOption {
	return func(q *Queue) { q.poll = d }
}

// OpenQueue opens the queue database at path. Jobs left started by a
// previous process are returned to the queue.
func OpenQueue(ctx context.Context, path string, opts ...QueueOption) (*Queue, error) {
	db, err := sqlitedb.Open(ctx, path, queueSchema)
	if err != nil {
		return nil, err
	}
	q := &Queue{
		db:     db,
		logger: slog.New(slog.DiscardHandler),
		wake:   make(chan struct{}, 1),
		poll:   time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	if _, err := db.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE status = ?`, JobQueued, JobStarted); err != nil {
		db.Close()
		return nil, fmt.Errorf("requeue started jobs: %w", err)
	}
	return q, nil
}

// Close closes the database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue adds query to the queue.
func (q *Queue) Enqueue(ctx context.Context, query string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{ID: uuid.NewString(), Query: query, Status: JobQueued, CreatedAt: now, UpdatedAt: now}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO jobs (id, query, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.Query, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	q.logger.Info("job enqueued", "job_id", job.ID)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return job, nil
}

// Status returns the job with id.
func (q *Queue) Status(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := q.db.QueryRowContext(ctx,
		`SELECT id, query, status, result, error, created_at, updated_at FROM jobs WHERE id = ?`, id).
		Scan(&job.ID, &job.Query, &job.Status, &job.Result, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	return &job, nil
}

// claim marks the oldest queued job started and returns it, or nil when
// the queue is empty.
func (q *Queue) claim(ctx context.Context) (*Job, error) {
	var job Job
	err := q.db.QueryRowContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1)
		RETURNING id, query, status, created_at, updated_at`,
		JobStarted, time.Now().UTC(), JobQueued).
		Scan(&job.ID, &job.Query, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

func (q *Queue) complete(ctx context.Context, id, result string, jobErr error) error {
	status, errText := JobFinished, ""
	if jobErr != nil {
		status, errText = JobFailed, jobErr.Error()
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, result, errText, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// ProcessNext runs handler on the oldest queued job. It reports whether a
// job was processed.
func (q *Queue) ProcessNext(ctx context.Context, handler Handler) (bool, error) {
	job, err := q.claim(ctx)
	if err != nil || job == nil {
		return false, err
	}

	logger := q.logger.With("job_id", job.ID)
	logger.Info("job started")
	result, jobErr := handler(ctx, job.Query)
	if jobErr != nil {
		logger.Warn("job failed", "error", jobErr)
	} else {
		logger.Info("job finished")
	}

	// Record the outcome even if ctx was cancelled mid-job.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return true, q.complete(recordCtx, job.ID, result, jobErr)
}

// RunWorkers processes jobs with n concurrent workers until ctx is done.
func (q *Queue) RunWorkers(ctx context.Context, n int, handler Handler) error {
	if n <= 0 {
		n = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return q.worker(gCtx, handler)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (q *Queue) worker(ctx context.Context, handler Handler) error {
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		for {
			processed, err := q.ProcessNext(ctx, handler)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			if !processed {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		case <-ticker.C:
		}
	}
}
