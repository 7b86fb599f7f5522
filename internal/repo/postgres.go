package repo

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/analytics"
	"github.com/HamedShams/portfolio-pulse/internal/config"
	"github.com/HamedShams/portfolio-pulse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schema string

var ErrNoSnapshot = errors.New("repo: no snapshot stored")

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(ctx2); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

// Migrate applies the embedded schema; every statement is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

// WithAdvisoryLock runs fn while holding a session advisory lock. Lock and
// unlock share one pooled connection because the lock is per session. It
// reports false without running fn when another session holds the lock.
func (r *Repository) WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) (bool, error) {
	conn, err := r.db.Pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		var unlocked bool
		if err := conn.QueryRow(context.Background(), "SELECT pg_advisory_unlock($1)", key).Scan(&unlocked); err != nil || !unlocked {
			r.log.Warn().Err(err).Int64("key", key).Msg("advisory unlock failed")
		}
	}()
	return true, fn(ctx)
}

// SaveSnapshot stores the snapshot as one JSONB document and assigns an id
// when the caller did not.
func (r *Repository) SaveSnapshot(ctx context.Context, s *domain.Snapshot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.TakenAt.IsZero() {
		s.TakenAt = time.Now().UTC()
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	const q = `INSERT INTO snapshots(id, taken_at, source, epic_count, payload) VALUES($1,$2,$3,$4,$5)`
	if _, err := r.db.Pool.Exec(ctx, q, s.ID, s.TakenAt, s.Source, len(s.Epics), payload); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	r.log.Info().Str("snapshot", s.ID).Int("epics", len(s.Epics)).Msg("snapshot saved")
	return nil
}

func (r *Repository) LatestSnapshot(ctx context.Context) (domain.Snapshot, error) {
	const q = `SELECT payload FROM snapshots ORDER BY taken_at DESC, created_at DESC LIMIT 1`
	var payload []byte
	if err := r.db.Pool.QueryRow(ctx, q).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, ErrNoSnapshot
		}
		return domain.Snapshot{}, err
	}
	var s domain.Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

type ForecastRun struct {
	ID         string                   `json:"id"`
	SnapshotID string                   `json:"snapshotId"`
	CreatedAt  time.Time                `json:"createdAt"`
	Report     analytics.ForecastReport `json:"report"`
}

func (r *Repository) SaveForecastRun(ctx context.Context, run *ForecastRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	report, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("encode forecast: %w", err)
	}
	var snapshotID *string
	if run.SnapshotID != "" {
		snapshotID = &run.SnapshotID
	}
	const q = `INSERT INTO forecast_runs(id, snapshot_id, created_at, remaining, simulations, report) VALUES($1,$2,$3,$4,$5,$6)`
	_, err = r.db.Pool.Exec(ctx, q, run.ID, snapshotID, run.CreatedAt, run.Report.RemainingItems, run.Report.Simulations, report)
	return err
}

func (r *Repository) ListForecastRuns(ctx context.Context, limit int) ([]ForecastRun, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT id::text, coalesce(snapshot_id::text, ''), created_at, report
		FROM forecast_runs ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ForecastRun, 0, limit)
	for rows.Next() {
		var (
			run    ForecastRun
			report []byte
		)
		if err := rows.Scan(&run.ID, &run.SnapshotID, &run.CreatedAt, &report); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(report, &run.Report); err != nil {
			return nil, fmt.Errorf("decode forecast %s: %w", run.ID, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Job runs
func (r *Repository) StartJobRun(ctx context.Context, job string) (int64, error) {
	const q = `INSERT INTO job_runs(job, started_at, success) VALUES($1, now(), false) RETURNING id`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, q, job).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, epics int, runErr error) error {
	errStr := ""
	if runErr != nil {
		errStr = runErr.Error()
	}
	const q = `UPDATE job_runs SET finished_at=now(), epics=$2, success=$3, error=$4 WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id, epics, runErr == nil, errStr)
	return err
}

type JobRun struct {
	Job        string     `json:"job"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
	Epics      int        `json:"epics"`
	Success    bool       `json:"success"`
	Error      string     `json:"error"`
}

// LastRuns returns the most recent run of each job.
func (r *Repository) LastRuns(ctx context.Context) ([]JobRun, error) {
	const q = `SELECT DISTINCT ON (job) job, started_at, finished_at, epics, success, error
		FROM job_runs ORDER BY job, id DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRun
	for rows.Next() {
		var jr JobRun
		if err := rows.Scan(&jr.Job, &jr.StartedAt, &jr.FinishedAt, &jr.Epics, &jr.Success, &jr.Error); err != nil {
			return nil, err
		}
		out = append(out, jr)
	}
	return out, rows.Err()
}
