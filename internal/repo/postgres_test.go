package repo

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/analytics"
	"github.com/HamedShams/portfolio-pulse/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"snapshots", "forecast_runs", "job_runs"} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema lacks table %s", table)
		}
	}
}

// openTestRepo connects to PORTFOLIO_PULSE_TEST_DSN; the test is skipped
// without it.
func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("PORTFOLIO_PULSE_TEST_DSN")
	if dsn == "" {
		t.Skip("PORTFOLIO_PULSE_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	db := &DB{Pool: pool, log: zerolog.Nop()}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE forecast_runs, snapshots, job_runs"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewRepository(db, zerolog.Nop())
}

func TestRepository_SnapshotRoundTrip(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()

	if _, err := r.LatestSnapshot(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	older := &domain.Snapshot{TakenAt: time.Now().Add(-time.Hour).UTC(), Source: "push", Epics: []domain.Epic{{Key: "OLD"}}}
	newer := &domain.Snapshot{TakenAt: time.Now().UTC(), Source: "jira", Epics: []domain.Epic{{Key: "NEW"}}}
	for _, s := range []*domain.Snapshot{older, newer} {
		if err := r.SaveSnapshot(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := r.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.ID != newer.ID || got.Epics[0].Key != "NEW" {
		t.Fatalf("unexpected latest %+v", got)
	}

	run := &ForecastRun{SnapshotID: newer.ID, Report: analytics.ForecastReport{RemainingItems: 4, Simulations: 100}}
	if err := r.SaveForecastRun(ctx, run); err != nil {
		t.Fatalf("save forecast: %v", err)
	}
	runs, err := r.ListForecastRuns(ctx, 5)
	if err != nil || len(runs) != 1 || runs[0].Report.RemainingItems != 4 {
		t.Fatalf("unexpected runs %+v %v", runs, err)
	}
}

func TestRepository_AdvisoryLock(t *testing.T) {
	r := openTestRepo(t)
	ctx := context.Background()
	ran := false
	ok, err := r.WithAdvisoryLock(ctx, 77, func(ctx context.Context) error {
		inner, err := r.WithAdvisoryLock(ctx, 77, func(context.Context) error {
			t.Fatal("a second session must not get the lock")
			return nil
		})
		if err != nil || inner {
			t.Fatalf("inner lock: %v %v", inner, err)
		}
		ran = true
		return nil
	})
	if err != nil || !ok || !ran {
		t.Fatalf("lock: %v %v %v", ok, err, ran)
	}
}
