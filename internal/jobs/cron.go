package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/config"
	"github.com/HamedShams/portfolio-pulse/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Advisory lock keys; one per job so refresh and digest never block each other.
const (
	refreshLockKey int64 = 424241
	digestLockKey  int64 = 424242
)

type service interface {
	RefreshSnapshot(ctx context.Context) (domain.Snapshot, error)
	RunWeeklyDigest(ctx context.Context) error
}

type locker interface {
	WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) (bool, error)
}

type Cron struct {
	cfg  config.Config
	log  zerolog.Logger
	svc  service
	lock locker
	c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, l locker) (*Cron, error) {
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	cr := &Cron{cfg: cfg, log: log, svc: svc, lock: l, c: c}
	if cfg.RefreshCron != "" {
		if _, err := c.AddFunc(cfg.RefreshCron, cr.refresh); err != nil {
			return nil, fmt.Errorf("refresh cron %q: %w", cfg.RefreshCron, err)
		}
	}
	if cfg.DigestCron != "" {
		if _, err := c.AddFunc(cfg.DigestCron, cr.weekly); err != nil {
			return nil, fmt.Errorf("digest cron %q: %w", cfg.DigestCron, err)
		}
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop waits for running jobs to finish.
func (cr *Cron) Stop() { <-cr.c.Stop().Done() }

func (cr *Cron) Entries() int { return len(cr.c.Entries()) }

func (cr *Cron) refresh() {
	cr.run("refresh", refreshLockKey, 10*time.Minute, func(ctx context.Context) error {
		_, err := cr.svc.RefreshSnapshot(ctx)
		return err
	})
}

func (cr *Cron) weekly() {
	cr.run("digest", digestLockKey, 5*time.Minute, cr.svc.RunWeeklyDigest)
}

func (cr *Cron) run(name string, key int64, timeout time.Duration, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ok, err := cr.lock.WithAdvisoryLock(ctx, key, func(ctx context.Context) error {
		cr.log.Info().Str("job", name).Msg("cron: start")
		return fn(ctx)
	})
	switch {
	case err != nil:
		cr.log.Error().Err(err).Str("job", name).Msg("cron: job failed")
	case !ok:
		cr.log.Info().Str("job", name).Msg("cron: already running elsewhere")
	}
}
