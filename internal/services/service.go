/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/HamedShams/portfolio-pulse/internal/adapters/jira"
	"github.com/HamedShams/portfolio-pulse/internal/analytics"
	"github.com/HamedShams/portfolio-pulse/internal/config"
	"github.com/HamedShams/portfolio-pulse/internal/domain"
	"github.com/HamedShams/portfolio-pulse/internal/repo"
	"github.com/rs/zerolog"
)

var ErrJiraDisabled = errors.New("services: jira is not configured")

type Store interface {
	SaveSnapshot(ctx context.Context, s *domain.Snapshot) error
	LatestSnapshot(ctx context.Context) (domain.Snapshot, error)
	SaveForecastRun(ctx context.Context, run *repo.ForecastRun) error
	ListForecastRuns(ctx context.Context, limit int) ([]repo.ForecastRun, error)
	StartJobRun(ctx context.Context, job string) (int64, error)
	FinishJobRun(ctx context.Context, id int64, epics int, runErr error) error
	LastRuns(ctx context.Context) ([]repo.JobRun, error)
}

type JiraClient interface {
	FetchSnapshot(ctx context.Context, q jira.Query, n jira.Normalizer) (domain.Snapshot, error)
}

type LLM interface {
	Summarize(ctx context.Context, kpis any) (string, error)
}

type Notifier interface {
	SendMarkdownV2(ctx context.Context, chatID int64, text string) error
	SendPlain(ctx context.Context, chatID int64, text string) error
}

type Service struct {
	cfg    config.Config
	log    zerolog.Logger
	store  Store
	jira   JiraClient
	llm    LLM
	tg     Notifier
	engine *analytics.Engine
	norm   jira.Normalizer
}

// New wires the service. jc, llm and tg may be nil; the features that need
// them are then disabled.
func New(cfg config.Config, log zerolog.Logger, store Store, jc JiraClient, llm LLM, tg Notifier, engine *analytics.Engine) *Service {
	return &Service{
		cfg:    cfg,
		log:    log,
		store:  store,
		jira:   jc,
		llm:    llm,
		tg:     tg,
		engine: engine,
		norm:   jira.NormalizerFromConfig(cfg),
	}
}

// RefreshSnapshot pulls a fresh snapshot from Jira and stores it.
func (s *Service) RefreshSnapshot(ctx context.Context) (domain.Snapshot, error) {
	if s.jira == nil {
		return domain.Snapshot{}, ErrJiraDisabled
	}
	runID, err := s.store.StartJobRun(ctx, "refresh")
	if err != nil {
		s.log.Warn().Err(err).Msg("refresh: job run not recorded")
	}
	snap, err := s.refresh(ctx)
	if runID > 0 {
		if ferr := s.store.FinishJobRun(ctx, runID, len(snap.Epics), err); ferr != nil {
			s.log.Warn().Err(ferr).Msg("refresh: finish job run failed")
		}
	}
	return snap, err
}

func (s *Service) refresh(ctx context.Context) (domain.Snapshot, error) {
	snap, err := s.jira.FetchSnapshot(ctx, jira.QueryFromConfig(s.cfg), s.norm)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := s.save(ctx, &snap); err != nil {
		return domain.Snapshot{}, err
	}
	s.log.Info().Str("snapshot", snap.ID).Int("epics", len(snap.Epics)).Int("initiatives", len(snap.Initiatives)).Msg("refresh done")
	return snap, nil
}

// IngestSnapshot accepts Jira-shaped issues pushed by a caller.
func (s *Service) IngestSnapshot(ctx context.Context, p jira.Payload) (domain.Snapshot, error) {
	snap := s.norm.Build(p)
	if err := s.save(ctx, &snap); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

func (s *Service) save(ctx context.Context, snap *domain.Snapshot) error {
	if err := analytics.ValidateSnapshot(*snap); err != nil {
		return err
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// portfolio is the latest snapshot with every epic evaluated once.
type portfolio struct {
	snap  domain.Snapshot
	views []analytics.EpicView
}

func (s *Service) load(ctx context.Context) (portfolio, error) {
	snap, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		return portfolio{}, err
	}
	return portfolio{snap: snap, views: s.engine.EvaluateAll(snap.Epics)}, nil
}

func (s *Service) Epics(ctx context.Context) ([]analytics.EpicView, error) {
	p, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return p.views, nil
}

func (s *Service) Initiatives(ctx context.Context) ([]analytics.InitiativeView, error) {
	p, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.AggregateInitiatives(p.snap.Initiatives, p.views), nil
}

func (s *Service) Throughput(ctx context.Context, period string) ([]analytics.ThroughputPoint, error) {
	per, err := analytics.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	p, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.ComputeThroughput(p.views, per)
}

func (s *Service) CumulativeFlow(ctx context.Context, weeks int) (analytics.CumulativeFlow, error) {
	if weeks <= 0 {
		weeks = s.cfg.CFDWeeks
	}
	p, err := s.load(ctx)
	if err != nil {
		return analytics.CumulativeFlow{}, err
	}
	return s.engine.ComputeCumulativeFlow(p.views, weeks), nil
}

func (s *Service) LeadTime(ctx context.Context) (analytics.LeadTimeReport, error) {
	p, err := s.load(ctx)
	if err != nil {
		return analytics.LeadTimeReport{}, err
	}
	return s.engine.ComputeLeadCycleTime(p.views), nil
}

func (s *Service) WIP(ctx context.Context) (analytics.WIPReport, error) {
	p, err := s.load(ctx)
	if err != nil {
		return analytics.WIPReport{}, err
	}
	return s.engine.ComputeWIP(p.views, p.snap.Initiatives), nil
}

func (s *Service) Prioritization(ctx context.Context) (analytics.PrioritizationReport, error) {
	p, err := s.load(ctx)
	if err != nil {
		return analytics.PrioritizationReport{}, err
	}
	return s.engine.Prioritize(p.views, s.cfg.Mapping), nil
}

// OpenRemaining asks Forecast to size the backlog as every epic not yet done.
const OpenRemaining = -1

// Forecast simulates completion of the remaining open epics from monthly
// epic throughput. remaining < 0 means every epic not yet done, while 0 is an
// empty backlog; simulations <= 0 uses the configured default. Runs with a
// result are recorded.
func (s *Service) Forecast(ctx context.Context, remaining, simulations int) (analytics.ForecastReport, error) {
	p, err := s.load(ctx)
	if err != nil {
		return analytics.ForecastReport{}, err
	}
	return s.forecast(ctx, p, remaining, simulations)
}

func (s *Service) forecast(ctx context.Context, p portfolio, remaining, simulations int) (analytics.ForecastReport, error) {
	if remaining < 0 {
		remaining = openEpics(p.views)
	}
	if simulations <= 0 {
		simulations = s.cfg.ForecastSimulations
	}
	history, err := s.engine.ComputeThroughput(p.views, analytics.PeriodMonth)
	if err != nil {
		return analytics.ForecastReport{}, err
	}
	rep, err := s.engine.Forecast(ctx, history, remaining, simulations)
	if err != nil {
		return analytics.ForecastReport{}, err
	}
	if !rep.InsufficientData {
		run := &repo.ForecastRun{SnapshotID: p.snap.ID, Report: rep}
		if err := s.store.SaveForecastRun(ctx, run); err != nil {
			s.log.Warn().Err(err).Msg("forecast: run not stored")
		}
	}
	return rep, nil
}

func openEpics(views []analytics.EpicView) int {
	n := 0
	for _, v := range views {
		if !v.IsDone() {
			n++
		}
	}
	return n
}

func (s *Service) ForecastRuns(ctx context.Context, limit int) ([]repo.ForecastRun, error) {
	return s.store.ListForecastRuns(ctx, limit)
}

func (s *Service) LastRuns(ctx context.Context) ([]repo.JobRun, error) {
	return s.store.LastRuns(ctx)
}
