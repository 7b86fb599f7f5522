/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/domain"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidSnapshot = errors.New("analytics: invalid snapshot")
	ErrInvalidPeriod   = errors.New("analytics: invalid period")
)

// Engine holds no analytics state between calls; it only carries the clock,
// the logger and the forecaster configuration.
type Engine struct {
	now        func() time.Time
	log        zerolog.Logger
	forecaster *Forecaster
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithForecaster(f *Forecaster) Option { return func(e *Engine) { e.forecaster = f } }

func NewEngine(log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{now: time.Now, log: log}
	for _, o := range opts {
		o(e)
	}
	if e.forecaster == nil {
		e.forecaster = NewForecaster()
	}
	return e
}

func (e *Engine) Now() time.Time { return e.now() }

// EvaluateEpic attaches progress, health and the dependency summary.
func (e *Engine) EvaluateEpic(epic domain.Epic, children []domain.ChildIssue, deps domain.Dependencies) EpicView {
	return evaluate(epic, children, deps, e.now())
}

func evaluate(epic domain.Epic, children []domain.ChildIssue, deps domain.Dependencies, now time.Time) EpicView {
	p := CalculateProgress(children)
	ds := SummarizeDependencies(deps)
	epic.Children = children
	epic.Dependencies = deps
	return EpicView{
		Epic:       epic,
		Progress:   p,
		Health:     CalculateHealth(epic, p, ds, now),
		DepSummary: ds,
	}
}

// EvaluateAll evaluates every epic against a single instant.
func (e *Engine) EvaluateAll(epics []domain.Epic) []EpicView {
	now := e.now()
	out := make([]EpicView, 0, len(epics))
	for _, ep := range epics {
		out = append(out, evaluate(ep, ep.Children, ep.Dependencies, now))
	}
	e.log.Debug().Int("epics", len(out)).Msg("analytics: epics evaluated")
	return out
}

func (e *Engine) AggregateInitiatives(initiatives []domain.Initiative, epics []EpicView) []InitiativeView {
	return AggregateInitiatives(initiatives, epics)
}

func (e *Engine) ComputeThroughput(epics []EpicView, period Period) ([]ThroughputPoint, error) {
	return ComputeThroughput(epics, period)
}

func (e *Engine) ComputeCumulativeFlow(epics []EpicView, weeks int) CumulativeFlow {
	return ComputeCumulativeFlow(epics, weeks, e.now())
}

func (e *Engine) ComputeLeadCycleTime(epics []EpicView) LeadTimeReport {
	return ComputeLeadCycleTime(epics)
}

func (e *Engine) ComputeWIP(epics []EpicView, initiatives []domain.Initiative) WIPReport {
	return ComputeWIP(epics, initiatives, e.now())
}

func (e *Engine) Prioritize(epics []EpicView, mapping *domain.FieldMapping) PrioritizationReport {
	return Prioritize(epics, mapping, e.now())
}

func (e *Engine) Forecast(ctx context.Context, throughput []ThroughputPoint, remaining, simulations int) (ForecastReport, error) {
	start := time.Now()
	rep, err := e.forecaster.Run(ctx, throughput, remaining, simulations, e.now())
	if err != nil {
		return ForecastReport{}, err
	}
	e.log.Debug().Int("remaining", remaining).Int("simulations", rep.Simulations).Dur("took", time.Since(start)).Msg("analytics: forecast done")
	return rep, nil
}

// ValidateSnapshot rejects snapshots the engine cannot reason about at all.
// Missing optional fields are not errors.
func ValidateSnapshot(s domain.Snapshot) error {
	seen := make(map[string]struct{}, len(s.Epics))
	for i, ep := range s.Epics {
		if ep.Key == "" {
			return fmt.Errorf("%w: epic #%d has no key", ErrInvalidSnapshot, i)
		}
		if _, dup := seen[ep.Key]; dup {
			return fmt.Errorf("%w: duplicate epic key %s", ErrInvalidSnapshot, ep.Key)
		}
		seen[ep.Key] = struct{}{}
		for j, c := range ep.Children {
			if c.Key == "" {
				return fmt.Errorf("%w: epic %s child #%d has no key", ErrInvalidSnapshot, ep.Key, j)
			}
		}
	}
	for i, in := range s.Initiatives {
		if in.Key == "" {
			return fmt.Errorf("%w: initiative #%d has no key", ErrInvalidSnapshot, i)
		}
		if in.Key == UnlinkedKey {
			return fmt.Errorf("%w: initiative key %q is reserved", ErrInvalidSnapshot, UnlinkedKey)
		}
	}
	return nil
}
