/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package analytics

import (
	"context"
	"math/rand/v2"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultSimulations = 10000
	maxPeriods         = 100
	maxHorizon         = 24
	trialsPerChunk     = 1000
)

// Sampler picks an index in [0, n).
type Sampler interface {
	IntN(n int) int
}

// SamplerFactory returns the sampler for one chunk of trials. Chunks are
// fixed-size and numbered, so a deterministic factory gives the same result
// for any worker count.
type SamplerFactory func(chunk int) Sampler

// SeededSamplers derives one PCG stream per chunk from seed.
func SeededSamplers(seed uint64) SamplerFactory {
	return func(chunk int) Sampler { return rand.New(rand.NewPCG(seed, uint64(chunk))) }
}

type Forecaster struct {
	samplers SamplerFactory
	workers  int
}

type ForecasterOption func(*Forecaster)

func WithSamplers(f SamplerFactory) ForecasterOption {
	return func(fc *Forecaster) { fc.samplers = f }
}

func WithWorkers(n int) ForecasterOption {
	return func(fc *Forecaster) { fc.workers = n }
}

func NewForecaster(opts ...ForecasterOption) *Forecaster {
	f := &Forecaster{workers: 1}
	for _, o := range opts {
		o(f)
	}
	if f.samplers == nil {
		f.samplers = SeededSamplers(uint64(time.Now().UnixNano()))
	}
	if f.workers < 1 {
		f.workers = 1
	}
	return f
}

type ForecastPercentile struct {
	Periods int       `json:"periods"`
	Date    time.Time `json:"date"`
}

type ProbabilityPoint struct {
	Periods     int       `json:"periods"`
	Date        time.Time `json:"date"`
	Probability int       `json:"probability"`
}

type ForecastReport struct {
	InsufficientData bool                          `json:"insufficientData"`
	Message          string                        `json:"message,omitempty"`
	RemainingItems   int                           `json:"remainingItems"`
	Simulations      int                           `json:"simulations"`
	HistoryPeriods   int                           `json:"historyPeriods"`
	Percentiles      map[string]ForecastPercentile `json:"percentiles"`
	Distribution     []ProbabilityPoint            `json:"distribution"`
}

// Run simulates completing remaining items by resampling per-period
// throughput. Each period is mapped to one calendar month from now.
func (f *Forecaster) Run(ctx context.Context, throughput []ThroughputPoint, remaining, simulations int, now time.Time) (ForecastReport, error) {
	rep := ForecastReport{
		RemainingItems: remaining,
		HistoryPeriods: len(throughput),
		Percentiles:    map[string]ForecastPercentile{},
		Distribution:   []ProbabilityPoint{},
	}
	if len(throughput) == 0 {
		rep.InsufficientData = true
		rep.Message = "No completed work in the throughput history"
		return rep, nil
	}
	if remaining <= 0 {
		rep.InsufficientData = true
		rep.Message = "No remaining items to forecast"
		return rep, nil
	}
	if simulations <= 0 {
		simulations = DefaultSimulations
	}
	samples := make([]int, len(throughput))
	for i, tp := range throughput {
		samples[i] = tp.Completed
	}

	results := make([]int, simulations)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for chunk := 0; chunk*trialsPerChunk < simulations; chunk++ {
		start := chunk * trialsPerChunk
		end := min(start+trialsPerChunk, simulations)
		sampler := f.samplers(chunk)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if (i-start)%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				results[i] = runTrial(samples, remaining, sampler)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ForecastReport{}, err
	}

	sort.Ints(results)
	rep.Simulations = simulations
	for _, p := range []int{50, 85, 95} {
		n := Percentile(results, float64(p))
		rep.Percentiles[percentileKey(p)] = ForecastPercentile{Periods: n, Date: now.AddDate(0, n, 0)}
	}
	horizon := min(results[len(results)-1], maxHorizon)
	idx := 0
	for h := 1; h <= horizon; h++ {
		for idx < len(results) && results[idx] <= h {
			idx++
		}
		rep.Distribution = append(rep.Distribution, ProbabilityPoint{
			Periods:     h,
			Date:        now.AddDate(0, h, 0),
			Probability: roundPct(idx, simulations),
		})
	}
	return rep, nil
}

// runTrial draws periods until the backlog is exhausted or the cap is hit.
func runTrial(samples []int, remaining int, s Sampler) int {
	periods := 0
	for remaining > 0 && periods < maxPeriods {
		remaining -= samples[s.IntN(len(samples))]
		periods++
	}
	return periods
}
