/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/domain"
)

// HealthVerdict is the qualitative state of an epic or initiative.
type HealthVerdict string

const (
	HealthDone    HealthVerdict = "done"
	HealthBlocked HealthVerdict = "blocked"
	HealthOnTrack HealthVerdict = "on-track"
	HealthAtRisk  HealthVerdict = "at-risk"
	HealthNoData  HealthVerdict = "no-data"
)

// atRiskLag is how many percentage points work may trail elapsed time.
const atRiskLag = 15

type Progress struct {
	Total           int     `json:"total"`
	Done            int     `json:"done"`
	InProgress      int     `json:"inProgress"`
	Todo            int     `json:"todo"`
	TotalPoints     float64 `json:"totalPoints"`
	CompletedPoints float64 `json:"completedPoints"`
	Percent         int     `json:"percent"`
}

type Health struct {
	Verdict HealthVerdict `json:"verdict"`
	Reason  string        `json:"reason"`
}

type DependencySummary struct {
	domain.Dependencies
	Blocked  bool     `json:"blocked"`
	Blockers []string `json:"blockers"`
}

// EpicView is an epic with its derived fields attached. It is built once per
// request and not mutated afterwards.
type EpicView struct {
	domain.Epic
	Progress   Progress          `json:"progress"`
	Health     Health            `json:"health"`
	DepSummary DependencySummary `json:"dependencySummary"`
}

func (v EpicView) IsDone() bool { return v.StatusCategory == domain.StatusDone }

var closedStatuses = map[string]struct{}{"done": {}, "closed": {}, "resolved": {}}

// IsClosedStatus reports whether a linked issue status no longer blocks.
func IsClosedStatus(status string) bool {
	_, ok := closedStatuses[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

// CalculateProgress counts children by status category and sums points.
func CalculateProgress(children []domain.ChildIssue) Progress {
	p := Progress{Total: len(children)}
	for _, c := range children {
		pts := c.StoryPoints
		if pts < 0 {
			pts = 0
		}
		p.TotalPoints += pts
		switch c.StatusCategory {
		case domain.StatusDone:
			p.Done++
			p.CompletedPoints += pts
		case domain.StatusIndeterminate:
			p.InProgress++
		default:
			p.Todo++
		}
	}
	p.Percent = roundPct(p.Done, p.Total)
	return p
}

// SummarizeDependencies keeps all three link sets and extracts the unresolved
// blockers in their original order.
func SummarizeDependencies(deps domain.Dependencies) DependencySummary {
	s := DependencySummary{Dependencies: deps, Blockers: []string{}}
	for _, l := range deps.BlockedBy {
		if !IsClosedStatus(l.Status) {
			s.Blockers = append(s.Blockers, l.Key)
		}
	}
	s.Blocked = len(s.Blockers) > 0
	return s
}

// CalculateHealth applies the verdict rules in order; the first match wins.
func CalculateHealth(epic domain.Epic, p Progress, deps DependencySummary, now time.Time) Health {
	if epic.StatusCategory == domain.StatusDone {
		return Health{Verdict: HealthDone, Reason: "Epic is complete"}
	}
	if deps.Blocked {
		return Health{Verdict: HealthBlocked, Reason: "Blocked by " + strings.Join(deps.Blockers, ", ")}
	}
	if p.Total == 0 {
		return Health{Verdict: HealthNoData, Reason: "No child issues"}
	}
	if epic.DueDate == nil {
		return Health{Verdict: HealthOnTrack, Reason: fmt.Sprintf("%d%% complete, no due date", p.Percent)}
	}
	due := *epic.DueDate
	if due.Before(now) && p.Percent < 100 {
		return Health{Verdict: HealthAtRisk, Reason: fmt.Sprintf("Overdue with %d%% complete", p.Percent)}
	}
	if epic.Created == nil {
		return Health{Verdict: HealthOnTrack, Reason: fmt.Sprintf("%d%% complete, no creation date", p.Percent)}
	}
	timePct := timeProgress(*epic.Created, due, now)
	if timePct-p.Percent > atRiskLag {
		return Health{Verdict: HealthAtRisk, Reason: fmt.Sprintf("%d%% complete but %d%% of time elapsed", p.Percent, timePct)}
	}
	return Health{Verdict: HealthOnTrack, Reason: fmt.Sprintf("%d%% complete, %d%% of time elapsed", p.Percent, timePct)}
}

func timeProgress(created, due, now time.Time) int {
	total := due.Sub(created)
	if total <= 0 {
		return 100
	}
	return int(roundFloat(float64(now.Sub(created)) / float64(total) * 100))
}

func roundFloat(v float64) float64 { return round(v, 0) }
