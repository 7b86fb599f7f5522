/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package analytics

import "github.com/HamedShams/portfolio-pulse/internal/domain"

// UnlinkedKey buckets epics without a parent initiative.
const UnlinkedKey = "unlinked"

const unlinkedName = "Unlinked"

type InitiativeEpic struct {
	Key             string        `json:"key"`
	Summary         string        `json:"summary"`
	Status          string        `json:"status"`
	Progress        int           `json:"progress"`
	Health          HealthVerdict `json:"health"`
	TotalPoints     float64       `json:"totalPoints"`
	CompletedPoints float64       `json:"completedPoints"`
}

type InitiativeView struct {
	Key             string           `json:"key"`
	Summary         string           `json:"summary"`
	StatusCategory  string           `json:"statusCategory"`
	Health          HealthVerdict    `json:"health"`
	Progress        int              `json:"progress"`
	TotalEpics      int              `json:"totalEpics"`
	CompletedEpics  int              `json:"completedEpics"`
	TotalPoints     float64          `json:"totalPoints"`
	CompletedPoints float64          `json:"completedPoints"`
	Epics           []InitiativeEpic `json:"epics"`
}

type bucket struct {
	initiative domain.Initiative
	epics      []EpicView
}

// AggregateInitiatives rolls epics up under their parent initiative. Known
// initiatives keep input order; parents not in the list get their own bucket
// in first-seen order; the unlinked bucket comes last and is dropped when empty.
func AggregateInitiatives(initiatives []domain.Initiative, epics []EpicView) []InitiativeView {
	order := make([]string, 0, len(initiatives)+1)
	buckets := make(map[string]*bucket, len(initiatives)+1)
	for _, in := range initiatives {
		if _, ok := buckets[in.Key]; ok {
			continue
		}
		buckets[in.Key] = &bucket{initiative: in}
		order = append(order, in.Key)
	}
	unlinked := &bucket{initiative: domain.Initiative{Key: UnlinkedKey, Summary: unlinkedName}}

	for _, ep := range epics {
		key := ep.InitiativeKey
		if key == "" || key == UnlinkedKey {
			unlinked.epics = append(unlinked.epics, ep)
			continue
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{initiative: domain.Initiative{Key: key, Summary: key}}
			buckets[key] = b
			order = append(order, key)
		}
		b.epics = append(b.epics, ep)
	}

	out := make([]InitiativeView, 0, len(order)+1)
	for _, k := range order {
		out = append(out, buckets[k].view())
	}
	if len(unlinked.epics) > 0 {
		out = append(out, unlinked.view())
	}
	return out
}

func (b *bucket) view() InitiativeView {
	v := InitiativeView{
		Key:            b.initiative.Key,
		Summary:        b.initiative.Summary,
		StatusCategory: string(b.initiative.StatusCategory),
		TotalEpics:     len(b.epics),
		Epics:          make([]InitiativeEpic, 0, len(b.epics)),
	}
	blocked, atRisk := false, false
	for _, ep := range b.epics {
		if ep.IsDone() {
			v.CompletedEpics++
		}
		switch ep.Health.Verdict {
		case HealthBlocked:
			blocked = true
		case HealthAtRisk:
			atRisk = true
		}
		v.TotalPoints += ep.Progress.TotalPoints
		v.CompletedPoints += ep.Progress.CompletedPoints
		v.Epics = append(v.Epics, InitiativeEpic{
			Key:             ep.Key,
			Summary:         ep.Summary,
			Status:          ep.Status,
			Progress:        ep.Progress.Percent,
			Health:          ep.Health.Verdict,
			TotalPoints:     ep.Progress.TotalPoints,
			CompletedPoints: ep.Progress.CompletedPoints,
		})
	}
	v.Progress = roundPct(v.CompletedEpics, v.TotalEpics)

	switch {
	case v.TotalEpics == 0:
		v.Health = HealthNoData
	case b.initiative.StatusCategory == domain.StatusDone || v.CompletedEpics == v.TotalEpics:
		v.Health = HealthDone
	case blocked:
		v.Health = HealthBlocked
	case atRisk:
		v.Health = HealthAtRisk
	default:
		v.Health = HealthOnTrack
	}
	return v
}
