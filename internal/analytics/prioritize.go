/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package analytics

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/domain"
)

const (
	MustHave   = "Must Have"
	ShouldHave = "Should Have"
	CouldHave  = "Could Have"
	WontHave   = "Won't Have"
)

const (
	modeMapped   = "mapped"
	modeFallback = "fallback"

	defaultMedianEffort = 5
	defaultMedianValue  = 3
	minJobSize          = 0.5
)

// PriorityTier maps a priority label to 1 (lowest) .. 5 (highest).
func PriorityTier(priority string) float64 {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "highest", "blocker":
		return 5
	case "high", "critical":
		return 4
	case "low", "minor":
		return 2
	case "lowest", "trivial":
		return 1
	default:
		return 3
	}
}

type WSJF struct {
	BusinessValue   float64 `json:"businessValue"`
	TimeCriticality float64 `json:"timeCriticality"`
	RiskReduction   float64 `json:"riskReduction"`
	JobSize         float64 `json:"jobSize"`
	CostOfDelay     float64 `json:"costOfDelay"`
	Score           float64 `json:"score"`
	Mode            string  `json:"mode"`
}

// WSJFScore is cost of delay over job size, job size floored at 0.5,
// rounded to two decimals.
func WSJFScore(businessValue, timeCriticality, riskReduction, jobSize float64) float64 {
	return round((businessValue+timeCriticality+riskReduction)/math.Max(jobSize, minJobSize), 2)
}

// CalculateWSJF reads components from mapped custom fields when a mapping is
// given and derives them from epic signals otherwise.
func CalculateWSJF(ep EpicView, mapping *domain.FieldMapping, now time.Time) WSJF {
	var w WSJF
	if mapping.HasWSJF() {
		w = WSJF{
			Mode:            modeMapped,
			BusinessValue:   fieldNumber(ep.Fields, mapping.BusinessValue),
			TimeCriticality: fieldNumber(ep.Fields, mapping.TimeCriticality),
			RiskReduction:   fieldNumber(ep.Fields, mapping.RiskReduction),
			JobSize:         fieldNumber(ep.Fields, mapping.JobSize),
		}
		if w.JobSize <= 0 {
			w.JobSize = ep.Progress.TotalPoints
		}
		if w.JobSize <= 0 {
			w.JobSize = 1
		}
	} else {
		w = WSJF{
			Mode:            modeFallback,
			BusinessValue:   fallbackBusinessValue(ep),
			TimeCriticality: fallbackTimeCriticality(ep, now),
			RiskReduction:   fallbackRiskReduction(ep),
			JobSize:         fallbackJobSize(ep),
		}
	}
	w.CostOfDelay = w.BusinessValue + w.TimeCriticality + w.RiskReduction
	w.Score = WSJFScore(w.BusinessValue, w.TimeCriticality, w.RiskReduction, w.JobSize)
	return w
}

func fallbackBusinessValue(ep EpicView) float64 {
	v := PriorityTier(ep.Priority)
	switch n := ep.Progress.Total; {
	case n >= 20:
		v += 2
	case n >= 10:
		v += 1.5
	case n >= 5:
		v += 1
	default:
		v += 0.5
	}
	if ep.Progress.Percent > 50 {
		v += 0.5
	}
	switch ep.Health.Verdict {
	case HealthBlocked:
		v += 1
	case HealthAtRisk:
		v += 0.5
	}
	return clamp(v, 0, 8)
}

func fallbackTimeCriticality(ep EpicView, now time.Time) float64 {
	if ep.DueDate == nil {
		return 2
	}
	switch d := ep.DueDate.Sub(now).Hours() / 24; {
	case d < 14:
		return 5
	case d < 30:
		return 4
	case d < 60:
		return 3
	case d < 90:
		return 2
	default:
		return 1
	}
}

func fallbackRiskReduction(ep EpicView) float64 {
	switch ep.Health.Verdict {
	case HealthBlocked:
		return 4
	case HealthAtRisk:
		return 3
	default:
		return 2
	}
}

func fallbackJobSize(ep EpicView) float64 {
	if ep.Progress.TotalPoints > 0 {
		return ep.Progress.TotalPoints
	}
	if ep.StoryPoints != nil && *ep.StoryPoints > 0 {
		return *ep.StoryPoints
	}
	return 1
}

// fieldNumber reads numbers, numeric strings and option objects ({"value": "5"}).
func fieldNumber(fields map[string]any, id string) float64 {
	if id == "" || fields == nil {
		return 0
	}
	return toNumber(fields[id])
}

func toNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	case map[string]any:
		if x, ok := t["value"]; ok {
			return toNumber(x)
		}
	}
	return 0
}

func fieldString(fields map[string]any, id string) string {
	if id == "" || fields == nil {
		return ""
	}
	switch t := fields[id].(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["value"].(string); ok {
			return s
		}
		if s, ok := t["name"].(string); ok {
			return s
		}
	}
	return ""
}

type MoSCoW struct {
	Category string  `json:"category"`
	Source   string  `json:"source"`
	Score    float64 `json:"score,omitempty"`
}

// parseMoSCoW matches the category keywords as substrings, must first.
func parseMoSCoW(s string) string {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "must"):
		return MustHave
	case strings.Contains(s, "should"):
		return ShouldHave
	case strings.Contains(s, "could"):
		return CouldHave
	case strings.Contains(s, "wont"), strings.Contains(s, "won't"):
		return WontHave
	}
	return ""
}

// CategorizeMoSCoW: an explicit label wins, then the mapped field, then the
// composite score.
func CategorizeMoSCoW(ep EpicView, mapping *domain.FieldMapping, now time.Time) MoSCoW {
	for _, l := range ep.Labels {
		if c := parseMoSCoW(l); c != "" {
			return MoSCoW{Category: c, Source: "label"}
		}
	}
	if mapping != nil {
		if c := parseMoSCoW(fieldString(ep.Fields, mapping.MoSCoW)); c != "" {
			return MoSCoW{Category: c, Source: "field"}
		}
	}
	score := PriorityTier(ep.Priority)
	switch ep.Health.Verdict {
	case HealthBlocked:
		score += 1.5
	case HealthAtRisk:
		score += 1
	}
	if ep.Progress.Total >= 15 {
		score += 1
	}
	if ep.DueDate != nil {
		switch d := ep.DueDate.Sub(now).Hours() / 24; {
		case d < 30:
			score += 1.5
		case d < 60:
			score += 0.5
		}
	} else if ep.Progress.Total <= 2 {
		score--
	}
	m := MoSCoW{Source: "computed", Score: score}
	switch {
	case score >= 6:
		m.Category = MustHave
	case score >= 4.5:
		m.Category = ShouldHave
	case score >= 3:
		m.Category = CouldHave
	default:
		m.Category = WontHave
	}
	return m
}

type PrioritizedEpic struct {
	Key          string        `json:"key"`
	Summary      string        `json:"summary"`
	Priority     string        `json:"priority"`
	Health       HealthVerdict `json:"health"`
	Progress     int           `json:"progress"`
	WSJF         WSJF          `json:"wsjf"`
	MoSCoW       MoSCoW        `json:"moscow"`
	Value        float64       `json:"value"`
	Effort       float64       `json:"effort"`
	EffortSource string        `json:"effortSource"`
	Quadrant     string        `json:"quadrant"`
}

type Quadrants struct {
	QuickWins []string `json:"quickWins"`
	BigBets   []string `json:"bigBets"`
	FillIns   []string `json:"fillIns"`
	MoneyPit  []string `json:"moneyPit"`
}

type PrioritizationReport struct {
	Mode         string            `json:"mode"`
	Epics        []PrioritizedEpic `json:"epics"`
	MoSCoW       map[string]int    `json:"moscow"`
	MedianEffort float64           `json:"medianEffort"`
	MedianValue  float64           `json:"medianValue"`
	Quadrants    Quadrants         `json:"quadrants"`
}

// Prioritize scores every open epic. Ties on WSJF keep input order.
func Prioritize(epics []EpicView, mapping *domain.FieldMapping, now time.Time) PrioritizationReport {
	rep := PrioritizationReport{
		Mode:   modeFallback,
		Epics:  []PrioritizedEpic{},
		MoSCoW: map[string]int{MustHave: 0, ShouldHave: 0, CouldHave: 0, WontHave: 0},
		Quadrants: Quadrants{
			QuickWins: []string{}, BigBets: []string{}, FillIns: []string{}, MoneyPit: []string{},
		},
	}
	if mapping.HasWSJF() {
		rep.Mode = modeMapped
	}
	for _, ep := range epics {
		if ep.IsDone() {
			continue
		}
		w := CalculateWSJF(ep, mapping, now)
		pe := PrioritizedEpic{
			Key:      ep.Key,
			Summary:  ep.Summary,
			Priority: ep.Priority,
			Health:   ep.Health.Verdict,
			Progress: ep.Progress.Percent,
			WSJF:     w,
			MoSCoW:   CategorizeMoSCoW(ep, mapping, now),
			Value:    w.BusinessValue,
		}
		if ep.Progress.TotalPoints > 0 {
			pe.Effort, pe.EffortSource = ep.Progress.TotalPoints, "points"
		} else {
			pe.Effort, pe.EffortSource = float64(ep.Progress.Total*2), "issue-count"
		}
		rep.Epics = append(rep.Epics, pe)
	}
	sort.SliceStable(rep.Epics, func(i, j int) bool { return rep.Epics[i].WSJF.Score > rep.Epics[j].WSJF.Score })

	efforts := make([]float64, 0, len(rep.Epics))
	values := make([]float64, 0, len(rep.Epics))
	for _, pe := range rep.Epics {
		rep.MoSCoW[pe.MoSCoW.Category]++
		efforts = append(efforts, pe.Effort)
		values = append(values, pe.Value)
	}
	rep.MedianEffort = lowerMedian(efforts, defaultMedianEffort)
	rep.MedianValue = lowerMedian(values, defaultMedianValue)

	for i := range rep.Epics {
		pe := &rep.Epics[i]
		highValue := pe.Value >= rep.MedianValue
		lowEffort := pe.Effort < rep.MedianEffort
		switch {
		case highValue && lowEffort:
			pe.Quadrant = "quickWins"
			rep.Quadrants.QuickWins = append(rep.Quadrants.QuickWins, pe.Key)
		case highValue:
			pe.Quadrant = "bigBets"
			rep.Quadrants.BigBets = append(rep.Quadrants.BigBets, pe.Key)
		case lowEffort:
			pe.Quadrant = "fillIns"
			rep.Quadrants.FillIns = append(rep.Quadrants.FillIns, pe.Key)
		default:
			pe.Quadrant = "moneyPit"
			rep.Quadrants.MoneyPit = append(rep.Quadrants.MoneyPit, pe.Key)
		}
	}
	return rep
}
