/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/domain"
)

type Period string

const (
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
)

// ParsePeriod defaults an empty value to month.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodMonth, nil
	case PeriodWeek, PeriodMonth, PeriodQuarter:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

// PeriodKey formats t so that lexical order equals chronological order:
// "2006-01" for months, "2006 Q1" for quarters and the Sunday starting the
// week as "2006-01-02".
func PeriodKey(t time.Time, p Period) string {
	switch p {
	case PeriodWeek:
		start := t.AddDate(0, 0, -int(t.Weekday()))
		return start.Format("2006-01-02")
	case PeriodQuarter:
		return fmt.Sprintf("%d Q%d", t.Year(), (int(t.Month())-1)/3+1)
	default:
		return t.Format("2006-01")
	}
}

type ThroughputPoint struct {
	Period    string `json:"period"`
	Completed int    `json:"completed"`
}

// ComputeThroughput counts resolved done epics per period, ascending.
func ComputeThroughput(epics []EpicView, period Period) ([]ThroughputPoint, error) {
	if _, err := ParsePeriod(string(period)); err != nil {
		return nil, err
	}
	if period == "" {
		period = PeriodMonth
	}
	counts := map[string]int{}
	for _, ep := range epics {
		if !ep.IsDone() || ep.Resolved == nil {
			continue
		}
		counts[PeriodKey(*ep.Resolved, period)]++
	}
	out := make([]ThroughputPoint, 0, len(counts))
	for k, c := range counts {
		out = append(out, ThroughputPoint{Period: k, Completed: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

type WeeklySnapshot struct {
	Date       string    `json:"date"`
	Boundary   time.Time `json:"boundary"`
	Done       int       `json:"done"`
	InProgress int       `json:"inProgress"`
	Todo       int       `json:"todo"`
}

type CumulativeFlow struct {
	Weeks       []WeeklySnapshot `json:"weeks"`
	Approximate bool             `json:"approximate"`
	Note        string           `json:"note"`
}

const cfdNote = "Reconstructed from current issue state and resolution dates; status history is not replayed, so past in-progress counts are approximate."

// ComputeCumulativeFlow builds weekly snapshots ending at the end of today.
// Epics without a creation date cannot be placed on the timeline and are skipped.
func ComputeCumulativeFlow(epics []EpicView, weeks int, now time.Time) CumulativeFlow {
	if weeks <= 0 {
		weeks = 12
	}
	cf := CumulativeFlow{Weeks: make([]WeeklySnapshot, 0, weeks), Approximate: true, Note: cfdNote}
	for i := weeks - 1; i >= 0; i-- {
		d := now.AddDate(0, 0, -7*i)
		boundary := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), d.Location())
		snap := WeeklySnapshot{Date: boundary.Format("2006-01-02"), Boundary: boundary}
		for _, ep := range epics {
			if ep.Created == nil || ep.Created.After(boundary) {
				continue
			}
			switch {
			case ep.Resolved != nil && !ep.Resolved.After(boundary):
				snap.Done++
			case ep.StatusCategory == domain.StatusIndeterminate:
				snap.InProgress++
			case ep.IsDone() && ep.Resolved != nil:
				snap.InProgress++
			default:
				snap.Todo++
			}
		}
		cf.Weeks = append(cf.Weeks, snap)
	}
	return cf
}

const histogramBucketDays = 7

type HistogramBucket struct {
	Label string `json:"label"`
	From  int    `json:"from"`
	To    int    `json:"to"`
	Count int    `json:"count"`
}

type Distribution struct {
	Count       int               `json:"count"`
	Average     int               `json:"average"`
	Percentiles map[string]int    `json:"percentiles"`
	Histogram   []HistogramBucket `json:"histogram"`
	Items       []DurationItem    `json:"items"`
}

type DurationItem struct {
	Key  string `json:"key"`
	Days int    `json:"days"`
}

type LeadTimeReport struct {
	LeadTime  Distribution `json:"leadTime"`
	CycleTime Distribution `json:"cycleTime"`
}

// ComputeLeadCycleTime measures creation→resolution (lead) and
// targetStart→resolution (cycle) in whole days. Negative spans are data
// errors and are dropped.
func ComputeLeadCycleTime(epics []EpicView) LeadTimeReport {
	var lead, cycle []DurationItem
	for _, ep := range epics {
		if ep.Resolved == nil {
			continue
		}
		if ep.Created != nil {
			if d := days(ep.Resolved.Sub(*ep.Created)); d >= 0 {
				lead = append(lead, DurationItem{Key: ep.Key, Days: d})
			}
		}
		if ep.TargetStart != nil {
			if d := days(ep.Resolved.Sub(*ep.TargetStart)); d >= 0 {
				cycle = append(cycle, DurationItem{Key: ep.Key, Days: d})
			}
		}
	}
	return LeadTimeReport{LeadTime: distribution(lead), CycleTime: distribution(cycle)}
}

func distribution(items []DurationItem) Distribution {
	d := Distribution{Count: len(items), Items: items, Histogram: []HistogramBucket{}}
	if d.Items == nil {
		d.Items = []DurationItem{}
	}
	values := make([]int, 0, len(items))
	sum, maxDays := 0, 0
	for _, it := range items {
		values = append(values, it.Days)
		sum += it.Days
		if it.Days > maxDays {
			maxDays = it.Days
		}
	}
	d.Percentiles = percentiles(values, 50, 70, 85, 95)
	if len(values) == 0 {
		return d
	}
	d.Average = int(round(float64(sum)/float64(len(values)), 0))
	for from := 0; from <= maxDays; from += histogramBucketDays {
		to := from + histogramBucketDays - 1
		d.Histogram = append(d.Histogram, HistogramBucket{Label: fmt.Sprintf("%d-%d", from, to), From: from, To: to})
	}
	for _, v := range values {
		d.Histogram[v/histogramBucketDays].Count++
	}
	return d
}

const unassigned = "Unassigned"

type WIPItem struct {
	Key        string `json:"key"`
	Summary    string `json:"summary"`
	Assignee   string `json:"assignee"`
	Initiative string `json:"initiative"`
	AgeDays    int    `json:"ageDays"`
}

type WIPReport struct {
	Total          int            `json:"total"`
	ByAssignee     map[string]int `json:"byAssignee"`
	ByInitiative   map[string]int `json:"byInitiative"`
	Items          []WIPItem      `json:"items"`
	AverageAgeDays int            `json:"averageAgeDays"`
}

// ComputeWIP reports epics currently in an indeterminate status, oldest first.
func ComputeWIP(epics []EpicView, initiatives []domain.Initiative, now time.Time) WIPReport {
	names := make(map[string]string, len(initiatives))
	for _, in := range initiatives {
		names[in.Key] = in.Summary
	}
	rep := WIPReport{ByAssignee: map[string]int{}, ByInitiative: map[string]int{}, Items: []WIPItem{}}
	ageSum, aged := 0, 0
	for _, ep := range epics {
		if ep.StatusCategory != domain.StatusIndeterminate {
			continue
		}
		assignee := strings.TrimSpace(ep.Assignee)
		if assignee == "" {
			assignee = unassigned
		}
		// Parents missing from the initiative list do not resolve and count as unlinked.
		initiative := unlinkedName
		if n, ok := names[ep.InitiativeKey]; ok {
			initiative = n
			if initiative == "" {
				initiative = ep.InitiativeKey
			}
		}
		item := WIPItem{Key: ep.Key, Summary: ep.Summary, Assignee: assignee, Initiative: initiative}
		if ep.Created != nil {
			item.AgeDays = days(now.Sub(*ep.Created))
			ageSum += item.AgeDays
			aged++
		}
		rep.Total++
		rep.ByAssignee[assignee]++
		rep.ByInitiative[initiative]++
		rep.Items = append(rep.Items, item)
	}
	sort.SliceStable(rep.Items, func(i, j int) bool { return rep.Items[i].AgeDays > rep.Items[j].AgeDays })
	if aged > 0 {
		rep.AverageAgeDays = int(round(float64(ageSum)/float64(aged), 0))
	}
	return rep
}
