package analytics

import (
	"errors"
	"testing"

	"github.com/HamedShams/portfolio-pulse/internal/domain"
)

func view(key string, status domain.StatusCategory, created, resolved string) EpicView {
	ep := domain.Epic{Key: key, StatusCategory: status}
	if created != "" {
		ep.Created = at(created)
	}
	if resolved != "" {
		ep.Resolved = at(resolved)
	}
	return EpicView{Epic: ep}
}

func TestPercentile_NearestRank(t *testing.T) {
	sorted := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := Percentile(sorted, 50); got != 5 {
		t.Fatalf("p50 = %d, want 5", got)
	}
	if got := Percentile(sorted, 85); got != 9 {
		t.Fatalf("p85 = %d, want 9", got)
	}
	if got := Percentile(sorted, 0); got != 1 {
		t.Fatalf("p0 must clamp to first element, got %d", got)
	}
	if got := Percentile(nil, 95); got != 0 {
		t.Fatalf("empty input = %d, want 0", got)
	}
}

func TestPeriodKey(t *testing.T) {
	ts := at("2025-06-04T10:00:00Z") // Wednesday
	if got := PeriodKey(*ts, PeriodMonth); got != "2025-06" {
		t.Fatalf("month key %q", got)
	}
	if got := PeriodKey(*ts, PeriodQuarter); got != "2025 Q2" {
		t.Fatalf("quarter key %q", got)
	}
	if got := PeriodKey(*ts, PeriodWeek); got != "2025-06-01" {
		t.Fatalf("week key %q, want Sunday start", got)
	}
	if got := PeriodKey(*at("2025-06-01T08:00:00Z"), PeriodWeek); got != "2025-06-01" {
		t.Fatalf("a Sunday starts its own week, got %q", got)
	}
}

func TestParsePeriod(t *testing.T) {
	if p, err := ParsePeriod(""); err != nil || p != PeriodMonth {
		t.Fatalf("empty period should default to month, got %q %v", p, err)
	}
	if p, err := ParsePeriod("Quarter"); err != nil || p != PeriodQuarter {
		t.Fatalf("got %q %v", p, err)
	}
	if _, err := ParsePeriod("fortnight"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestComputeThroughput_FiltersAndSorts(t *testing.T) {
	epics := []EpicView{
		view("A", domain.StatusDone, "2025-01-01T00:00:00Z", "2025-03-10T00:00:00Z"),
		view("B", domain.StatusDone, "2025-01-01T00:00:00Z", "2025-01-20T00:00:00Z"),
		view("C", domain.StatusDone, "2025-01-01T00:00:00Z", "2025-03-02T00:00:00Z"),
		view("D", domain.StatusDone, "2025-01-01T00:00:00Z", ""),
		view("E", domain.StatusIndeterminate, "2025-01-01T00:00:00Z", "2025-02-02T00:00:00Z"),
		view("F", domain.StatusDone, "2024-01-01T00:00:00Z", "2024-12-31T00:00:00Z"),
	}
	got, err := ComputeThroughput(epics, PeriodMonth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []ThroughputPoint{{"2024-12", 1}, {"2025-01", 1}, {"2025-03", 2}}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("point %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
	q, _ := ComputeThroughput(epics, PeriodQuarter)
	if len(q) != 2 || q[0].Period != "2024 Q4" || q[1].Period != "2025 Q1" || q[1].Completed != 3 {
		t.Fatalf("unexpected quarters: %+v", q)
	}
	if _, err := ComputeThroughput(epics, "daily"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestComputeCumulativeFlow_Reconstruction(t *testing.T) {
	epics := []EpicView{
		view("OLD-DONE", domain.StatusDone, "2025-04-01T00:00:00Z", "2025-05-01T00:00:00Z"),
		view("LATE-DONE", domain.StatusDone, "2025-04-01T00:00:00Z", "2025-06-14T00:00:00Z"),
		view("WIP", domain.StatusIndeterminate, "2025-05-20T00:00:00Z", ""),
		view("TODO", domain.StatusNew, "2025-05-20T00:00:00Z", ""),
		view("FUTURE", domain.StatusNew, "2025-06-15T00:00:00Z", ""),
		view("NO-CREATED", domain.StatusNew, "", ""),
	}
	cf := ComputeCumulativeFlow(epics, 3, testNow)
	if !cf.Approximate || cf.Note == "" {
		t.Fatalf("cumulative flow must be flagged as approximate: %+v", cf)
	}
	if len(cf.Weeks) != 3 {
		t.Fatalf("expected 3 weeks, got %d", len(cf.Weeks))
	}
	first, last := cf.Weeks[0], cf.Weeks[2]
	if first.Date != "2025-06-01" || last.Date != "2025-06-15" {
		t.Fatalf("unexpected boundaries %s .. %s", first.Date, last.Date)
	}
	// 2025-06-01: OLD-DONE done, LATE-DONE still open, WIP in progress, TODO todo.
	if first.Done != 1 || first.InProgress != 2 || first.Todo != 1 {
		t.Fatalf("first snapshot %+v", first)
	}
	// 2025-06-15: both done, FUTURE now exists.
	if last.Done != 2 || last.InProgress != 1 || last.Todo != 2 {
		t.Fatalf("last snapshot %+v", last)
	}
}

func TestComputeLeadCycleTime(t *testing.T) {
	epics := []EpicView{
		view("A", domain.StatusDone, "2025-01-01T00:00:00Z", "2025-01-04T00:00:00Z"), // 3
		view("B", domain.StatusDone, "2025-01-01T00:00:00Z", "2025-01-11T00:00:00Z"), // 10
		view("C", domain.StatusDone, "2025-01-01T00:00:00Z", "2025-01-21T00:00:00Z"), // 20
		view("D", domain.StatusDone, "2025-01-10T00:00:00Z", "2025-01-01T00:00:00Z"), // negative
		view("E", domain.StatusDone, "", "2025-01-01T00:00:00Z"),
		view("F", domain.StatusIndeterminate, "2025-01-01T00:00:00Z", ""),
	}
	epics[1].TargetStart = at("2025-01-06T00:00:00Z")
	rep := ComputeLeadCycleTime(epics)
	lt := rep.LeadTime
	if lt.Count != 3 || lt.Average != 11 {
		t.Fatalf("unexpected lead time summary %+v", lt)
	}
	if lt.Percentiles["p50"] != 10 || lt.Percentiles["p95"] != 20 || lt.Percentiles["p70"] != 20 {
		t.Fatalf("unexpected percentiles %+v", lt.Percentiles)
	}
	if len(lt.Histogram) != 3 {
		t.Fatalf("expected buckets 0-6, 7-13, 14-20; got %+v", lt.Histogram)
	}
	sum := 0
	for _, b := range lt.Histogram {
		sum += b.Count
	}
	if sum != lt.Count {
		t.Fatalf("histogram sums to %d, want %d", sum, lt.Count)
	}
	if lt.Histogram[0].Label != "0-6" || lt.Histogram[1].Count != 1 || lt.Histogram[2].Count != 1 {
		t.Fatalf("unexpected histogram %+v", lt.Histogram)
	}
	if rep.CycleTime.Count != 1 || rep.CycleTime.Items[0].Days != 5 {
		t.Fatalf("unexpected cycle time %+v", rep.CycleTime)
	}
}

func TestComputeLeadCycleTime_Empty(t *testing.T) {
	rep := ComputeLeadCycleTime(nil)
	if rep.LeadTime.Count != 0 || len(rep.LeadTime.Histogram) != 0 || rep.LeadTime.Percentiles["p50"] != 0 {
		t.Fatalf("unexpected empty report %+v", rep)
	}
}

func TestComputeWIP(t *testing.T) {
	a := view("A", domain.StatusIndeterminate, "2025-06-05T12:00:00Z", "")
	a.Assignee = "dana"
	a.InitiativeKey = "INIT-1"
	b := view("B", domain.StatusIndeterminate, "2025-05-16T12:00:00Z", "")
	b.InitiativeKey = "INIT-9"
	c := view("C", domain.StatusIndeterminate, "2025-06-14T12:00:00Z", "")
	c.Assignee = "dana"
	d := view("D", domain.StatusNew, "2025-01-01T00:00:00Z", "")
	initiatives := []domain.Initiative{{Key: "INIT-1", Summary: "Payments"}}

	rep := ComputeWIP([]EpicView{a, b, c, d}, initiatives, testNow)
	if rep.Total != 3 {
		t.Fatalf("expected 3 in progress, got %d", rep.Total)
	}
	if rep.ByAssignee["dana"] != 2 || rep.ByAssignee["Unassigned"] != 1 {
		t.Fatalf("unexpected assignee grouping %+v", rep.ByAssignee)
	}
	if rep.ByInitiative["Payments"] != 1 || rep.ByInitiative["Unlinked"] != 2 || len(rep.ByInitiative) != 2 {
		t.Fatalf("unknown initiatives must fall back to Unlinked: %+v", rep.ByInitiative)
	}
	if rep.Items[0].Initiative != "Unlinked" {
		t.Fatalf("item initiative %q", rep.Items[0].Initiative)
	}
	if rep.Items[0].Key != "B" || rep.Items[0].AgeDays != 30 || rep.Items[2].Key != "C" {
		t.Fatalf("items must be sorted by age descending: %+v", rep.Items)
	}
	if rep.AverageAgeDays != 14 {
		t.Fatalf("average age %d, want round((10+30+1)/3)=14", rep.AverageAgeDays)
	}
}
