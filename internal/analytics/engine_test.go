package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/domain"
	"github.com/rs/zerolog"
)

func TestValidateSnapshot(t *testing.T) {
	ok := domain.Snapshot{
		Initiatives: []domain.Initiative{{Key: "I-1"}},
		Epics:       []domain.Epic{{Key: "E-1", Children: []domain.ChildIssue{{Key: "S-1"}}}, {Key: "E-2"}},
	}
	if err := ValidateSnapshot(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []domain.Snapshot{
		{Epics: []domain.Epic{{Key: ""}}},
		{Epics: []domain.Epic{{Key: "E-1"}, {Key: "E-1"}}},
		{Epics: []domain.Epic{{Key: "E-1", Children: []domain.ChildIssue{{}}}}},
		{Initiatives: []domain.Initiative{{Key: UnlinkedKey}}},
	}
	for i, s := range bad {
		if err := ValidateSnapshot(s); !errors.Is(err, ErrInvalidSnapshot) {
			t.Fatalf("case %d: expected ErrInvalidSnapshot, got %v", i, err)
		}
	}
}

func TestEngineEvaluateAll_FeedsDownstream(t *testing.T) {
	e := NewEngine(zerolog.Nop(), WithClock(func() time.Time { return testNow }))
	epics := []domain.Epic{
		{Key: "E-1", InitiativeKey: "I-1", StatusCategory: domain.StatusDone, Created: at("2025-01-01T00:00:00Z"), Resolved: at("2025-03-01T00:00:00Z")},
		{Key: "E-2", InitiativeKey: "I-1", StatusCategory: domain.StatusIndeterminate, Created: at("2025-05-01T12:00:00Z"),
			Children: []domain.ChildIssue{{Key: "S-1", StatusCategory: domain.StatusDone, StoryPoints: 3}, {Key: "S-2", StoryPoints: 5}},
			Dependencies: domain.Dependencies{BlockedBy: []domain.Link{{Key: "X-1", Status: "Open"}}}},
	}
	views := e.EvaluateAll(epics)
	if len(views) != 2 || views[0].Health.Verdict != HealthDone || views[1].Health.Verdict != HealthBlocked {
		t.Fatalf("unexpected views %+v", views)
	}
	if views[1].Progress.Percent != 50 || views[1].Progress.TotalPoints != 8 {
		t.Fatalf("unexpected progress %+v", views[1].Progress)
	}
	init := e.AggregateInitiatives([]domain.Initiative{{Key: "I-1", Summary: "Platform"}}, views)
	if len(init) != 1 || init[0].Health != HealthBlocked || init[0].Progress != 50 {
		t.Fatalf("unexpected initiatives %+v", init)
	}
	tp, err := e.ComputeThroughput(views, PeriodMonth)
	if err != nil || len(tp) != 1 || tp[0].Period != "2025-03" {
		t.Fatalf("unexpected throughput %+v %v", tp, err)
	}
	wip := e.ComputeWIP(views, nil)
	if wip.Total != 1 || wip.Items[0].AgeDays != 45 {
		t.Fatalf("unexpected wip %+v", wip)
	}
}
