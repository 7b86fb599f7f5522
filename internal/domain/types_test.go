package domain

import (
	"testing"
	"time"
)

func TestParseTime_LayoutsAndGarbage(t *testing.T) {
	cases := map[string]bool{
		"2025-03-01T10:00:00.000+0000": true,
		"2025-03-01T10:00:00Z":         true,
		"2025-03-01":                   true,
		"":                             false,
		"not a date":                   false,
		"2025-13-45":                   false,
	}
	for in, ok := range cases {
		got := ParseTime(in)
		if (got != nil) != ok {
			t.Fatalf("ParseTime(%q) = %v, want parsed=%v", in, got, ok)
		}
	}
	if ParseTime(42) != nil {
		t.Fatalf("non-string input must be absent")
	}
	if got := ParseTime("2025-03-01T12:00:00+0330"); got == nil || got.Location() != time.UTC {
		t.Fatalf("expected UTC normalized time, got %v", got)
	}
}

func TestParseStatusCategory(t *testing.T) {
	if ParseStatusCategory("Done") != StatusDone {
		t.Fatalf("expected done")
	}
	if ParseStatusCategory("indeterminate") != StatusIndeterminate {
		t.Fatalf("expected indeterminate")
	}
	if ParseStatusCategory("whatever") != StatusNew {
		t.Fatalf("expected fallback to new")
	}
}

func TestFieldMapping_HasWSJF(t *testing.T) {
	var none *FieldMapping
	if none.HasWSJF() {
		t.Fatalf("nil mapping must select fallback mode")
	}
	if (&FieldMapping{MoSCoW: "customfield_1"}).HasWSJF() {
		t.Fatalf("a MoSCoW-only mapping is not a WSJF mapping")
	}
	if !(&FieldMapping{JobSize: "customfield_2"}).HasWSJF() {
		t.Fatalf("job size mapping enables mapped mode")
	}
}
