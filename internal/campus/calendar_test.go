package campus

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDateAndTimeOfDay(t *testing.T) {
	d, err := ParseDate("2026-10-19")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d != (Date{Year: 2026, Month: time.October, Day: 19}) {
		t.Fatalf("date = %+v", d)
	}
	if d.String() != "2026-10-19" {
		t.Fatalf("String() = %q", d.String())
	}
	if _, err := ParseDate("19/10/2026"); err == nil {
		t.Fatalf("expected error for non-ISO date")
	}

	start, err := ParseTimeOfDay("09:00")
	if err != nil {
		t.Fatalf("ParseTimeOfDay: %v", err)
	}
	end, err := ParseTimeOfDay("09:30:15")
	if err != nil {
		t.Fatalf("ParseTimeOfDay with seconds: %v", err)
	}
	if !start.Before(end) || !end.After(start) {
		t.Fatalf("expected %s before %s", start, end)
	}
	if start.String() != "09:00" || end.String() != "09:30:15" {
		t.Fatalf("String() = %q / %q", start, end)
	}
	if _, err := ParseTimeOfDay("25:00"); err == nil {
		t.Fatalf("expected error for 25:00")
	}
}

func TestTimeOfDayOfKeepsSubSecondPrecision(t *testing.T) {
	end := Clock(9, 30, 0)
	justAfter := TimeOfDayOf(time.Date(2026, 1, 1, 9, 30, 0, 1, time.UTC))
	if !justAfter.After(end) {
		t.Fatalf("09:30:00.000000001 should be after 09:30")
	}
	exact := TimeOfDayOf(time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC))
	if exact.After(end) || exact.Before(end) {
		t.Fatalf("09:30:00 should equal the end bound")
	}
}

func TestTimeOfDayZeroIsUnset(t *testing.T) {
	var unset TimeOfDay
	if !unset.IsZero() {
		t.Fatalf("zero TimeOfDay should be unset")
	}
	if Clock(0, 0, 0).IsZero() {
		t.Fatalf("midnight should count as a given time")
	}
	parsed, err := ParseTimeOfDay("00:00")
	if err != nil || parsed.IsZero() || parsed != Clock(0, 0, 0) {
		t.Fatalf("ParseTimeOfDay(00:00) = %v, %v", parsed, err)
	}
}

func TestDateAndClockScan(t *testing.T) {
	var d Date
	if err := d.Scan([]byte("2026-03-01")); err != nil {
		t.Fatalf("Scan bytes: %v", err)
	}
	if d.String() != "2026-03-01" {
		t.Fatalf("scanned %s", d)
	}
	var c TimeOfDay
	if err := c.Scan("14:05"); err != nil {
		t.Fatalf("Scan string: %v", err)
	}
	if v, _ := c.Value(); v != "14:05" {
		t.Fatalf("Value() = %v", v)
	}
	if err := c.Scan(42); err == nil {
		t.Fatalf("expected error scanning int")
	}
}

func TestSessionJSON(t *testing.T) {
	s := Session{ID: "x", Date: Date{2026, time.May, 4}, Start: Clock(8, 0, 0), End: Clock(8, 45, 0)}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Session
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Date != s.Date || back.Start != s.Start || back.End != s.End {
		t.Fatalf("round trip = %+v, want %+v", back, s)
	}
}
