package attendance

import (
	"context"
	"testing"
	"time"

	"faceattend/internal/campus"
)

type fakeFaces map[string]bool

func (f fakeFaces) HasRegisteredFace(_ context.Context, id string) (bool, error) { return f[id], nil }

type pair struct{ a, b string }

type fakeDir struct {
	enrolled map[pair]bool
	sessions map[string]*campus.Session
}

func (d fakeDir) IsEnrolled(_ context.Context, studentID, moduleID string) (bool, error) {
	return d.enrolled[pair{studentID, moduleID}], nil
}

func (d fakeDir) SessionByID(_ context.Context, id string) (*campus.Session, error) {
	return d.sessions[id], nil
}

type fakeMarks map[pair]bool

func (m fakeMarks) Exists(_ context.Context, studentID, sessionID string) (bool, error) {
	return m[pair{studentID, sessionID}], nil
}

var sast = time.FixedZone("SAST", 2*60*60)

func newTestGate() (*Gate, fakeFaces, fakeDir, fakeMarks) {
	faces := fakeFaces{"s1": true}
	dir := fakeDir{
		enrolled: map[pair]bool{{"s1", "m1"}: true},
		sessions: map[string]*campus.Session{
			"x1": {ID: "x1", ModuleID: "m1", Date: campus.Date{Year: 2026, Month: time.October, Day: 19}, Start: campus.Clock(9, 0, 0), End: campus.Clock(9, 30, 0)},
			"y1": {ID: "y1", ModuleID: "m2", Date: campus.Date{Year: 2026, Month: time.October, Day: 19}, Start: campus.Clock(9, 0, 0), End: campus.Clock(9, 30, 0)},
		},
	}
	marks := fakeMarks{}
	return NewGate(faces, dir, marks, sast), faces, dir, marks
}

func at(day, h, m, s, ns int) time.Time {
	return time.Date(2026, time.October, day, h, m, s, ns, sast)
}

func TestGateWindow(t *testing.T) {
	g, _, _, _ := newTestGate()
	req := EligibilityRequest{StudentID: "s1", ModuleID: "m1", SessionID: "x1"}
	for _, tc := range []struct {
		name string
		now  time.Time
		want Reason
	}{
		{"inside", at(19, 9, 15, 0, 0), ""},
		{"at start", at(19, 9, 0, 0, 0), ""},
		{"at end", at(19, 9, 30, 0, 0), ""},
		{"just before start", at(19, 8, 59, 59, 999999999), ReasonOutsideWindow},
		{"just after end", at(19, 9, 30, 0, 1), ReasonOutsideWindow},
		{"day before", at(18, 9, 15, 0, 0), ReasonWrongDate},
		{"day after", at(20, 9, 15, 0, 0), ReasonWrongDate},
		{"utc converted into window", time.Date(2026, time.October, 19, 7, 15, 0, 0, time.UTC), ""},
		{"utc previous day is local session day", time.Date(2026, time.October, 18, 23, 0, 0, 0, time.UTC), ReasonOutsideWindow},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := g.Check(context.Background(), req, tc.now)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if got.Reason != tc.want || got.Eligible != (tc.want == "") {
				t.Fatalf("Check = %+v, want reason %q", got, tc.want)
			}
			if tc.want != "" && got.Message != tc.want.Message() {
				t.Fatalf("message = %q", got.Message)
			}
		})
	}
}

func TestGateCheckOrder(t *testing.T) {
	ctx := context.Background()
	now := at(19, 9, 15, 0, 0)
	g, faces, dir, marks := newTestGate()

	// already marked wins over a missing session
	marks[pair{"s1", "gone"}] = true
	got, _ := g.Check(ctx, EligibilityRequest{StudentID: "s1", ModuleID: "m1", SessionID: "gone"}, now)
	if got.Reason != ReasonAlreadyMarked {
		t.Fatalf("reason = %q, want already_marked", got.Reason)
	}

	got, _ = g.Check(ctx, EligibilityRequest{StudentID: "s1", ModuleID: "m1", SessionID: "missing"}, now)
	if got.Reason != ReasonSessionNotFound || got.Message != "Session not found!" {
		t.Fatalf("missing session = %+v", got)
	}

	// a session of another module is not found from this module
	dir.enrolled[pair{"s1", "m1"}] = true
	got, _ = g.Check(ctx, EligibilityRequest{StudentID: "s1", ModuleID: "m1", SessionID: "y1"}, now)
	if got.Reason != ReasonSessionNotFound {
		t.Fatalf("foreign session reason = %q", got.Reason)
	}

	got, _ = g.Check(ctx, EligibilityRequest{StudentID: "s1", ModuleID: "m2", SessionID: "y1"}, now)
	if got.Reason != ReasonNotEnrolled || got.Message != "You are not enrolled in this module!" {
		t.Fatalf("not enrolled = %+v", got)
	}

	delete(faces, "s1")
	got, _ = g.Check(ctx, EligibilityRequest{StudentID: "s1", ModuleID: "m2", SessionID: "y1"}, now)
	if got.Reason != ReasonFaceNotRegistered {
		t.Fatalf("face reason = %q, want face_not_registered first", got.Reason)
	}
}

func TestReasonMessages(t *testing.T) {
	for _, r := range []Reason{ReasonFaceNotRegistered, ReasonNotEnrolled, ReasonAlreadyMarked, ReasonSessionNotFound, ReasonWrongDate, ReasonOutsideWindow} {
		if r.Message() == "" {
			t.Fatalf("reason %q has no message", r)
		}
	}
}
