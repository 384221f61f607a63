package attendance

import (
	"context"
	"time"

	"faceattend/internal/campus"
)

// Reason explains why an attempt is not eligible.
type Reason string

const (
	ReasonFaceNotRegistered Reason = "face_not_registered"
	ReasonNotEnrolled       Reason = "not_enrolled"
	ReasonAlreadyMarked     Reason = "already_marked"
	ReasonSessionNotFound   Reason = "session_not_found"
	ReasonWrongDate         Reason = "wrong_date"
	ReasonOutsideWindow     Reason = "outside_window"
)

var reasonMessages = map[Reason]string{
	ReasonFaceNotRegistered: "Please register your face image for attendance marking.",
	ReasonNotEnrolled:       "You are not enrolled in this module!",
	ReasonAlreadyMarked:     "Attendance already marked for this session!",
	ReasonSessionNotFound:   "Session not found!",
	ReasonWrongDate:         "Attendance can only be marked on the session date!",
	ReasonOutsideWindow:     "Attendance can only be marked during the session time!",
}

// Message is the user-facing text for the reason.
func (r Reason) Message() string { return reasonMessages[r] }

// EligibilityRequest names the attempt being checked.
type EligibilityRequest struct {
	StudentID string
	ModuleID  string
	SessionID string
}

// Eligibility is the gate's verdict. Session is set once the session was found.
type Eligibility struct {
	Eligible bool            `json:"eligible"`
	Reason   Reason          `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
	Session  *campus.Session `json:"session,omitempty"`
}

func ineligible(r Reason, sess *campus.Session) Eligibility {
	return Eligibility{Reason: r, Message: r.Message(), Session: sess}
}

// FaceChecker reports whether a student's reference face is usable.
type FaceChecker interface {
	HasRegisteredFace(ctx context.Context, studentID string) (bool, error)
}

// Directory is the slice of the identity store the gate reads.
type Directory interface {
	IsEnrolled(ctx context.Context, studentID, moduleID string) (bool, error)
	SessionByID(ctx context.Context, id string) (*campus.Session, error)
}

// MarkChecker reports whether attendance already exists for a pair.
type MarkChecker interface {
	Exists(ctx context.Context, studentID, sessionID string) (bool, error)
}

// Gate decides whether an attempt may proceed to image capture.
type Gate struct {
	faces FaceChecker
	dir   Directory
	marks MarkChecker
	loc   *time.Location
}

// NewGate creates a gate that compares dates and times in loc.
func NewGate(faces FaceChecker, dir Directory, marks MarkChecker, loc *time.Location) *Gate {
	if loc == nil {
		loc = time.Local
	}
	return &Gate{faces: faces, dir: dir, marks: marks, loc: loc}
}

// Check runs the checks in order and stops at the first failure. Errors are
// storage failures only; every expected refusal is an Eligibility.
func (g *Gate) Check(ctx context.Context, req EligibilityRequest, now time.Time) (Eligibility, error) {
	ok, err := g.faces.HasRegisteredFace(ctx, req.StudentID)
	if err != nil {
		return Eligibility{}, err
	}
	if !ok {
		return ineligible(ReasonFaceNotRegistered, nil), nil
	}

	if ok, err = g.dir.IsEnrolled(ctx, req.StudentID, req.ModuleID); err != nil {
		return Eligibility{}, err
	} else if !ok {
		return ineligible(ReasonNotEnrolled, nil), nil
	}

	if ok, err = g.marks.Exists(ctx, req.StudentID, req.SessionID); err != nil {
		return Eligibility{}, err
	} else if ok {
		return ineligible(ReasonAlreadyMarked, nil), nil
	}

	sess, err := g.dir.SessionByID(ctx, req.SessionID)
	if err != nil {
		return Eligibility{}, err
	}
	if sess == nil || sess.ModuleID != req.ModuleID {
		return ineligible(ReasonSessionNotFound, nil), nil
	}

	local := now.In(g.loc)
	if campus.DateOf(local) != sess.Date {
		return ineligible(ReasonWrongDate, sess), nil
	}
	tod := campus.TimeOfDayOf(local)
	if tod.Before(sess.Start) || tod.After(sess.End) {
		return ineligible(ReasonOutsideWindow, sess), nil
	}
	return Eligibility{Eligible: true, Session: sess}, nil
}
