package faces

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"faceattend/internal/blob"
)

// ErrUnprocessable is returned by a Backend when an input has no usable face.
var ErrUnprocessable = errors.New("face service could not process image")

// Comparison is the similarity backend's answer for one pair of images.
type Comparison struct {
	Verified bool
	Distance float64
}

// Backend compares two images under a model and detector fixed at construction.
type Backend interface {
	Verify(ctx context.Context, reference, probe []byte) (Comparison, error)
}

// Outcome tags how a verification ended.
type Outcome int

const (
	Verified Outcome = iota + 1
	NotVerified
	PreconditionFailed
	BackendUnavailable
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case NotVerified:
		return "not_verified"
	case PreconditionFailed:
		return "precondition_failed"
	case BackendUnavailable:
		return "backend_unavailable"
	default:
		return "unknown"
	}
}

// Result is the decision for one probe. Verified is true only for the Verified outcome.
type Result struct {
	Outcome  Outcome
	Verified bool
	Distance float64
	Detail   string
}

const (
	detailNoReference      = "No registered face found"
	detailReferenceMissing = "Registered face image not found"
	detailProbeMissing     = "Uploaded image not found"
)

// Matcher decides whether a probe image shows the student's registered face.
type Matcher struct {
	refs    References
	blobs   blob.Store
	backend Backend
	timeout time.Duration
}

// NewMatcher creates a matcher. A zero timeout leaves backend calls bounded only by ctx.
func NewMatcher(refs References, blobs blob.Store, backend Backend, timeout time.Duration) *Matcher {
	return &Matcher{refs: refs, blobs: blobs, backend: backend, timeout: timeout}
}

// Verify never returns an error: every failure becomes a non-verified Result
// with a detail explaining it.
func (m *Matcher) Verify(ctx context.Context, probeKey, studentID string) Result {
	refKey, err := m.refs.FaceReference(ctx, studentID)
	if err != nil {
		return m.unavailable(studentID, err)
	}
	if refKey == "" {
		return precondition(detailNoReference)
	}
	reference, err := m.blobs.Get(ctx, refKey)
	if isMissing(err) {
		return precondition(detailReferenceMissing)
	}
	if err != nil {
		return m.unavailable(studentID, err)
	}
	probe, err := m.blobs.Get(ctx, probeKey)
	if isMissing(err) {
		return precondition(detailProbeMissing)
	}
	if err != nil {
		return m.unavailable(studentID, err)
	}

	callCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	cmp, err := m.backend.Verify(callCtx, reference, probe)
	if errors.Is(err, ErrUnprocessable) {
		return Result{Outcome: NotVerified, Detail: comparisonError(err)}
	}
	if err != nil {
		return m.unavailable(studentID, err)
	}
	res := Result{Outcome: NotVerified, Distance: cmp.Distance, Detail: fmt.Sprintf("Distance: %.4f", cmp.Distance)}
	if cmp.Verified {
		res.Outcome = Verified
		res.Verified = true
	}
	return res
}

func isMissing(err error) bool {
	return errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidKey)
}

func precondition(detail string) Result {
	return Result{Outcome: PreconditionFailed, Detail: detail}
}

func comparisonError(err error) string {
	return "Face comparison error: " + err.Error()
}

func (m *Matcher) unavailable(studentID string, err error) Result {
	log.Printf("faces: verification for student %s failed: %v", studentID, err)
	return Result{Outcome: BackendUnavailable, Detail: comparisonError(err)}
}
