package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"faceattend/internal/blob"
	"faceattend/internal/faces"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
)

const (
	msgMarked        = "Attendance marked successfully!"
	msgVerifyFailed  = "Face verification failed. Please try again. (Error: %s)"
	msgInvalidFormat = "Invalid file format"
)

// SubmitRequest is one attendance attempt with its probe image.
type SubmitRequest struct {
	StudentID string
	ModuleID  string
	SessionID string
	Filename  string
	Image     []byte
}

// AttemptResult is what the caller reports back to the student. Declined
// attempts are results, not errors.
type AttemptResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Reason  Reason  `json:"reason,omitempty"`
	Detail  string  `json:"detail,omitempty"`
	Outcome string  `json:"outcome,omitempty"`
	Record  *Record `json:"record,omitempty"`
}

// Options wires a Service.
type Options struct {
	Gate     *Gate
	Matcher  *faces.Matcher
	Recorder *Recorder
	Blobs    blob.Store
	// Queue receives probe.delete messages when inline deletion fails. May be nil.
	Queue   queue.Queue
	Metrics *metrics.Metrics
	// ImageMaxDimension bounds the stored probe; 0 keeps the original size.
	ImageMaxDimension int
	// ImageMaxPixels refuses uploads declaring more pixels; 0 means faces.DefaultMaxPixels.
	ImageMaxPixels int
	Now            func() time.Time
}

// Service runs attendance attempts end to end.
type Service struct {
	gate     *Gate
	matcher  *faces.Matcher
	recorder *Recorder
	blobs    blob.Store
	queue    queue.Queue
	metrics  *metrics.Metrics
	maxDim   int
	maxPix   int
	now      func() time.Time
}

// NewService creates the attendance service.
func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		gate:     opts.Gate,
		matcher:  opts.Matcher,
		recorder: opts.Recorder,
		blobs:    opts.Blobs,
		queue:    opts.Queue,
		metrics:  opts.Metrics,
		maxDim:   opts.ImageMaxDimension,
		maxPix:   opts.ImageMaxPixels,
		now:      now,
	}
}

// CheckEligibility evaluates the gate at the current time.
func (s *Service) CheckEligibility(ctx context.Context, req EligibilityRequest) (Eligibility, error) {
	elig, err := s.gate.Check(ctx, req, s.now())
	if err != nil {
		return Eligibility{}, err
	}
	if !elig.Eligible {
		s.metrics.Rejected(string(elig.Reason))
	}
	return elig, nil
}

// Submit runs one attempt: the gate is evaluated again, the probe is stored,
// verified without holding any lock, deleted, and on a match the record is written.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (AttemptResult, error) {
	if !faces.AllowedFile(req.Filename) {
		s.metrics.Attempt("invalid_format")
		return AttemptResult{Message: msgInvalidFormat}, nil
	}
	probe, err := faces.Normalize(req.Image, s.maxDim, s.maxPix)
	if errors.Is(err, faces.ErrInvalidImage) {
		s.metrics.Attempt("invalid_format")
		return AttemptResult{Message: msgInvalidFormat, Detail: err.Error()}, nil
	}
	if err != nil {
		return AttemptResult{}, err
	}

	elig, err := s.CheckEligibility(ctx, EligibilityRequest{
		StudentID: req.StudentID,
		ModuleID:  req.ModuleID,
		SessionID: req.SessionID,
	})
	if err != nil {
		return AttemptResult{}, err
	}
	if !elig.Eligible {
		s.metrics.Attempt("ineligible")
		return AttemptResult{Reason: elig.Reason, Message: elig.Message}, nil
	}

	key := faces.ProbeKey(req.StudentID, req.SessionID, s.now().UTC())
	if err := s.blobs.Put(ctx, key, probe); err != nil {
		return AttemptResult{}, fmt.Errorf("attendance: store probe: %w", err)
	}
	started := time.Now()
	res := s.matcher.Verify(ctx, key, req.StudentID)
	s.metrics.Verified(res.Outcome.String(), time.Since(started))
	s.discardProbe(ctx, key)

	if !res.Verified {
		s.metrics.Attempt("not_verified")
		return AttemptResult{
			Message: fmt.Sprintf(msgVerifyFailed, res.Detail),
			Detail:  res.Detail,
			Outcome: res.Outcome.String(),
		}, nil
	}

	rec, err := s.recorder.Record(ctx, req.StudentID, req.ModuleID, req.SessionID)
	if errors.Is(err, ErrAlreadyMarked) {
		s.metrics.Conflict()
		s.metrics.Attempt("already_marked")
		return AttemptResult{
			Reason:  ReasonAlreadyMarked,
			Message: ReasonAlreadyMarked.Message(),
			Detail:  res.Detail,
			Outcome: res.Outcome.String(),
		}, nil
	}
	if err != nil {
		return AttemptResult{}, err
	}
	s.metrics.Attempt("marked")
	return AttemptResult{
		Success: true,
		Message: msgMarked,
		Detail:  res.Detail,
		Outcome: res.Outcome.String(),
		Record:  rec,
	}, nil
}

// discardProbe removes the probe whatever the outcome. A failed delete is
// handed to the cleanup queue.
func (s *Service) discardProbe(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := s.blobs.Delete(ctx, key)
	if err == nil {
		s.metrics.ProbeCleanup("deleted")
		return
	}
	log.Printf("attendance: delete probe %s: %v", key, err)
	if s.queue == nil {
		s.metrics.ProbeCleanup("failed")
		return
	}
	if err := s.queue.Publish(ctx, queue.ProbeDelete(key)); err != nil {
		log.Printf("attendance: enqueue probe cleanup %s: %v", key, err)
		s.metrics.ProbeCleanup("failed")
		return
	}
	s.metrics.ProbeCleanup("deferred")
}
