package attendance

import (
	"context"
	"time"

	"faceattend/internal/campus"
)

// Recorder is the only writer of attendance records.
type Recorder struct {
	repo     *Repository
	locks    Locker
	lockWait time.Duration
	now      func() time.Time
}

// NewRecorder creates a recorder. lockWait bounds how long Record waits for a
// concurrent attempt on the same pair.
func NewRecorder(repo *Repository, locks Locker, lockWait time.Duration) *Recorder {
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &Recorder{repo: repo, locks: locks, lockWait: lockWait, now: time.Now}
}

// Record writes one Present mark for the pair. The pair lock spans the
// re-check and the insert; the unique constraint covers writers outside it.
func (r *Recorder) Record(ctx context.Context, studentID, moduleID, sessionID string) (*Record, error) {
	lockCtx, cancel := context.WithTimeout(ctx, r.lockWait)
	defer cancel()
	unlock, err := r.locks.Lock(lockCtx, pairKey(studentID, sessionID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	exists, err := r.repo.Exists(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyMarked
	}
	now := r.now().UTC()
	rec := &Record{
		StudentID:      studentID,
		ModuleID:       moduleID,
		SessionID:      sessionID,
		Status:         campus.StatusPresent,
		AttendanceTime: now,
		CreatedAt:      now,
	}
	if err := r.repo.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
