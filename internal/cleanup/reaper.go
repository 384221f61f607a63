package cleanup

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"faceattend/internal/blob"
	"faceattend/internal/faces"
	"faceattend/internal/metrics"
)

// Store is a blob store that can be listed.
type Store interface {
	blob.Store
	blob.Lister
}

// Reaper periodically removes probes older than MaxAge. Probes normally live
// for one request, so anything that old was orphaned by a crash or a failed delete.
type Reaper struct {
	blobs   Store
	maxAge  time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewReaper creates a reaper for listable stores.
func NewReaper(blobs Store, maxAge time.Duration, m *metrics.Metrics) *Reaper {
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	return &Reaper{blobs: blobs, maxAge: maxAge, metrics: m, now: time.Now}
}

// Sweep deletes stale probes once and returns how many were removed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	objs, err := r.blobs.List(ctx, faces.ProbePrefix)
	if err != nil {
		return 0, err
	}
	threshold := r.now().Add(-r.maxAge)
	deleted := 0
	for _, o := range objs {
		if !o.ModTime.Before(threshold) {
			continue
		}
		if err := r.blobs.Delete(ctx, o.Key); err != nil {
			log.Printf("[PROBE-REAPER] delete %s: %v", o.Key, err)
			continue
		}
		deleted++
	}
	r.metrics.Reaped(deleted)
	if deleted > 0 {
		log.Printf("[PROBE-REAPER] deleted %d/%d probes older than %s", deleted, len(objs), threshold.Format(time.RFC3339))
	}
	return deleted, nil
}

// Start schedules Sweep on a cron spec. Overlapping runs are skipped.
// Stop the returned cron to end the schedule.
func (r *Reaper) Start(schedule string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()
		if _, err := r.Sweep(ctx); err != nil {
			log.Printf("[PROBE-REAPER] sweep failed: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[PROBE-REAPER] started schedule=%q maxAge=%s", schedule, r.maxAge)
	c.Start()
	return c, nil
}
