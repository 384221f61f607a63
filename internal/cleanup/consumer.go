// Package cleanup removes probe images that outlived their attendance attempt.
package cleanup

import (
	"context"
	"log"
	"time"

	"faceattend/internal/blob"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
)

// Consumer deletes probes named by probe.delete messages.
type Consumer struct {
	q       queue.Queue
	blobs   blob.Store
	metrics *metrics.Metrics
	retry   time.Duration
}

// NewConsumer creates a consumer. A failed delete is re-published after retry.
func NewConsumer(q queue.Queue, blobs blob.Store, m *metrics.Metrics, retry time.Duration) *Consumer {
	if retry <= 0 {
		retry = 30 * time.Second
	}
	return &Consumer{q: q, blobs: blobs, metrics: m, retry: retry}
}

// Run processes messages until ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		c.Handle(ctx, msg)
	}
	return nil
}

// Handle processes one message. Unknown message types are ignored.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) {
	if msg.Type != queue.TypeProbeDelete {
		log.Printf("cleanup: ignoring message type %q", msg.Type)
		return
	}
	key := string(msg.Body)
	err := c.blobs.Delete(ctx, key)
	if err == nil {
		c.metrics.ProbeCleanup("deleted")
		return
	}
	log.Printf("cleanup: delete %s failed, retrying in %s: %v", key, c.retry, err)
	c.metrics.ProbeCleanup("failed")
	go func() {
		select {
		case <-time.After(c.retry):
		case <-ctx.Done():
			// the reaper catches anything left behind
			return
		}
		if err := c.q.Publish(ctx, msg); err != nil {
			log.Printf("cleanup: requeue %s: %v", key, err)
		}
	}()
}
