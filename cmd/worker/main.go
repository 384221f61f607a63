package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceattend/internal/blob"
	"faceattend/internal/cleanup"
	"faceattend/internal/cloudinary"
	"faceattend/internal/config"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// Worker drains probe.delete messages from Redis and sweeps stale probes.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}

	var cdnClient *cloudinary.Client
	if cfg.CloudinaryConfigured() {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	}
	blobs, err := blob.Open(cfg.BlobBackend, cfg.UploadDir, cdnClient)
	if err != nil {
		log.Fatalf("blob store init failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable, consumer will keep retrying", cfg.RedisAddr)
	}
	q := queue.NewRedisQueue(redisClient.Client, "")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	go serveMetrics(ctx, cfg.WorkerMetricsAddr, reg)

	if listable, ok := blobs.(cleanup.Store); ok {
		c, err := cleanup.NewReaper(listable, cfg.ProbeMaxAge, m).Start(cfg.ReaperSchedule)
		if err != nil {
			log.Fatalf("reaper schedule %q: %v", cfg.ReaperSchedule, err)
		}
		defer func() { <-c.Stop().Done() }()
	} else {
		log.Printf("blob backend %q cannot be listed, reaper disabled", cfg.BlobBackend)
	}

	log.Println("worker started, waiting for messages...")
	if err := cleanup.NewConsumer(q, blobs, m, 30*time.Second).Run(ctx); err != nil {
		log.Printf("consumer init failed: %v", err)
	}
	log.Println("worker stopped")
}

// serveMetrics exposes the worker's collectors on addr when set.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("metrics server: %v", err)
	}
}
