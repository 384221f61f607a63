package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/blob"
	"faceattend/internal/campus"
	"faceattend/internal/cleanup"
	"faceattend/internal/cloudinary"
	"faceattend/internal/config"
	"faceattend/internal/faceclient"
	"faceattend/internal/faces"
	"faceattend/internal/handler"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	var redisClient *store.Redis
	if cfg.QueueBackend != "memory" || cfg.LockBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			log.Printf("warning: redis at %s not reachable yet", cfg.RedisAddr)
		}
	}

	var cdnClient *cloudinary.Client
	if cfg.CloudinaryConfigured() {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	}
	blobs, err := blob.Open(cfg.BlobBackend, cfg.UploadDir, cdnClient)
	if err != nil {
		return err
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceModel, cfg.FaceDetector, cfg.FaceTimeout, cfg.FaceSkip)
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("WARNING: Face service not available: %v", err)
		} else {
			log.Println("Face service connected")
		}
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	var locks attendance.Locker
	if cfg.LockBackend == "redis" {
		locks = attendance.NewRedisLocker(redisClient.Client, 30*time.Second)
	} else {
		locks = attendance.NewLocalLocker()
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	campusRepo := campus.NewRepository(db.Client)
	campusSvc := campus.NewService(campusRepo)
	registry := faces.NewRegistry(campusRepo, blobs, cfg.ImageMaxDimension, cfg.ImageMaxPixels)
	attRepo := attendance.NewRepository(db.Client)
	att := attendance.NewService(attendance.Options{
		Gate:              attendance.NewGate(registry, campusRepo, attRepo, loc),
		Matcher:           faces.NewMatcher(campusRepo, blobs, face, cfg.FaceTimeout),
		Recorder:          attendance.NewRecorder(attRepo, locks, 10*time.Second),
		Blobs:             blobs,
		Queue:             q,
		Metrics:           m,
		ImageMaxDimension: cfg.ImageMaxDimension,
		ImageMaxPixels:    cfg.ImageMaxPixels,
	})

	// With the in-memory queue nobody else can drain it.
	if cfg.QueueBackend == "memory" {
		consumer := cleanup.NewConsumer(q, blobs, m, 30*time.Second)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Printf("cleanup consumer stopped: %v", err)
			}
		}()
	}
	if listable, ok := blobs.(cleanup.Store); ok {
		c, err := cleanup.NewReaper(listable, cfg.ProbeMaxAge, m).Start(cfg.ReaperSchedule)
		if err != nil {
			return err
		}
		defer c.Stop()
	}

	sessions := &auth.Sessions{
		Issuer: auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Tokens: auth.NewTokenStore(db.Client),
	}

	handler.RegisterValidators()
	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))

	// Security headers
	r.Use(securityHeaders())

	// Anonymous traffic is limited per address, signed-in traffic per user.
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware(httpmiddleware.ClientIP))
	perUser := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware(userKey)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db.Healthy(c.Request.Context())
		resp := gin.H{"status": "ok", "db": dbHealthy}
		status := http.StatusOK
		if redisClient != nil {
			redisHealthy := redisClient.Healthy(c.Request.Context())
			resp["redis"] = redisHealthy
			if !redisHealthy {
				status = http.StatusServiceUnavailable
			}
		}
		if !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	})

	handler.New(handler.Deps{
		Campus:         campusSvc,
		Attendance:     att,
		Faces:          registry,
		Sessions:       sessions,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}).Register(r, perUser)

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FaceTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func userKey(c *gin.Context) string {
	if id, ok := auth.Current(c); ok {
		return "user:" + id.UserID
	}
	return "ip:" + httpmiddleware.ClientIP(c)
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
