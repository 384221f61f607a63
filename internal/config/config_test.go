package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("FACE_MODEL", "")
	t.Setenv("FACE_SKIP", "")
	cfg := Load()
	if cfg.DBDriver != "pgx" {
		t.Fatalf("DBDriver = %q, want pgx", cfg.DBDriver)
	}
	if cfg.FaceModel != "VGG-Face" || cfg.FaceDetector != "opencv" {
		t.Fatalf("face config = %q/%q, want VGG-Face/opencv", cfg.FaceModel, cfg.FaceDetector)
	}
	if cfg.FaceSkip {
		t.Fatalf("FaceSkip should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("FACE_TIMEOUT", "5s")
	t.Setenv("FACE_SKIP", "1")
	t.Setenv("RATE_LIMIT_PER_MIN", "7")
	cfg := Load()
	if cfg.DBDriver != "sqlite3" {
		t.Fatalf("DBDriver = %q, want sqlite3", cfg.DBDriver)
	}
	if cfg.FaceTimeout != 5*time.Second {
		t.Fatalf("FaceTimeout = %s, want 5s", cfg.FaceTimeout)
	}
	if !cfg.FaceSkip {
		t.Fatalf("FaceSkip should be true")
	}
	if cfg.RateLimitPerMin != 7 {
		t.Fatalf("RateLimitPerMin = %d, want 7", cfg.RateLimitPerMin)
	}
}

func TestLoadFallsBackOnGarbage(t *testing.T) {
	t.Setenv("ACCESS_TTL", "soon")
	t.Setenv("MAX_UPLOAD_BYTES", "lots")
	cfg := Load()
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("AccessTTL = %s, want fallback 15m", cfg.AccessTTL)
	}
	if cfg.MaxUploadBytes != 8<<20 {
		t.Fatalf("MaxUploadBytes = %d, want fallback", cfg.MaxUploadBytes)
	}
}

func TestLocation(t *testing.T) {
	cfg := App{Timezone: "UTC"}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "UTC" {
		t.Fatalf("loc = %s, want UTC", loc)
	}
	if _, err := (App{Timezone: "Mars/Olympus"}).Location(); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}
