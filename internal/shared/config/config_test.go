package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ANALYSIS_MAX_STREAMS", "")
	t.Setenv("OBJECT_STORE", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.MaxStreams != 4 {
		t.Fatalf("expected default max streams 4, got %d", cfg.MaxStreams)
	}
	if cfg.ObjectStoreType != "local" {
		t.Fatalf("expected local object store, got %q", cfg.ObjectStoreType)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("ANALYSIS_MAX_STREAMS", "8")
	t.Setenv("ANALYSIS_BATCH_SIZE", "not-a-number")
	t.Setenv("OBJECT_STORE", "S3")
	t.Setenv("CORS_ALLOW_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	if cfg.Env != "production" {
		t.Fatalf("expected production env, got %q", cfg.Env)
	}
	if cfg.MaxStreams != 8 {
		t.Fatalf("expected max streams 8, got %d", cfg.MaxStreams)
	}
	if cfg.BatchSize != 10 {
		t.Fatalf("expected invalid batch size to fall back to 10, got %d", cfg.BatchSize)
	}
	if cfg.ObjectStoreType != "s3" {
		t.Fatalf("expected s3 object store, got %q", cfg.ObjectStoreType)
	}
	if len(cfg.CORSAllowOrigin) != 2 || cfg.CORSAllowOrigin[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins: %#v", cfg.CORSAllowOrigin)
	}
}
