package config

import (
	"testing"
	"time"
)

func TestLoad_AppEnvValidation(t *testing.T) {
	t.Setenv("APP_ENV", "invalid")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_ENV")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected HTTPAddr: %q", cfg.HTTPAddr)
	}
	if cfg.EnsembleMethod != "weighted" {
		t.Fatalf("unexpected EnsembleMethod: %q", cfg.EnsembleMethod)
	}
	if cfg.EnsembleWeights["xgb"] != 0.35 || cfg.EnsembleWeights["lgbm"] != 0.35 || cfg.EnsembleWeights["rule"] != 0.30 {
		t.Fatalf("unexpected EnsembleWeights: %v", cfg.EnsembleWeights)
	}
	if cfg.RetrainInterval != 7*24*time.Hour {
		t.Fatalf("unexpected RetrainInterval: %s", cfg.RetrainInterval)
	}
	if cfg.RetrainVolumeThreshold != 200 {
		t.Fatalf("unexpected RetrainVolumeThreshold: %d", cfg.RetrainVolumeThreshold)
	}
	if cfg.CacheTTLs["team_info"] != 24*time.Hour {
		t.Fatalf("unexpected team_info TTL: %s", cfg.CacheTTLs["team_info"])
	}
}

func TestLoad_CacheTTLOverrides(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("CACHE_TTLS", "standings:30m, odds:5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.CacheTTLs["standings"] != 30*time.Minute {
		t.Fatalf("unexpected standings TTL: %s", cfg.CacheTTLs["standings"])
	}
	if cfg.CacheTTLs["odds"] != 5*time.Minute {
		t.Fatalf("unexpected odds TTL: %s", cfg.CacheTTLs["odds"])
	}
	if cfg.CacheTTLs["team_info"] != 24*time.Hour {
		t.Fatalf("override must not clear defaults")
	}
}

func TestLoad_InvalidCacheTTL(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("CACHE_TTLS", "standings:not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid CACHE_TTLS")
	}
}

func TestLoad_EnsembleMethodValidation(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("ENSEMBLE_METHOD", "stacking")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid ENSEMBLE_METHOD")
	}
}

func TestLoad_EnsembleWeightsParsing(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("ENSEMBLE_WEIGHTS", "rule:0.5,xgb:0.25,lgbm:0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.EnsembleWeights["rule"] != 0.5 {
		t.Fatalf("unexpected rule weight: %v", cfg.EnsembleWeights["rule"])
	}
}

func TestLoad_NegativeWeightRejected(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("ENSEMBLE_WEIGHTS", "rule:-0.1")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for negative weight")
	}
}

func TestLoad_FetchParallelismBounds(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("FETCH_PARALLELISM", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for FETCH_PARALLELISM=0")
	}
}
