package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tahminlab/matchcast/internal/platform/logging"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	HTTPAddr       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	LogLevel       logging.Level

	CORSAllowedOrigins []string
	InternalJobToken   string

	FootballAPIBaseURL         string
	FootballAPIKey             string
	FootballAPITimeout         time.Duration
	FootballAPIMaxRetries      int
	FootballAPIRateLimitPerSec float64
	FootballAPIRateBurst       int
	FootballAPICircuitEnabled  bool
	FootballAPICircuitFailures int
	FootballAPICircuitOpenFor  time.Duration
	FootballAPICircuitHalfOpen int
	FetchParallelism           int
	FetchSlotTimeout           time.Duration
	FetchSlotRetries           int
	FetchSlotBackoffInitial    time.Duration

	CachePath   string
	CacheTTLs   map[string]time.Duration
	LedgerPath  string
	RatingsPath string
	ModelsDir   string

	PredictBudget   time.Duration
	EnsembleMethod  string
	EnsembleWeights map[string]float64

	RetrainInterval        time.Duration
	RetrainVolumeThreshold int
	RetrainMinSamples      int
	RetrainAccuracyDrop    float64
	AccuracyRecentWindow   time.Duration
	AccuracyBaselineWindow time.Duration
	RetrainRebuildWorkers  int
}

// DefaultCacheTTLs covers every upstream category. Overrides come from
// CACHE_TTLS as category:duration pairs.
func DefaultCacheTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		"team_info":       24 * time.Hour,
		"standings":       6 * time.Hour,
		"fixtures":        3 * time.Hour,
		"injuries":        6 * time.Hour,
		"transfers":       24 * time.Hour,
		"h2h":             7 * 24 * time.Hour,
		"odds":            15 * time.Minute,
		"weather":         time.Hour,
		"league_fixtures": 3 * time.Hour,
	}
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:         appEnv,
		ServiceName:    getEnv("SERVICE_NAME", "matchcast"),
		ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		LogLevel:       parseLogLevel(getEnv("LOG_LEVEL", "info")),
	}

	cfg.ReadTimeout, err = getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.WriteTimeout, err = getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_WRITE_TIMEOUT: %w", err)
	}

	cfg.CORSAllowedOrigins = parseList(getEnv("CORS_ALLOWED_ORIGINS", "*"))
	cfg.InternalJobToken = strings.TrimSpace(getEnv("INTERNAL_JOB_TOKEN", ""))

	cfg.FootballAPIBaseURL = strings.TrimRight(getEnv("FOOTBALL_API_BASE_URL", "https://v3.football.api-sports.io"), "/")
	cfg.FootballAPIKey = strings.TrimSpace(getEnv("FOOTBALL_API_KEY", ""))
	cfg.FootballAPITimeout, err = getEnvAsDuration("FOOTBALL_API_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse FOOTBALL_API_TIMEOUT: %w", err)
	}
	cfg.FootballAPIMaxRetries, err = getEnvAsInt("FOOTBALL_API_MAX_RETRIES", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse FOOTBALL_API_MAX_RETRIES: %w", err)
	}
	cfg.FootballAPIRateLimitPerSec, err = getEnvAsFloat("FOOTBALL_API_RATE_LIMIT_PER_SEC", 8)
	if err != nil {
		return Config{}, fmt.Errorf("parse FOOTBALL_API_RATE_LIMIT_PER_SEC: %w", err)
	}
	cfg.FootballAPIRateBurst, err = getEnvAsInt("FOOTBALL_API_RATE_BURST", 16)
	if err != nil {
		return Config{}, fmt.Errorf("parse FOOTBALL_API_RATE_BURST: %w", err)
	}
	cfg.FootballAPICircuitEnabled, err = strconv.ParseBool(getEnv("FOOTBALL_API_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FOOTBALL_API_CIRCUIT_ENABLED: %w", err)
	}
	cfg.FootballAPICircuitFailures, err = getEnvAsInt("FOOTBALL_API_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse FOOTBALL_API_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	cfg.FootballAPICircuitOpenFor, err = getEnvAsDuration("FOOTBALL_API_CIRCUIT_OPEN_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse FOOTBALL_API_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	cfg.FootballAPICircuitHalfOpen, err = getEnvAsInt("FOOTBALL_API_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse FOOTBALL_API_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}

	cfg.FetchParallelism, err = getEnvAsInt("FETCH_PARALLELISM", 8)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_PARALLELISM: %w", err)
	}
	if cfg.FetchParallelism < 1 {
		return Config{}, fmt.Errorf("FETCH_PARALLELISM must be >= 1")
	}
	cfg.FetchSlotTimeout, err = getEnvAsDuration("FETCH_SLOT_TIMEOUT", 8*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_SLOT_TIMEOUT: %w", err)
	}
	cfg.FetchSlotRetries, err = getEnvAsInt("FETCH_SLOT_RETRIES", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_SLOT_RETRIES: %w", err)
	}
	cfg.FetchSlotBackoffInitial, err = getEnvAsDuration("FETCH_SLOT_BACKOFF_INITIAL", 200*time.Millisecond)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_SLOT_BACKOFF_INITIAL: %w", err)
	}

	dataDir := getEnv("DATA_DIR", "data")
	cfg.CachePath = getEnv("CACHE_PATH", dataDir+"/cache.db")
	cfg.LedgerPath = getEnv("LEDGER_PATH", dataDir+"/ledger.db")
	cfg.RatingsPath = getEnv("RATINGS_PATH", dataDir+"/elo_ratings.json")
	cfg.ModelsDir = getEnv("MODELS_DIR", dataDir+"/models")

	cfg.CacheTTLs = DefaultCacheTTLs()
	ttlOverrides, err := parseDurationMap(getEnv("CACHE_TTLS", ""))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTLS: %w", err)
	}
	for category, ttl := range ttlOverrides {
		cfg.CacheTTLs[category] = ttl
	}

	cfg.PredictBudget, err = getEnvAsDuration("PREDICT_BUDGET", 15*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse PREDICT_BUDGET: %w", err)
	}

	cfg.EnsembleMethod = strings.ToLower(strings.TrimSpace(getEnv("ENSEMBLE_METHOD", "weighted")))
	switch cfg.EnsembleMethod {
	case "voting", "averaging", "weighted":
	default:
		return Config{}, fmt.Errorf("invalid ENSEMBLE_METHOD %q: valid values are voting, averaging, weighted", cfg.EnsembleMethod)
	}
	cfg.EnsembleWeights, err = parseWeightMap(getEnv("ENSEMBLE_WEIGHTS", "xgb:0.35,lgbm:0.35,rule:0.30"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ENSEMBLE_WEIGHTS: %w", err)
	}

	cfg.RetrainInterval, err = getEnvAsDuration("RETRAIN_INTERVAL", 7*24*time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("parse RETRAIN_INTERVAL: %w", err)
	}
	cfg.RetrainVolumeThreshold, err = getEnvAsInt("RETRAIN_VOLUME_THRESHOLD", 200)
	if err != nil {
		return Config{}, fmt.Errorf("parse RETRAIN_VOLUME_THRESHOLD: %w", err)
	}
	cfg.RetrainMinSamples, err = getEnvAsInt("RETRAIN_MIN_SAMPLES", 100)
	if err != nil {
		return Config{}, fmt.Errorf("parse RETRAIN_MIN_SAMPLES: %w", err)
	}
	cfg.RetrainAccuracyDrop, err = getEnvAsFloat("RETRAIN_ACCURACY_DROP", 0.05)
	if err != nil {
		return Config{}, fmt.Errorf("parse RETRAIN_ACCURACY_DROP: %w", err)
	}
	cfg.AccuracyRecentWindow, err = getEnvAsDuration("ACCURACY_RECENT_WINDOW", 7*24*time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("parse ACCURACY_RECENT_WINDOW: %w", err)
	}
	cfg.AccuracyBaselineWindow, err = getEnvAsDuration("ACCURACY_BASELINE_WINDOW", 30*24*time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("parse ACCURACY_BASELINE_WINDOW: %w", err)
	}
	cfg.RetrainRebuildWorkers, err = getEnvAsInt("RETRAIN_REBUILD_WORKERS", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse RETRAIN_REBUILD_WORKERS: %w", err)
	}

	return cfg, nil
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func parseList(raw string) []string {
	out := make([]string, 0, 2)
	for _, part := range strings.Split(raw, ",") {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func parseDurationMap(raw string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)
	for _, part := range strings.Split(raw, ",") {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}

		segments := strings.SplitN(item, ":", 2)
		if len(segments) != 2 {
			return nil, fmt.Errorf("invalid map item %q, expected category:duration", item)
		}

		key := strings.TrimSpace(segments[0])
		if key == "" {
			return nil, fmt.Errorf("empty category in item %q", item)
		}
		value, err := time.ParseDuration(strings.TrimSpace(segments[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid duration in item %q: %w", item, err)
		}
		if value <= 0 {
			return nil, fmt.Errorf("ttl must be > 0 in item %q", item)
		}

		out[key] = value
	}
	return out, nil
}

func parseWeightMap(raw string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(raw, ",") {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}

		segments := strings.SplitN(item, ":", 2)
		if len(segments) != 2 {
			return nil, fmt.Errorf("invalid map item %q, expected family:weight", item)
		}

		key := strings.TrimSpace(segments[0])
		if key == "" {
			return nil, fmt.Errorf("empty model family in item %q", item)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(segments[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight in item %q: %w", item, err)
		}
		if value < 0 {
			return nil, fmt.Errorf("weight must be >= 0 in item %q", item)
		}

		out[key] = value
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("at least one family:weight pair is required")
	}

	return out, nil
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
