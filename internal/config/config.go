package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Fanout broker
	FanoutPort int
	FanoutAddr string // set on worker processes that join a remote bus

	// Document store
	StorePath string

	// Odds provider
	OddsBaseURL string
	OddsAPIKeys []string // ordered pool, rotated on quota exhaustion
	OddsRegion  string

	// Score provider
	ScoresBaseURL string
	ScoresAPIKey  string

	// YAML configs
	RiskLimitsPath string
	WavesPath      string

	// Timing
	RequestTimeout time.Duration

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		FanoutPort: envInt("FANOUT_PORT", 8876),
		FanoutAddr: envStr("FANOUT_ADDR", ""),

		StorePath: envStr("STORE_PATH", "data/betflow.db"),

		OddsBaseURL: envStr("ODDS_BASE_URL", "https://api.the-odds-api.com/v4"),
		OddsAPIKeys: envList("ODDS_API_KEYS"),
		OddsRegion:  envStr("ODDS_REGION", "us"),

		ScoresBaseURL: envStr("SCORES_BASE_URL", "https://api.the-odds-api.com/v4"),
		ScoresAPIKey:  envStr("SCORES_API_KEY", ""),

		RiskLimitsPath: envStr("RISK_LIMITS_PATH", "internal/config/risk_limits.yaml"),
		WavesPath:      envStr("WAVES_PATH", "internal/config/waves.yaml"),

		// Every external call carries this as its per-call deadline.
		RequestTimeout: time.Duration(envInt("REQUEST_TIMEOUT_SEC", 20)) * time.Second,

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
