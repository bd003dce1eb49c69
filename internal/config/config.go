package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	LichessBaseURL string
	LichessWSURL   string

	GameID      string
	SessionFile string

	StockfishPath     string
	FastStockfishPath string
	EnginePoolSize    int

	DefaultPreset string
	PresetFile    string

	RedisURL     string
	DatabaseURL  string
	SnapshotDir  string
	RecordTTLSec int

	FastMode    bool
	PanicMode   bool
	LagOffsetMs int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		LichessBaseURL: "https://lichess.org",
		LichessWSURL:   "wss://socket5.lichess.org",
		EnginePoolSize: 2,
		DefaultPreset:  "balanced",
		RecordTTLSec:   3600,
	}

	if v := strings.TrimSpace(os.Getenv("LICHESS_BASE_URL")); v != "" {
		cfg.LichessBaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("LICHESS_WS_URL")); v != "" {
		cfg.LichessWSURL = strings.TrimRight(v, "/")
	}

	cfg.GameID = strings.TrimSpace(os.Getenv("GAME_ID"))
	cfg.SessionFile = strings.TrimSpace(os.Getenv("SESSION_FILE"))

	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.FastStockfishPath = strings.TrimSpace(os.Getenv("FAST_STOCKFISH_PATH"))
	if cfg.FastStockfishPath == "" {
		cfg.FastStockfishPath = cfg.StockfishPath
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_POOL_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EnginePoolSize = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("PILOT_PRESET")); v != "" {
		cfg.DefaultPreset = v
	}
	cfg.PresetFile = strings.TrimSpace(os.Getenv("PRESET_FILE"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.SnapshotDir = strings.TrimSpace(os.Getenv("SNAPSHOT_DIR"))
	if v := strings.TrimSpace(os.Getenv("RECORD_TTL")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RecordTTLSec = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("FAST_MODE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FastMode = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("PANIC_MODE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PanicMode = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("LAG_OFFSET_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.LagOffsetMs = n
		}
	}

	if cfg.StockfishPath == "" {
		return nil, errors.New("STOCKFISH_PATH is required")
	}

	return cfg, nil
}
