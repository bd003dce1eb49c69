package builder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/config"
	"lichess-pilot/internal/engine"
	"lichess-pilot/internal/engine/uci"
	"lichess-pilot/internal/guard"
	"lichess-pilot/internal/lag"
	"lichess-pilot/internal/panel"
	"lichess-pilot/internal/picker"
	"lichess-pilot/internal/preset"
	"lichess-pilot/internal/record"
	"lichess-pilot/internal/snapshot"
	"lichess-pilot/internal/timing"
	"lichess-pilot/internal/tracker"
)

// Deps는 한 판을 돌리는 구성요소 묶음. 소켓/오케스트레이터는
// 게임 ID가 정해진 뒤 main에서 조립한다.
type Deps struct {
	Catalog   *preset.Catalog
	Preset    preset.PlayPreset
	Guard     *guard.State
	Tracker   *tracker.Tracker
	Pool      *uci.Pool
	Primary   *engine.Primary
	Fast      *engine.Fast
	Pipeline  *engine.Pipeline
	Selector  *picker.Selector
	Budget    *picker.BlunderBudget
	Simulator *timing.Simulator
	Lag       *lag.Estimator
	Panel     *panel.Hub
	Store     record.Store
	Archive   *record.Archive
	Recorder  *record.Recorder
}

func New(cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if strings.TrimSpace(cfg.StockfishPath) == "" {
		return nil, fmt.Errorf("STOCKFISH_PATH is required for oracles")
	}

	catalog, err := preset.Load(cfg.PresetFile)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	p, err := catalog.Get(cfg.DefaultPreset)
	if err != nil {
		return nil, err
	}

	st := guard.NewState()
	obs := tracker.NewTracker()

	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: cfg.StockfishPath, Capacity: cfg.EnginePoolSize})
	if err != nil {
		return nil, fmt.Errorf("init oracle pool: %w", err)
	}
	primary := engine.NewPrimary(pool, uci.Options{MultiPV: p.MultiPV})
	fast := engine.NewFast(cfg.FastStockfishPath)
	pipeline := engine.NewPipeline(st, primary, fast)

	selector := picker.NewSelector()
	budget := picker.NewBudget(p.MaxBlunders)
	simulator := timing.NewSimulator()

	// 판 오프셋과 전역 오프셋은 합산해서 신고한다.
	estimator := lag.NewEstimator(p.LagOffsetMs + cfg.LagOffsetMs)

	hub := panel.NewHub()
	hub.Attach(panel.LogListener{})

	// 기록 저장소: Redis가 있으면 Redis, 없으면 인메모리.
	var store record.Store
	storeKind := "memory"
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rs, rerr := record.NewRedisStore(cfg.RedisURL, time.Duration(cfg.RecordTTLSec)*time.Second)
		if rerr != nil {
			return nil, fmt.Errorf("init record store: %w", rerr)
		}
		store = rs
		storeKind = "redis"
	} else {
		store = record.NewMemoryStore()
	}

	var archive *record.Archive
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		archive, err = record.NewArchive(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
	}

	var snaps record.Snapshotter
	if strings.TrimSpace(cfg.SnapshotDir) != "" {
		snaps = snapshot.NewRenderer()
	}

	recorder := record.NewRecorder(store, archive, snaps, cfg.SnapshotDir, estimator)

	botlog.L().Info("pilot_components_ready",
		zap.String("preset", p.Name),
		zap.String("store", storeKind),
		zap.Bool("archive", archive != nil),
		zap.Bool("snapshots", snaps != nil))

	return &Deps{
		Catalog:   catalog,
		Preset:    p,
		Guard:     st,
		Tracker:   obs,
		Pool:      pool,
		Primary:   primary,
		Fast:      fast,
		Pipeline:  pipeline,
		Selector:  selector,
		Budget:    budget,
		Simulator: simulator,
		Lag:       estimator,
		Panel:     hub,
		Store:     store,
		Archive:   archive,
		Recorder:  recorder,
	}, nil
}

// Close는 오라클과 저장소를 닫는다. 여러 실패는 모아서 돌려준다.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Fast != nil {
		if err := d.Fast.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Pool != nil {
		if err := d.Pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Archive != nil {
		if err := d.Archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
