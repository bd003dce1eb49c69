package watch

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/guard"
)

const (
	defaultInterval = 1 * time.Second

	// 고속 오라클 타임아웃(500ms)의 두 배를 넘긴 busy는 묵은 것으로 본다.
	oracleStuckAfter = 1 * time.Second

	// 빠른 모드에서 결정은 수백 ms면 끝난다. 이걸 넘기면 플래그만 남은 상태.
	decidingStuckAfter = 2 * time.Second
)

// Oracle은 고속 오라클의 liveness 표면.
type Oracle interface {
	BusyFor() time.Duration
	ForceClear() bool
}

// Driver는 오케스트레이터의 재진입 표면.
type Driver interface {
	FastMode() bool
	DecidingFor() time.Duration
	DropDeciding()
	Redrive()
}

// Guard는 가드 상태 중 워치독이 보는 부분.
type Guard interface {
	Ended() bool
	Pending() (guard.PendingMove, bool)
}

// Turn은 관찰 계층 중 차례 질의.
type Turn interface {
	IsOurTurn() bool
}

type Deps struct {
	Oracle   Oracle
	Driver   Driver
	Guard    Guard
	Turn     Turn
	Interval time.Duration
}

// Watchdog은 빠른 모드에서 주기적으로 걸린 상태를 풀어 주는 복구 루프.
// 매 틱이 멱등이라 걸린 게 없으면 아무 일도 하지 않는다.
type Watchdog struct {
	oracle   Oracle
	driver   Driver
	guard    Guard
	turn     Turn
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(d Deps) *Watchdog {
	interval := d.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Watchdog{
		oracle:   d.Oracle,
		driver:   d.Driver,
		guard:    d.Guard,
		turn:     d.Turn,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (w *Watchdog) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Watchdog) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Watchdog) tick() {
	if !w.driver.FastMode() || w.guard.Ended() {
		return
	}

	redrive := false

	if w.oracle != nil {
		if busy := w.oracle.BusyFor(); busy > oracleStuckAfter {
			if w.oracle.ForceClear() {
				botlog.L().Warn("watchdog_cleared_stale_oracle", zap.Duration("busy", busy))
				redrive = true
			}
		}
	}

	if stuck := w.driver.DecidingFor(); stuck > decidingStuckAfter {
		busyNow := w.oracle != nil && w.oracle.BusyFor() > 0
		_, pending := w.guard.Pending()
		if !busyNow && !pending {
			botlog.L().Warn("watchdog_cleared_processing_flag", zap.Duration("stuck", stuck))
			w.driver.DropDeciding()
			redrive = true
		}
	}

	if !redrive {
		return
	}
	if _, pending := w.guard.Pending(); pending {
		return
	}
	if !w.turn.IsOurTurn() {
		return
	}
	w.driver.Redrive()
}
