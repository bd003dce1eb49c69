package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/engine/uci"
)

const (
	// 이 시간 넘게 busy면 묵은 요청으로 보고 강제 해제한다.
	fastStuckAfter = 500 * time.Millisecond
	// 연속 타임아웃이 여기 닿으면 세션을 갈아끼운다.
	fastRetryCap = 3

	fastDefaultMoveTimeMs = 80
	fastMaxMoveTimeMs     = 150
)

// Fast는 전용 세션 하나로 도는 보조 고속 오라클.
// 요청은 single-flight: busy 중 새 요청은 거절하고,
// 묵은 busy는 해제 후 새 요청이 차지한다.
type Fast struct {
	binary string
	opt    uci.Options

	mu        sync.Mutex
	sess      *uci.Session
	busy      bool
	startedAt time.Time
	lastFEN   string
	retries   int
}

func NewFast(binary string) *Fast {
	return &Fast{
		binary: binary,
		opt:    uci.Options{Threads: 1, HashMB: 16, MultiPV: 1},
	}
}

func (f *Fast) Analyse(ctx context.Context, req Request) ([]Line, error) {
	if err := f.beginRequest(req.FEN); err != nil {
		return nil, err
	}

	budget := req.BudgetMs
	if budget <= 0 {
		budget = fastDefaultMoveTimeMs
	}
	if budget > fastMaxMoveTimeMs {
		budget = fastMaxMoveTimeMs
	}

	reqCtx, cancel := context.WithTimeout(ctx, fastStuckAfter)
	defer cancel()

	sess, err := f.ensureSession(reqCtx)
	if err != nil {
		f.finishRequest(err)
		return nil, fmt.Errorf("fast session: %w", err)
	}

	resp, err := sess.Search(reqCtx, uci.SearchRequest{
		FEN:    req.FEN,
		Moves:  req.Moves,
		Limits: uci.Limits{MoveTimeMillis: budget},
	})
	f.finishRequest(err)
	if err != nil {
		return nil, fmt.Errorf("fast search: %w", err)
	}
	return linesFromCandidates(resp.Candidates), nil
}

// beginRequest는 liveness 기록을 선점한다. 젊은 busy면 거절,
// 묵은 busy면 해제하고 이 요청이 자리를 차지한다.
func (f *Fast) beginRequest(fen string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		stuck := time.Since(f.startedAt)
		if stuck < fastStuckAfter {
			return ErrOracleBusy
		}
		botlog.L().Warn("fast_oracle_stale_busy_cleared",
			zap.Duration("stuck", stuck),
			zap.String("last_fen", f.lastFEN))
	}
	f.busy = true
	f.startedAt = time.Now()
	f.lastFEN = fen
	return nil
}

func (f *Fast) finishRequest(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err == nil {
		f.retries = 0
		return
	}
	f.retries++
	botlog.L().Warn("fast_oracle_timeout",
		zap.Int("retries", f.retries),
		zap.String("last_fen", f.lastFEN),
		zap.Error(err))
	if f.retries >= fastRetryCap {
		f.reinitLocked()
	}
}

func (f *Fast) ensureSession(ctx context.Context) (*uci.Session, error) {
	f.mu.Lock()
	sess := f.sess
	f.mu.Unlock()
	if sess != nil {
		return sess, nil
	}

	created, err := uci.NewSession(ctx, f.binary, f.opt)
	if err != nil {
		return nil, err
	}
	if err := created.NewGame(ctx); err != nil {
		_ = created.Close()
		return nil, err
	}

	f.mu.Lock()
	if f.sess != nil {
		stale := created
		f.mu.Unlock()
		_ = stale.Close()
		f.mu.Lock()
	} else {
		f.sess = created
	}
	sess = f.sess
	f.mu.Unlock()
	return sess, nil
}

// BusyFor는 busy가 아니면 0, busy면 경과 시간.
func (f *Fast) BusyFor() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.busy {
		return 0
	}
	return time.Since(f.startedAt)
}

// ForceClear는 워치독이 부른다. busy 해제 + 재시도 가산,
// 재시도 상한에 닿으면 세션 재초기화까지 한다.
func (f *Fast) ForceClear() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.busy {
		return false
	}
	f.busy = false
	f.retries++
	botlog.L().Warn("fast_oracle_force_cleared",
		zap.Int("retries", f.retries),
		zap.String("last_fen", f.lastFEN))
	if f.retries >= fastRetryCap {
		f.reinitLocked()
	}
	return true
}

// Reinit은 세션을 버리고 재시도 카운터를 0으로.
func (f *Fast) Reinit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reinitLocked()
}

func (f *Fast) reinitLocked() {
	if f.sess != nil {
		_ = f.sess.Close()
		f.sess = nil
	}
	f.retries = 0
	botlog.L().Info("fast_oracle_reinit")
}

func (f *Fast) RetryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retries
}

func (f *Fast) LastFEN() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFEN
}

func (f *Fast) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess == nil {
		return nil
	}
	err := f.sess.Close()
	f.sess = nil
	return err
}
