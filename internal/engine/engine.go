package engine

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/engine/uci"
	"lichess-pilot/internal/guard"
)

var (
	ErrOracleBusy   = errors.New("oracle_busy")
	ErrNoCandidates = errors.New("no_candidates")
)

type EvalKind string

const (
	EvalScore EvalKind = "score"
	EvalMate  EvalKind = "mate"
)

// Line은 분석 결과 한 줄. Rank 1이 최선.
// Kind가 mate면 MateIn이 메이트까지 수(음수면 우리가 당하는 쪽),
// EvalCP는 ±MateValueCP 사영값이다.
type Line struct {
	Rank      int
	Move      string
	EvalCP    int
	MateIn    int
	Kind      EvalKind
	Principal []string
}

// OpponentMateWithin은 이 수가 상대에게 n수 내 강제 메이트를 내주는지.
func (l Line) OpponentMateWithin(n int) bool {
	return l.Kind == EvalMate && l.MateIn < 0 && -l.MateIn <= n
}

type Request struct {
	FEN      string
	Moves    []string
	BudgetMs int
}

type Oracle interface {
	Analyse(ctx context.Context, req Request) ([]Line, error)
}

// Pipeline은 가드 재확인, 결과 캐시, 모드별 오라클 선택을 묶는다.
// 호출측이 가드를 먼저 보지만 비동기 틈이 있으므로 여기서 한 번 더 본다.
type Pipeline struct {
	st      *guard.State
	primary Oracle
	fast    Oracle

	mu        sync.Mutex
	cachedFEN string
	cached    []Line
}

func NewPipeline(st *guard.State, primary, fast Oracle) *Pipeline {
	return &Pipeline{st: st, primary: primary, fast: fast}
}

// Analyse는 포지션 분석. 같은 FEN 반복은 캐시로 즉답한다.
func (p *Pipeline) Analyse(ctx context.Context, req Request, fastMode bool) ([]Line, error) {
	if p.st != nil && p.st.Ended() {
		botlog.L().Debug("analysis_skipped_game_ended", zap.String("fen", req.FEN))
		return nil, guard.ErrGameEnded
	}

	if lines, ok := p.lookup(req.FEN); ok {
		botlog.L().Debug("analysis_cache_hit", zap.String("fen", req.FEN))
		return lines, nil
	}

	oracle := p.primary
	if fastMode && p.fast != nil {
		oracle = p.fast
	}

	lines, err := oracle.Analyse(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(lines) > 0 {
		p.store(req.FEN, lines)
	}
	return lines, nil
}

func (p *Pipeline) lookup(fen string) ([]Line, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fen == "" || fen != p.cachedFEN || len(p.cached) == 0 {
		return nil, false
	}
	out := make([]Line, len(p.cached))
	copy(out, p.cached)
	return out, true
}

func (p *Pipeline) store(fen string, lines []Line) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cachedFEN = fen
	p.cached = make([]Line, len(lines))
	copy(p.cached, lines)
}

// DropCache는 새 게임/리싱크 때 호출.
func (p *Pipeline) DropCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cachedFEN = ""
	p.cached = nil
}

func linesFromCandidates(in []uci.Candidate) []Line {
	out := make([]Line, 0, len(in))
	for i, c := range in {
		kind := EvalScore
		if c.IsMate() {
			kind = EvalMate
		}
		out = append(out, Line{
			Rank:      i + 1,
			Move:      c.Move,
			EvalCP:    c.EvalCP,
			MateIn:    c.Mate,
			Kind:      kind,
			Principal: append([]string(nil), c.Principal...),
		})
	}
	return out
}
