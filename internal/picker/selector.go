package picker

import (
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/engine"
)

var ErrNoChoices = errors.New("no_choices")

const (
	// 상대 강제 메이트 필터 한계.
	mateGuardDepth = 3
	// 의도적 실수라도 이미 지고 있으면(cp 기준) 더 망치지 않는다.
	blunderEvalFloor = -100

	weightFloor     = 3.0
	lossWeightSlope = 0.1
)

// Choice는 선택된 수와 그 메타데이터.
type Choice struct {
	Move    string
	SAN     string
	Rank    int
	EvalCP  int
	LossCP  int
	Blunder bool
	Capture bool
}

// Selector는 분석 줄에서 실제로 둘 수를 고른다.
// 기보 사본 위에서 후보를 시뮬레이션해 무승부행/즉패행 후보를 거르고,
// 순위 가중 랜덤으로 다양성을 만든다.
type Selector struct {
	randMu sync.Mutex
	rand   *rand.Rand
}

func NewSelector() *Selector {
	return &Selector{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *Selector) SetRandomSeed(seed int64) {
	s.randMu.Lock()
	s.rand = rand.New(rand.NewSource(seed))
	s.randMu.Unlock()
}

func (s *Selector) random() *rand.Rand {
	s.randMu.Lock()
	seed := s.rand.Int63()
	s.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

// Config는 Choose가 쓰는 프리셋 조각.
type Config struct {
	MaxCPLoss        int
	RankWeights      []float64
	MaxBlunders      int
	BlunderThreshold int
	BlunderChance    float64
}

// Choose는 baseline(게임 합류 시점 스냅샷, nil이면 표준 시작 포지션)에
// history를 얹은 현재 국면 위에서 lines를 시뮬레이션하고 하나를 고른다.
func (s *Selector) Choose(cfg Config, lines []engine.Line, baseline *nchess.Game, history []string, budget *BlunderBudget) (Choice, error) {
	if len(lines) == 0 {
		return Choice{}, ErrNoChoices
	}
	sims := simulate(baseline, history, lines)
	return s.pick(cfg, sims, budget)
}

type simResult struct {
	line    engine.Line
	san     string
	illegal bool
	drawish bool
	capture bool
}

// simulate는 후보마다 기보 사본에 적용해 본다. 수가 깨져 있으면 illegal,
// 적용 직후 무승부(스테일메이트/자동 무승부/3회 반복/50수 청구 가능)면 drawish.
func simulate(baseline *nchess.Game, history []string, lines []engine.Line) []simResult {
	base, seenKeys := replayWithKeys(baseline, history)
	if base == nil {
		botlog.L().Warn("simulation_replay_failed", zap.Int("history_len", len(history)))
		// 시뮬레이션 불가면 거르지 않고 전부 통과시킨다.
		out := make([]simResult, 0, len(lines))
		for _, ln := range lines {
			out = append(out, simResult{line: ln})
		}
		return out
	}

	out := make([]simResult, 0, len(lines))
	for _, ln := range lines {
		sr := simResult{line: ln}
		clone := base.Clone()
		pos := clone.Position()
		mv, err := nchess.UCINotation{}.Decode(pos, strings.ToLower(strings.TrimSpace(ln.Move)))
		if err != nil {
			botlog.L().Warn("candidate_illegal", zap.String("move", ln.Move), zap.Error(err))
			sr.illegal = true
			out = append(out, sr)
			continue
		}
		sr.san = nchess.AlgebraicNotation{}.Encode(pos, mv)
		sr.capture = mv.HasTag(nchess.Capture) || mv.HasTag(nchess.EnPassant)
		if err := clone.Move(mv, nil); err != nil {
			botlog.L().Warn("candidate_illegal", zap.String("move", ln.Move), zap.Error(err))
			sr.illegal = true
			out = append(out, sr)
			continue
		}

		fen := clone.FEN()
		if clone.Outcome() == nchess.Draw {
			sr.drawish = true
		} else if seenKeys[repetitionKey(fen)] >= 2 {
			// 이 수로 같은 포지션 3회째: 상대가 무승부를 청구할 수 있다.
			sr.drawish = true
		} else if halfmoveClock(fen) >= 100 {
			sr.drawish = true
		}
		out = append(out, sr)
	}
	return out
}

func (s *Selector) pick(cfg Config, sims []simResult, budget *BlunderBudget) (Choice, error) {
	legal := make([]simResult, 0, len(sims))
	for _, sr := range sims {
		if !sr.illegal {
			legal = append(legal, sr)
		}
	}
	if len(legal) == 0 {
		return Choice{}, ErrNoChoices
	}

	// 무승부행 후보 제거. 전부 무승부행이면 어쩔 수 없이 되살린다.
	nonDraw := make([]simResult, 0, len(legal))
	for _, sr := range legal {
		if !sr.drawish {
			nonDraw = append(nonDraw, sr)
		}
	}
	if len(nonDraw) == 0 {
		botlog.L().Info("all_candidates_draw_bound")
		nonDraw = legal
	}

	// 상대에게 단기 강제 메이트를 내주는 후보 제거. 대안이 없으면 유지.
	safe := make([]simResult, 0, len(nonDraw))
	for _, sr := range nonDraw {
		if !sr.line.OpponentMateWithin(mateGuardDepth) {
			safe = append(safe, sr)
		}
	}
	if len(safe) == 0 {
		botlog.L().Warn("all_candidates_lose_by_mate")
		safe = nonDraw
	}

	bestEval := legal[0].line.EvalCP
	rnd := s.random()
	blunderOK := budget != nil && budget.Used() < cfg.MaxBlunders &&
		bestEval > blunderEvalFloor &&
		rnd.Float64() < cfg.BlunderChance

	type weighted struct {
		sr     simResult
		loss   int
		weight float64
	}
	pool := make([]weighted, 0, len(safe))
	total := 0.0
	for _, sr := range safe {
		loss := bestEval - sr.line.EvalCP
		if loss < 0 {
			loss = 0
		}
		if loss > cfg.MaxCPLoss && !blunderOK {
			continue
		}
		w := rankWeight(cfg.RankWeights, sr.line.Rank) - lossWeightSlope*float64(loss)
		if w < weightFloor {
			w = weightFloor
		}
		pool = append(pool, weighted{sr: sr, loss: loss, weight: w})
		total += w
	}

	var picked weighted
	switch {
	case len(pool) == 0:
		// 전부 잘렸으면 결정론적으로 최선 수.
		botlog.L().Info("selection_fallback_best", zap.String("move", legal[0].line.Move))
		picked = weighted{sr: legal[0], loss: 0}
	case total <= 0:
		picked = pool[0]
	default:
		threshold := rnd.Float64() * total
		picked = pool[len(pool)-1]
		for _, w := range pool {
			threshold -= w.weight
			if threshold <= 0 {
				picked = w
				break
			}
		}
	}

	choice := Choice{
		Move:    picked.sr.line.Move,
		SAN:     picked.sr.san,
		Rank:    picked.sr.line.Rank,
		EvalCP:  picked.sr.line.EvalCP,
		LossCP:  picked.loss,
		Capture: picked.sr.capture,
	}
	if picked.loss >= cfg.BlunderThreshold {
		choice.Blunder = true
		if budget != nil {
			budget.Spend()
		}
	}
	return choice, nil
}

func rankWeight(weights []float64, rank int) float64 {
	if len(weights) == 0 {
		return weightFloor
	}
	idx := rank - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(weights) {
		idx = len(weights) - 1
	}
	return weights[idx]
}

// replayWithKeys는 baseline 사본에 수순을 적용한 게임과, baseline 포함 매 수 이후
// 포지션의 반복 키 등장 횟수를 돌려준다. 수가 깨지면 (nil, nil).
func replayWithKeys(baseline *nchess.Game, moves []string) (*nchess.Game, map[string]int) {
	var game *nchess.Game
	if baseline == nil {
		game = nchess.NewGame()
	} else {
		game = baseline.Clone()
	}
	keys := make(map[string]int, len(moves)+1)
	keys[repetitionKey(game.FEN())]++
	for _, mv := range moves {
		if err := game.PushNotationMove(strings.TrimSpace(mv), nchess.UCINotation{}, nil); err != nil {
			return nil, nil
		}
		keys[repetitionKey(game.FEN())]++
	}
	return game, keys
}

// repetitionKey는 FEN에서 반복 판정에 쓰는 앞 4개 필드(배치, 차례, 캐슬링, 앙파상)만 남긴다.
func repetitionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return fen
	}
	return strings.Join(fields[:4], " ")
}

func halfmoveClock(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 5 {
		return 0
	}
	n, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0
	}
	return n
}
