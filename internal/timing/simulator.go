package timing

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/preset"
)

// 최근 딜레이 이동 평균 창 크기.
const paceWindow = 8

// Input은 딜레이 계산에 필요한 턴 정보.
type Input struct {
	FastMode   bool
	Capture    bool
	PieceCount int
}

// Simulator는 전송 전 대기 시간을 사람 속도처럼 만든다.
// 기본 범위 추첨에 즉답/장고 확률을 얹고, 최근 평균이 목표를
// 넘으면 비례 축소로 페이스를 되돌린다.
type Simulator struct {
	randMu sync.Mutex
	rand   *rand.Rand

	mu     sync.Mutex
	recent []int
}

func NewSimulator() *Simulator {
	return &Simulator{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *Simulator) SetRandomSeed(seed int64) {
	s.randMu.Lock()
	s.rand = rand.New(rand.NewSource(seed))
	s.randMu.Unlock()
}

func (s *Simulator) random() *rand.Rand {
	s.randMu.Lock()
	seed := s.rand.Int63()
	s.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

// DelayMs는 이번 수의 전송 전 대기 밀리초.
// 빠른 모드, 잡는 수, 기물 수가 프리무브 문턱 이하면 0.
func (s *Simulator) DelayMs(p preset.TimingProfile, in Input) int {
	if in.FastMode || in.Capture {
		return 0
	}
	if p.PremovePieces > 0 && in.PieceCount > 0 && in.PieceCount <= p.PremovePieces {
		return 0
	}

	rnd := s.random()
	delay := randRange(rnd, p.BaseMinMs, p.BaseMaxMs)

	// 즉답이 장고보다 먼저. 한 번의 추첨으로 상호 배타를 보장한다.
	roll := rnd.Float64()
	switch {
	case roll < p.QuickChance:
		delay = randRange(rnd, p.QuickMinMs, p.QuickMaxMs)
	case roll < p.QuickChance+p.TankChance:
		delay = randRange(rnd, p.TankMinMs, p.TankMaxMs)
	}

	if avg := s.rollingAvg(); avg > 0 && p.TargetAvgMs > 0 && avg > p.TargetAvgMs {
		scaled := int(float64(delay) * float64(p.TargetAvgMs) / float64(avg))
		botlog.L().Debug("pace_correction",
			zap.Int("rolling_avg_ms", avg),
			zap.Int("target_ms", p.TargetAvgMs),
			zap.Int("raw_ms", delay),
			zap.Int("scaled_ms", scaled))
		delay = scaled
	}

	if delay < 0 {
		delay = 0
	}
	if p.MaxDelayMs > 0 && delay > p.MaxDelayMs {
		delay = p.MaxDelayMs
	}

	s.record(delay)
	return delay
}

// Reset은 새 게임에서 페이스 기록을 비운다.
func (s *Simulator) Reset() {
	s.mu.Lock()
	s.recent = nil
	s.mu.Unlock()
}

// Window는 현재 페이스 창의 사본.
func (s *Simulator) Window() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.recent))
	copy(out, s.recent)
	return out
}

func (s *Simulator) record(delayMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, delayMs)
	if len(s.recent) > paceWindow {
		s.recent = s.recent[len(s.recent)-paceWindow:]
	}
}

func (s *Simulator) rollingAvg() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) == 0 {
		return 0
	}
	sum := 0
	for _, d := range s.recent {
		sum += d
	}
	return sum / len(s.recent)
}

func randRange(rnd *rand.Rand, minMs, maxMs int) int {
	if maxMs <= minMs {
		return minMs
	}
	return minMs + rnd.Intn(maxMs-minMs+1)
}
