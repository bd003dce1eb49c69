package panel

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/pkg/pilotdto"
)

// Listener는 후보/선택/종료 이벤트를 받는 패널 구현체.
type Listener interface {
	CandidatesReady(lines []pilotdto.CandidateLine)
	MoveChosen(choice pilotdto.MoveChoice)
	GameFinished(summary pilotdto.GameSummary)
}

type entry struct {
	id       int
	listener Listener
}

// Hub는 등록된 리스너 전체에 이벤트를 순서대로 전달. nil 허브도 안전.
type Hub struct {
	mu      sync.RWMutex
	entries []entry
	nextID  int
}

func NewHub() *Hub {
	return &Hub{}
}

// Attach는 해제용 id 반환. nil 리스너는 무시.
func (h *Hub) Attach(l Listener) int {
	if h == nil || l == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.entries = append(h.entries, entry{id: h.nextID, listener: l})
	return h.nextID
}

func (h *Hub) Detach(id int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.entries {
		if e.id == id {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return
		}
	}
}

func (h *Hub) snapshot() []entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]entry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *Hub) CandidatesReady(lines []pilotdto.CandidateLine) {
	if h == nil {
		return
	}
	for _, e := range h.snapshot() {
		e.listener.CandidatesReady(lines)
	}
}

func (h *Hub) MoveChosen(choice pilotdto.MoveChoice) {
	if h == nil {
		return
	}
	for _, e := range h.snapshot() {
		e.listener.MoveChosen(choice)
	}
}

func (h *Hub) GameFinished(summary pilotdto.GameSummary) {
	if h == nil {
		return
	}
	for _, e := range h.snapshot() {
		e.listener.GameFinished(summary)
	}
}

// LogListener는 요약 한 줄을 로그로만 남기는 기본 패널.
type LogListener struct{}

func (LogListener) CandidatesReady(lines []pilotdto.CandidateLine) {
	botlog.L().Debug("panel_candidates", zap.String("summary", FormatCandidates(lines)))
}

func (LogListener) MoveChosen(choice pilotdto.MoveChoice) {
	botlog.L().Info("panel_move", zap.String("summary", FormatChoice(choice)))
}

func (LogListener) GameFinished(summary pilotdto.GameSummary) {
	botlog.L().Info("panel_game_over", zap.String("summary", FormatSummary(summary)))
}

// scoreLabel은 센티폰 평가를 사람 읽는 표기로 변환. 메이트는 #N.
func scoreLabel(evalCP, mateIn int) string {
	if mateIn != 0 {
		return fmt.Sprintf("#%d", mateIn)
	}
	return fmt.Sprintf("%+.2f", float64(evalCP)/100)
}

func FormatCandidates(lines []pilotdto.CandidateLine) string {
	if len(lines) == 0 {
		return "no candidates"
	}
	parts := make([]string, 0, len(lines))
	for _, ln := range lines {
		p := fmt.Sprintf("%d %s %s", ln.Rank, ln.MoveUCI, scoreLabel(ln.EvalCP, ln.MateIn))
		if ln.Kind != "" {
			p += " " + ln.Kind
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " | ")
}

func FormatChoice(c pilotdto.MoveChoice) string {
	label := c.MoveSAN
	if label == "" {
		label = c.MoveUCI
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) rank %d eval %s", label, c.MoveUCI, c.Rank, scoreLabel(c.EvalCP, 0))
	if c.LossCP > 0 {
		fmt.Fprintf(&b, " loss %dcp", c.LossCP)
	}
	if c.Blunder {
		b.WriteString(" blunder")
	}
	if c.Capture {
		b.WriteString(" capture")
	}
	fmt.Fprintf(&b, " delay %dms", c.DelayMs)
	if c.Berserk {
		b.WriteString(" berserk")
	}
	return b.String()
}

func FormatSummary(s pilotdto.GameSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "game %s: %s", s.GameID, s.Status)
	if s.Winner != "" {
		fmt.Fprintf(&b, " winner %s", s.Winner)
	}
	fmt.Fprintf(&b, ", %d ply", s.Ply)
	if s.Blunders > 0 {
		fmt.Fprintf(&b, ", %d blunders", s.Blunders)
	}
	if s.Duration > 0 {
		fmt.Fprintf(&b, ", %s", s.Duration.Round(time.Second))
	}
	return b.String()
}
