package tracker

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
)

// TurnContext는 한 턴의 판단에 필요한 스냅샷.
// Baseline+History는 선택 엔진의 시뮬레이션 입력이다.
type TurnContext struct {
	FEN          string
	SideToMove   nchess.Color
	PieceCount   int
	Ply          int
	WhiteSeconds float64
	BlackSeconds float64
	Baseline     *nchess.Game
	History      []string
}

// OurSeconds는 우리 쪽 남은 시간.
func (c TurnContext) OurSeconds(our nchess.Color) float64 {
	if our == nchess.White {
		return c.WhiteSeconds
	}
	return c.BlackSeconds
}

// Tracker는 서버 프레임을 국면으로 접는 기본 관찰 계층.
// baseline은 합류 시점에 동결되고, 이후 수는 history로만 쌓인다.
// 반복 판정이 합류 이후 구간을 전부 볼 수 있게 하기 위한 구조다.
type Tracker struct {
	mu           sync.Mutex
	baseline     *nchess.Game
	current      *nchess.Game
	history      []string
	ourColor     nchess.Color
	whiteSeconds float64
	blackSeconds float64
	ply          int
	live         bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// StartNew는 표준 시작 포지션에서 새 게임을 연다.
func (t *Tracker) StartNew(our nchess.Color) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseline = nchess.NewGame()
	t.current = nchess.NewGame()
	t.history = nil
	t.ourColor = our
	t.whiteSeconds = 0
	t.blackSeconds = 0
	t.ply = 0
	t.live = true
	botlog.L().Info("tracker_game_started", zap.String("color", our.String()))
}

// StartFrom은 진행 중인 게임에 FEN 스냅샷으로 합류한다. 리싱크에도 쓴다.
func (t *Tracker) StartFrom(our nchess.Color, fen string) error {
	option, err := nchess.FEN(fen)
	if err != nil {
		return fmt.Errorf("parse fen %q: %w", fen, err)
	}
	base := nchess.NewGame(option)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseline = base
	t.current = base.Clone()
	t.history = nil
	t.ourColor = our
	t.ply = plyFromFEN(fen)
	t.live = true
	botlog.L().Info("tracker_joined_mid_game",
		zap.String("color", our.String()),
		zap.String("fen", fen),
		zap.Int("ply", t.ply))
	return nil
}

// ApplyMove는 서버가 확정한 수를 국면에 반영한다.
// 적용 실패는 스트림과 국면이 어긋났다는 뜻이므로 호출측이 리싱크해야 한다.
func (t *Tracker) ApplyMove(uci string) error {
	uci = strings.ToLower(strings.TrimSpace(uci))
	if uci == "" {
		return fmt.Errorf("empty move")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return fmt.Errorf("no game in progress")
	}
	if err := t.current.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		botlog.L().Warn("tracker_desync",
			zap.String("move", uci),
			zap.String("fen", t.current.FEN()),
			zap.Error(err))
		return fmt.Errorf("apply move %q: %w", uci, err)
	}
	t.history = append(t.history, uci)
	t.ply++
	return nil
}

func (t *Tracker) SetClocks(whiteSeconds, blackSeconds float64) {
	t.mu.Lock()
	t.whiteSeconds = whiteSeconds
	t.blackSeconds = blackSeconds
	t.mu.Unlock()
}

func (t *Tracker) EndGame() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.live {
		return
	}
	t.live = false
	botlog.L().Info("tracker_game_ended", zap.Int("ply", t.ply))
}

func (t *Tracker) IsLive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *Tracker) OurColor() nchess.Color {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ourColor
}

// IsOurTurn은 게임이 살아 있고 현재 차례가 우리 색일 때 true.
func (t *Tracker) IsOurTurn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.live || t.current == nil {
		return false
	}
	pos := t.current.Position()
	if pos == nil {
		return false
	}
	return pos.Turn() == t.ourColor
}

func (t *Tracker) FEN() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return ""
	}
	return t.current.FEN()
}

func (t *Tracker) Ply() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ply
}

func (t *Tracker) History() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.history))
	copy(out, t.history)
	return out
}

// Context는 현재 턴 스냅샷. 게임이 없으면 ok=false.
func (t *Tracker) Context() (TurnContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.live || t.current == nil || t.baseline == nil {
		return TurnContext{}, false
	}
	pos := t.current.Position()
	if pos == nil {
		return TurnContext{}, false
	}
	history := make([]string, len(t.history))
	copy(history, t.history)
	return TurnContext{
		FEN:          t.current.FEN(),
		SideToMove:   pos.Turn(),
		PieceCount:   pieceCount(t.current),
		Ply:          t.ply,
		WhiteSeconds: t.whiteSeconds,
		BlackSeconds: t.blackSeconds,
		Baseline:     t.baseline.Clone(),
		History:      history,
	}, true
}

func pieceCount(game *nchess.Game) int {
	pos := game.Position()
	if pos == nil {
		return 0
	}
	board := pos.Board()
	count := 0
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			if board.Piece(nchess.NewSquare(file, rank)) != nchess.NoPiece {
				count++
			}
		}
	}
	return count
}

// plyFromFEN은 FEN의 풀무브 번호와 차례로 지금까지 둔 반수를 센다.
func plyFromFEN(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 0
	}
	fullmove, err := strconv.Atoi(fields[5])
	if err != nil || fullmove < 1 {
		return 0
	}
	ply := (fullmove - 1) * 2
	if fields[1] == "b" {
		ply++
	}
	return ply
}
