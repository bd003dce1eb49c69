package guard

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
)

// 전송 가드 위반. 호출측은 버리고 로그만 남긴다.
var (
	ErrGameEnded   = errors.New("game_ended")
	ErrMovePending = errors.New("move_pending")
)

// PendingMove는 전송됐지만 아직 ack가 오지 않은 수.
type PendingMove struct {
	ID  uuid.UUID
	UCI string
}

// State는 한 게임의 전송 가드 집합체.
// gameEnded는 Reset 전까지 단조, pendingMove는 동시에 최대 하나만 유지.
// epoch는 리셋류 전이마다 증가해서 늦게 깨어난 지연 작업이 자신이 낡았음을 알 수 있게 한다.
type State struct {
	mu        sync.Mutex
	gameEnded bool
	pending   *PendingMove
	lastAcked uuid.UUID
	ackPly    int
	epoch     uint64
}

func NewState() *State { return &State{} }

// Submit은 수 전송 직전에 호출. 게임 종료면 거부, 다른 수가 대기 중이면 거부.
// 같은 ID의 재전송(재접속 후 재시도)은 허용한다.
func (s *State) Submit(id uuid.UUID, uci string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gameEnded {
		botlog.L().Warn("move_blocked_game_ended", zap.String("uci", uci))
		return ErrGameEnded
	}
	if s.pending != nil && s.pending.ID != id {
		botlog.L().Warn("move_blocked_pending",
			zap.String("uci", uci),
			zap.String("pending_uci", s.pending.UCI))
		return ErrMovePending
	}
	s.pending = &PendingMove{ID: id, UCI: uci}
	return nil
}

// Acknowledge는 서버 ack 수신 처리. 대기 수가 없으면 중복 ack로 보고 무시.
func (s *State) Acknowledge() (PendingMove, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		if s.lastAcked != uuid.Nil {
			botlog.L().Debug("duplicate_ack_ignored", zap.String("last_acked", s.lastAcked.String()))
		} else {
			botlog.L().Debug("stray_ack_ignored")
		}
		return PendingMove{}, false
	}
	acked := *s.pending
	s.lastAcked = acked.ID
	s.pending = nil
	return acked, true
}

// AdvanceAck는 수신 move 프레임의 ply를 기록. 다음 전송의 a 필드로 쓴다.
func (s *State) AdvanceAck(ply int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ackPly = ply
}

// EndGame은 종료 상태로 전이. 이후 Submit은 Reset 전까지 전부 거부된다.
func (s *State) EndGame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gameEnded {
		return
	}
	s.gameEnded = true
	s.pending = nil
	s.epoch++
	botlog.L().Info("guard_game_ended")
}

// DropPending은 reload/resync 수신 처리. 대기 수를 버리고 Idle로 돌아간다.
func (s *State) DropPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		botlog.L().Info("pending_dropped_on_resync", zap.String("uci", s.pending.UCI))
		s.pending = nil
	}
	s.epoch++
}

// Reset은 새 게임/재대국 준비. 종료 플래그 포함 전부 초기화.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameEnded = false
	s.pending = nil
	s.lastAcked = uuid.Nil
	s.ackPly = 0
	s.epoch++
	botlog.L().Info("guard_reset")
}

func (s *State) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameEnded
}

// Pending은 대기 중인 수를 반환. 없으면 ok=false.
func (s *State) Pending() (PendingMove, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingMove{}, false
	}
	return *s.pending, true
}

func (s *State) AckPly() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ackPly
}

func (s *State) LastAcked() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAcked
}

// Epoch는 리셋류 전이 횟수. 지연 작업은 잠들기 전 값과 비교해서 낡았으면 포기한다.
func (s *State) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}
