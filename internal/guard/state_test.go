package guard

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestSubmitBlocksSecondMove(t *testing.T) {
	s := NewState()
	first := uuid.New()
	if err := s.Submit(first, "e2e4"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := s.Submit(uuid.New(), "d2d4"); !errors.Is(err, ErrMovePending) {
		t.Fatalf("second submit err = %v, want ErrMovePending", err)
	}
	if _, ok := s.Acknowledge(); !ok {
		t.Fatalf("acknowledge failed for pending move")
	}
	if err := s.Submit(uuid.New(), "d2d4"); err != nil {
		t.Fatalf("submit after ack: %v", err)
	}
}

func TestSubmitAllowsSameMoveResend(t *testing.T) {
	s := NewState()
	id := uuid.New()
	if err := s.Submit(id, "e2e4"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// 재접속 후 같은 수 재전송은 막지 않는다.
	if err := s.Submit(id, "e2e4"); err != nil {
		t.Fatalf("resend of pending move: %v", err)
	}
}

func TestEndGameBlocksUntilReset(t *testing.T) {
	s := NewState()
	s.EndGame()
	if err := s.Submit(uuid.New(), "e2e4"); !errors.Is(err, ErrGameEnded) {
		t.Fatalf("submit after end err = %v, want ErrGameEnded", err)
	}
	// 종료는 단조: 중복 EndGame도 상태를 유지한다.
	s.EndGame()
	if !s.Ended() {
		t.Fatalf("Ended() = false after EndGame")
	}
	s.Reset()
	if s.Ended() {
		t.Fatalf("Ended() = true after Reset")
	}
	if err := s.Submit(uuid.New(), "e2e4"); err != nil {
		t.Fatalf("submit after reset: %v", err)
	}
}

func TestDuplicateAckIsNoop(t *testing.T) {
	s := NewState()
	id := uuid.New()
	if err := s.Submit(id, "g1f3"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	acked, ok := s.Acknowledge()
	if !ok || acked.ID != id {
		t.Fatalf("first ack = (%v, %v), want id %v", acked.ID, ok, id)
	}
	if _, ok := s.Acknowledge(); ok {
		t.Fatalf("duplicate ack mutated state")
	}
	if s.LastAcked() != id {
		t.Fatalf("LastAcked = %v, want %v", s.LastAcked(), id)
	}
}

func TestDropPendingUnblocks(t *testing.T) {
	s := NewState()
	if err := s.Submit(uuid.New(), "e2e4"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	before := s.Epoch()
	s.DropPending()
	if _, ok := s.Pending(); ok {
		t.Fatalf("pending survived DropPending")
	}
	if s.Epoch() == before {
		t.Fatalf("epoch did not advance on DropPending")
	}
	if err := s.Submit(uuid.New(), "d2d4"); err != nil {
		t.Fatalf("submit after drop: %v", err)
	}
}

func TestAdvanceAck(t *testing.T) {
	s := NewState()
	s.AdvanceAck(7)
	if got := s.AckPly(); got != 7 {
		t.Fatalf("AckPly = %d, want 7", got)
	}
	// 서버가 준 값 그대로 따른다. 역행해도 덮어쓴다.
	s.AdvanceAck(5)
	if got := s.AckPly(); got != 5 {
		t.Fatalf("AckPly = %d, want 5", got)
	}
}

func TestEpochAdvancesOnResetClassTransitions(t *testing.T) {
	s := NewState()
	e0 := s.Epoch()
	s.EndGame()
	e1 := s.Epoch()
	if e1 == e0 {
		t.Fatalf("epoch unchanged by EndGame")
	}
	s.Reset()
	if s.Epoch() == e1 {
		t.Fatalf("epoch unchanged by Reset")
	}
}
