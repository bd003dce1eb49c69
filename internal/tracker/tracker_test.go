package tracker

import (
	"strings"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

const midGameFEN = "rnbqkbnr/ppp1pppp/8/3P4/8/8/PPPP1PPP/RNBQKBNR b KQkq - 0 2"

func TestStartNewTurnOrder(t *testing.T) {
	tr := NewTracker()
	tr.StartNew(nchess.White)
	if !tr.IsLive() {
		t.Fatalf("tracker must be live after start")
	}
	if !tr.IsOurTurn() {
		t.Fatalf("white starts, must be our turn")
	}

	if err := tr.ApplyMove("e2e4"); err != nil {
		t.Fatalf("apply e2e4: %v", err)
	}
	if tr.IsOurTurn() {
		t.Fatalf("after our move it is the opponent's turn")
	}
	if tr.Ply() != 1 {
		t.Fatalf("ply = %d, want 1", tr.Ply())
	}
}

func TestStartNewAsBlack(t *testing.T) {
	tr := NewTracker()
	tr.StartNew(nchess.Black)
	if tr.IsOurTurn() {
		t.Fatalf("white to move, black tracker must wait")
	}
	if err := tr.ApplyMove("e2e4"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !tr.IsOurTurn() {
		t.Fatalf("after white's move it is black's turn")
	}
}

func TestApplyMoveRejectsIllegal(t *testing.T) {
	tr := NewTracker()
	tr.StartNew(nchess.White)
	if err := tr.ApplyMove("e2e5"); err == nil {
		t.Fatalf("illegal move must be rejected")
	}
	if len(tr.History()) != 0 {
		t.Fatalf("rejected move must not enter history")
	}
	if tr.Ply() != 0 {
		t.Fatalf("rejected move must not advance ply")
	}
}

func TestApplyMoveWithoutGame(t *testing.T) {
	tr := NewTracker()
	if err := tr.ApplyMove("e2e4"); err == nil {
		t.Fatalf("apply before start must fail")
	}
}

func TestContextSnapshot(t *testing.T) {
	tr := NewTracker()
	tr.StartNew(nchess.White)
	tr.SetClocks(55.5, 60)
	for _, mv := range []string{"e2e4", "d7d5", "e4d5"} {
		if err := tr.ApplyMove(mv); err != nil {
			t.Fatalf("apply %s: %v", mv, err)
		}
	}

	ctx, ok := tr.Context()
	if !ok {
		t.Fatalf("context must be available")
	}
	if ctx.SideToMove != nchess.Black {
		t.Fatalf("side to move = %v, want black", ctx.SideToMove)
	}
	if ctx.PieceCount != 31 {
		t.Fatalf("piece count = %d, want 31 after exd5", ctx.PieceCount)
	}
	if ctx.Ply != 3 {
		t.Fatalf("ply = %d, want 3", ctx.Ply)
	}
	if ctx.WhiteSeconds != 55.5 || ctx.BlackSeconds != 60 {
		t.Fatalf("clocks = %v/%v", ctx.WhiteSeconds, ctx.BlackSeconds)
	}
	if len(ctx.History) != 3 || ctx.History[2] != "e4d5" {
		t.Fatalf("history = %v", ctx.History)
	}

	// baseline+history를 재생하면 현재 FEN이 나와야 한다.
	replay := ctx.Baseline.Clone()
	for _, mv := range ctx.History {
		if err := replay.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			t.Fatalf("replay %s: %v", mv, err)
		}
	}
	if replay.FEN() != ctx.FEN {
		t.Fatalf("replayed fen %q != context fen %q", replay.FEN(), ctx.FEN)
	}
}

func TestContextBaselineIsIsolated(t *testing.T) {
	tr := NewTracker()
	tr.StartNew(nchess.White)
	ctx, ok := tr.Context()
	if !ok {
		t.Fatalf("context must be available")
	}
	if err := ctx.Baseline.PushNotationMove("e2e4", nchess.UCINotation{}, nil); err != nil {
		t.Fatalf("push on snapshot: %v", err)
	}
	if !strings.HasPrefix(tr.FEN(), "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w") {
		t.Fatalf("mutating the snapshot leaked into the tracker: %s", tr.FEN())
	}
}

func TestStartFromMidGame(t *testing.T) {
	tr := NewTracker()
	if err := tr.StartFrom(nchess.Black, midGameFEN); err != nil {
		t.Fatalf("start from fen: %v", err)
	}
	if !tr.IsOurTurn() {
		t.Fatalf("black to move in the snapshot")
	}
	if tr.Ply() != 3 {
		t.Fatalf("ply = %d, want 3 from fullmove 2 black", tr.Ply())
	}
	ctx, ok := tr.Context()
	if !ok {
		t.Fatalf("context must be available")
	}
	if ctx.PieceCount != 31 {
		t.Fatalf("piece count = %d, want 31", ctx.PieceCount)
	}

	if err := tr.ApplyMove("d8d5"); err != nil {
		t.Fatalf("apply queen takes d5: %v", err)
	}
	if tr.Ply() != 4 {
		t.Fatalf("ply = %d, want 4", tr.Ply())
	}
	if tr.IsOurTurn() {
		t.Fatalf("white's turn after our reply")
	}
}

func TestStartFromRejectsBadFEN(t *testing.T) {
	tr := NewTracker()
	if err := tr.StartFrom(nchess.White, "not a fen"); err == nil {
		t.Fatalf("bad fen must be rejected")
	}
	if tr.IsLive() {
		t.Fatalf("failed start must not mark the tracker live")
	}
}

func TestEndGame(t *testing.T) {
	tr := NewTracker()
	tr.StartNew(nchess.White)
	tr.EndGame()
	tr.EndGame()
	if tr.IsLive() {
		t.Fatalf("tracker must be dead after end")
	}
	if tr.IsOurTurn() {
		t.Fatalf("ended game has no turns")
	}
	if _, ok := tr.Context(); ok {
		t.Fatalf("ended game must not produce a context")
	}
}

func TestPlyFromFEN(t *testing.T) {
	if n := plyFromFEN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"); n != 0 {
		t.Fatalf("start fen ply = %d, want 0", n)
	}
	if n := plyFromFEN(midGameFEN); n != 3 {
		t.Fatalf("mid game ply = %d, want 3", n)
	}
	if n := plyFromFEN("broken"); n != 0 {
		t.Fatalf("broken fen ply = %d, want 0", n)
	}
}
