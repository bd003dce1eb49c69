package uci

import (
	"strings"
	"testing"
)

func TestParseInfoScoreCP(t *testing.T) {
	line := "info depth 18 seldepth 24 multipv 2 score cp 34 nodes 51234 pv e2e4 e7e5 g1f3"
	rank, cand, ok := parseInfo(line)
	if !ok {
		t.Fatalf("parseInfo failed for %q", line)
	}
	if rank != 2 {
		t.Fatalf("rank = %d, want 2", rank)
	}
	if cand.Move != "e2e4" || cand.EvalCP != 34 || cand.Mate != 0 {
		t.Fatalf("candidate = %+v", cand)
	}
	if cand.IsMate() {
		t.Fatalf("cp line parsed as mate")
	}
	if len(cand.Principal) != 3 {
		t.Fatalf("principal = %v", cand.Principal)
	}
}

func TestParseInfoMateKeepsDistance(t *testing.T) {
	line := "info depth 12 multipv 1 score mate -2 pv d8h4 g2g3 h4g3"
	_, cand, ok := parseInfo(line)
	if !ok {
		t.Fatalf("parseInfo failed for %q", line)
	}
	if !cand.IsMate() || cand.Mate != -2 {
		t.Fatalf("mate = %d, want -2", cand.Mate)
	}
	if cand.EvalCP != -MateValueCP {
		t.Fatalf("eval projection = %d, want %d", cand.EvalCP, -MateValueCP)
	}
}

func TestParseInfoPositiveMate(t *testing.T) {
	_, cand, ok := parseInfo("info depth 10 multipv 1 score mate 3 pv f3f7")
	if !ok {
		t.Fatalf("parseInfo failed")
	}
	if cand.Mate != 3 || cand.EvalCP != MateValueCP {
		t.Fatalf("candidate = %+v", cand)
	}
}

func TestParseInfoIgnoresNoPV(t *testing.T) {
	if _, _, ok := parseInfo("info depth 5 currmove e2e4 currmovenumber 1"); ok {
		t.Fatalf("line without pv should be skipped")
	}
}

func TestBuildPositionCommand(t *testing.T) {
	got := buildPositionCommand("startpos", []string{"e2e4", "e7e5"})
	if got != "position startpos moves e2e4 e7e5\n" {
		t.Fatalf("command = %q", got)
	}
	fen := "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"
	got = buildPositionCommand(fen, nil)
	if got != "position fen "+fen+"\n" {
		t.Fatalf("command = %q", got)
	}
}

func TestBuildGoTokens(t *testing.T) {
	tokens, err := buildGoTokens(Limits{MoveTimeMillis: 400, Depth: 18})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	joined := strings.Join(tokens, " ")
	if joined != "go depth 18 movetime 400" {
		t.Fatalf("tokens = %q", joined)
	}
	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatalf("expected error for empty limits")
	}
}

func TestCollapseCandidatesOrdersByRank(t *testing.T) {
	m := map[int]Candidate{
		3: {Move: "c2c4"},
		1: {Move: "e2e4"},
		2: {Move: "d2d4"},
	}
	got := collapseCandidates(m)
	want := []string{"e2e4", "d2d4", "c2c4"}
	for i, mv := range want {
		if got[i].Move != mv {
			t.Fatalf("collapsed[%d] = %q, want %q", i, got[i].Move, mv)
		}
	}
}
