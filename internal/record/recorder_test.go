package record

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lichess-pilot/internal/domain"
)

type fakeSnapshotter struct {
	calls int
	fen   string
	last  string
	flip  bool
}

func (f *fakeSnapshotter) RenderFEN(fen, lastMoveUCI string, flip bool) ([]byte, error) {
	f.calls++
	f.fen = fen
	f.last = lastMoveUCI
	f.flip = flip
	return []byte("png-bytes"), nil
}

type fixedLag int

func (l fixedLag) Average() int { return int(l) }

func TestRecorder_GameFinished(t *testing.T) {
	store := NewMemoryStore()
	snaps := &fakeSnapshotter{}
	dir := t.TempDir()
	r := NewRecorder(store, nil, snaps, dir, fixedLag(87))

	rec := domain.GameRecord{
		GameID:    "fin42",
		Color:     "black",
		Preset:    "rapid",
		Status:    domain.StatusMate,
		Winner:    "black",
		MovesUCI:  []string{"e2e4", "e7e5", "f1c4", "g8f6"},
		FinalFEN:  "rnbqkb1r/pppp1ppp/5n2/4p3/2B1P3/8/PPPP1PPP/RNBQK1NR w KQkq - 2 3",
		Ply:       4,
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
	}
	r.GameStarted(rec)
	r.GameFinished(rec)

	if snaps.calls != 1 {
		t.Fatalf("expected one render call, got %d", snaps.calls)
	}
	if snaps.last != "g8f6" {
		t.Fatalf("renderer got last move %q", snaps.last)
	}
	if !snaps.flip {
		t.Fatalf("black game should render flipped")
	}

	stored, err := store.Load(context.Background(), "fin42")
	if err != nil || stored == nil {
		t.Fatalf("Load: rec=%v err=%v", stored, err)
	}
	if stored.AvgLagMs != 87 {
		t.Fatalf("avg lag not recorded: %d", stored.AvgLagMs)
	}
	wantPath := filepath.Join(dir, "fin42.png")
	if stored.SnapshotPath != wantPath {
		t.Fatalf("snapshot path = %q, want %q", stored.SnapshotPath, wantPath)
	}
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("snapshot file: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected snapshot payload %q", data)
	}
}

func TestRecorder_NoSnapshotWithoutRenderer(t *testing.T) {
	store := NewMemoryStore()
	r := NewRecorder(store, nil, nil, "", nil)

	rec := domain.GameRecord{
		GameID:    "plain1",
		Color:     "white",
		Status:    domain.StatusDraw,
		FinalFEN:  "8/8/8/8/8/5k2/8/5K2 w - - 0 60",
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
	}
	r.GameFinished(rec)

	stored, err := store.Load(context.Background(), "plain1")
	if err != nil || stored == nil {
		t.Fatalf("Load: rec=%v err=%v", stored, err)
	}
	if stored.SnapshotPath != "" {
		t.Fatalf("unexpected snapshot path %q", stored.SnapshotPath)
	}
}
