package record

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"lichess-pilot/internal/domain"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	url := fmt.Sprintf("redis://%s/0", mr.Addr())
	s, err := NewRedisStore(url, time.Hour)
	if err != nil {
		t.Fatalf("record.NewRedisStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func startedRecord(id string, startedAt time.Time) domain.GameRecord {
	return domain.GameRecord{
		GameID:    id,
		Color:     "white",
		Preset:    "balanced",
		Status:    domain.StatusStarted,
		StartedAt: startedAt,
	}
}

func TestMemoryStore_SaveLoadFinish(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	start := time.Now().Add(-3 * time.Minute)

	if err := s.Save(ctx, startedRecord("abc123", start)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "abc123")
	if err != nil || got == nil {
		t.Fatalf("Load: rec=%v err=%v", got, err)
	}
	if got.Status != domain.StatusStarted {
		t.Fatalf("unexpected status %q", got.Status)
	}

	// 종료 기록이 늦은 시작 시각을 들고 와도 먼저 저장된 시각을 유지해야 한다.
	fin := startedRecord("abc123", time.Now())
	fin.Status = domain.StatusMate
	fin.Winner = "white"
	fin.MovesUCI = []string{"e2e4", "e7e5"}
	fin.Ply = 2
	fin.EndedAt = time.Now()
	fin.Duration = fin.EndedAt.Sub(fin.StartedAt)
	if err := s.Finish(ctx, fin); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err = s.Load(ctx, "abc123")
	if err != nil || got == nil {
		t.Fatalf("Load after finish: rec=%v err=%v", got, err)
	}
	if got.Status != domain.StatusMate || got.Winner != "white" {
		t.Fatalf("finish not applied: %+v", got)
	}
	if !got.StartedAt.Equal(start) {
		t.Fatalf("started_at overwritten: got %v want %v", got.StartedAt, start)
	}
	if got.Duration < 2*time.Minute {
		t.Fatalf("duration not recomputed from merged start: %v", got.Duration)
	}
}

func TestMemoryStore_LoadMissing(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil record for missing id, got %+v", got)
	}
}

func TestMemoryStore_RecentOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 4; i++ {
		rec := startedRecord(fmt.Sprintf("game-%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	list, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	if list[0].GameID != "game-3" || list[2].GameID != "game-1" {
		t.Fatalf("unexpected order: %s, %s, %s", list[0].GameID, list[1].GameID, list[2].GameID)
	}
}

func TestRedisStore_SaveLoadRecent(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	if err := s.Save(ctx, startedRecord("r1", base)); err != nil {
		t.Fatalf("Save r1: %v", err)
	}
	if err := s.Save(ctx, startedRecord("r2", base.Add(time.Minute))); err != nil {
		t.Fatalf("Save r2: %v", err)
	}

	got, err := s.Load(ctx, "r1")
	if err != nil || got == nil {
		t.Fatalf("Load r1: rec=%v err=%v", got, err)
	}
	if got.Preset != "balanced" {
		t.Fatalf("unexpected preset %q", got.Preset)
	}

	list, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(list) != 2 || list[0].GameID != "r2" {
		t.Fatalf("unexpected recent list: %+v", list)
	}
}

func TestRedisStore_LoadMissing(t *testing.T) {
	s := newTestRedisStore(t)
	got, err := s.Load(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing game, got %+v", got)
	}
}

func TestRedisStore_FinishMergesStartedAt(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	start := time.Now().Add(-10 * time.Minute).Truncate(time.Second)

	if err := s.Save(ctx, startedRecord("m1", start)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fin := startedRecord("m1", time.Now())
	fin.Status = domain.StatusResign
	fin.Winner = "black"
	fin.EndedAt = time.Now()
	if err := s.Finish(ctx, fin); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := s.Load(ctx, "m1")
	if err != nil || got == nil {
		t.Fatalf("Load: rec=%v err=%v", got, err)
	}
	if got.Status != domain.StatusResign {
		t.Fatalf("finish not applied: %+v", got)
	}
	if !got.StartedAt.Equal(start) {
		t.Fatalf("started_at overwritten: got %v want %v", got.StartedAt, start)
	}
	if got.Duration < 9*time.Minute {
		t.Fatalf("duration not recomputed: %v", got.Duration)
	}
}

func TestRedisStore_FinishWithoutPriorSave(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	fin := startedRecord("orphan", time.Now().Add(-time.Minute))
	fin.Status = domain.StatusAborted
	fin.EndedAt = time.Now()
	if err := s.Finish(ctx, fin); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got, err := s.Load(ctx, "orphan")
	if err != nil || got == nil {
		t.Fatalf("Load: rec=%v err=%v", got, err)
	}
	if got.Status != domain.StatusAborted {
		t.Fatalf("unexpected status %q", got.Status)
	}
}
