package record

import (
	"context"
	"sort"
	"strings"
	"sync"

	"lichess-pilot/internal/domain"
)

// Store는 진행/종료 판 기록의 저장 표면. 없는 판은 (nil, nil)로 돌려준다.
type Store interface {
	Save(ctx context.Context, rec domain.GameRecord) error
	Finish(ctx context.Context, rec domain.GameRecord) error
	Load(ctx context.Context, gameID string) (*domain.GameRecord, error)
	Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error)
	Close() error
}

// MemoryStore는 Redis 없이 기동할 때 쓰는 인메모리 구현.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.GameRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*domain.GameRecord)}
}

func (m *MemoryStore) Save(_ context.Context, rec domain.GameRecord) error {
	id := strings.TrimSpace(rec.GameID)
	if id == "" {
		return nil
	}
	m.mu.Lock()
	copied := rec
	m.records[id] = &copied
	m.mu.Unlock()
	return nil
}

// Finish는 종료 기록을 덮어쓴다. 기존 기록의 시작 시각이 더 이르면 그쪽을 지킨다.
func (m *MemoryStore) Finish(_ context.Context, rec domain.GameRecord) error {
	id := strings.TrimSpace(rec.GameID)
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.records[id]; ok {
		mergeStartedAt(&rec, stored)
	}
	copied := rec
	m.records[id] = &copied
	return nil
}

func (m *MemoryStore) Load(_ context.Context, gameID string) (*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[strings.TrimSpace(gameID)]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]*domain.GameRecord, error) {
	m.mu.RLock()
	list := make([]*domain.GameRecord, 0, len(m.records))
	for _, rec := range m.records {
		copied := *rec
		list = append(list, &copied)
	}
	m.mu.RUnlock()

	sortRecent(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemoryStore) Close() error { return nil }

// sortRecent는 시작 시각 내림차순. 같으면 게임 ID로 안정화.
func sortRecent(list []*domain.GameRecord) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].StartedAt.After(list[j].StartedAt)
		}
		return list[i].GameID > list[j].GameID
	})
}

// mergeStartedAt은 저장된 시작 시각이 더 이르면 종료 기록에 물려주고 진행 시간을 다시 잰다.
func mergeStartedAt(rec *domain.GameRecord, stored *domain.GameRecord) {
	if stored == nil || stored.StartedAt.IsZero() {
		return
	}
	if rec.StartedAt.IsZero() || stored.StartedAt.Before(rec.StartedAt) {
		rec.StartedAt = stored.StartedAt
		if !rec.EndedAt.IsZero() {
			rec.Duration = rec.EndedAt.Sub(rec.StartedAt)
		}
	}
}
