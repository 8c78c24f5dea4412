package archive

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is used when no DATABASE_URL is configured.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]Record // game_id|viewer
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]Record)}
}

func (m *MemoryRepository) SaveResult(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	m.mu.Lock()
	m.rows[rec.GameID+"|"+rec.Viewer] = *rec
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) Recent(ctx context.Context, viewer string, limit int) ([]Record, error) {
	m.mu.RLock()
	items := make([]Record, 0, len(m.rows))
	for _, r := range m.rows {
		if r.Viewer == viewer {
			items = append(items, r)
		}
	}
	m.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool {
		if !items[i].FinishedAt.Equal(items[j].FinishedAt) {
			return items[i].FinishedAt.After(items[j].FinishedAt)
		}
		return items[i].GameID > items[j].GameID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryRepository) Close() error { return nil }
