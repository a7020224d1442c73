package repository

import (
	"context"
	"sync"
	"time"

	"gigflow/internal/models"
)

type MemoryDraftStore struct {
	selections sync.Map
	rateLimits sync.Map
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
}

func NewMemoryDraftStore(ttl time.Duration) *MemoryDraftStore {
	return &MemoryDraftStore{
		ttl: ttl,
		now: time.Now,
	}
}

type memoryKey struct {
	userID, gigID int64
}

type selectionEntry struct {
	sel       models.HireSelection
	expiresAt time.Time
}

func (r *MemoryDraftStore) GetSelection(ctx context.Context, userID, gigID int64) (*models.HireSelection, error) {
	key := memoryKey{userID, gigID}
	val, ok := r.selections.Load(key)
	if !ok {
		return nil, nil
	}
	entry := val.(*selectionEntry)
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.selections.CompareAndDelete(key, val)
		return nil, nil
	}
	sel := entry.sel
	sel.ApplicationIDs = append([]int64(nil), entry.sel.ApplicationIDs...)
	return &sel, nil
}

func (r *MemoryDraftStore) SetSelection(ctx context.Context, sel *models.HireSelection) error {
	entry := &selectionEntry{sel: *sel}
	entry.sel.ApplicationIDs = append([]int64(nil), sel.ApplicationIDs...)
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}
	r.selections.Store(memoryKey{sel.UserID, sel.GigID}, entry)
	return nil
}

func (r *MemoryDraftStore) ClearSelection(ctx context.Context, userID, gigID int64) error {
	r.selections.Delete(memoryKey{userID, gigID})
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryDraftStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
