package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gigflow/internal/domain"
	"gigflow/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverDraftStore serves from primary and switches to fallback when
// primary fails. Primary is probed again once per recoveryInterval.
type FailoverDraftStore struct {
	primary   domain.DraftStore
	fallback  domain.DraftStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverDraftStore(primary, fallback domain.DraftStore, logger *zerolog.Logger) *FailoverDraftStore {
	return &FailoverDraftStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverDraftStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary draft store failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary reports whether the call should go to primary, allowing one
// recovery probe after the interval.
func (r *FailoverDraftStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverDraftStore) recovered() {
	if r.isDown.CompareAndSwap(true, false) {
		r.logger.Info().Msg("Primary draft store recovered")
	}
}

func (r *FailoverDraftStore) GetSelection(ctx context.Context, userID, gigID int64) (*models.HireSelection, error) {
	if r.usePrimary() {
		sel, err := r.primary.GetSelection(ctx, userID, gigID)
		if err == nil {
			r.recovered()
			return sel, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetSelection(ctx, userID, gigID)
}

func (r *FailoverDraftStore) SetSelection(ctx context.Context, sel *models.HireSelection) error {
	if r.usePrimary() {
		err := r.primary.SetSelection(ctx, sel)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetSelection(ctx, sel)
}

func (r *FailoverDraftStore) ClearSelection(ctx context.Context, userID, gigID int64) error {
	if r.usePrimary() {
		err := r.primary.ClearSelection(ctx, userID, gigID)
		if err == nil {
			r.recovered()
			// a draft may have been written while primary was down
			_ = r.fallback.ClearSelection(ctx, userID, gigID)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.ClearSelection(ctx, userID, gigID)
}

func (r *FailoverDraftStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
