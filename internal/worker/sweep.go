package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dapurnia/backend-pos/internal/cache"
	"github.com/dapurnia/backend-pos/internal/repo"
)

// TaskSweepExpired deactivates rules and bundles whose window has closed.
const TaskSweepExpired = "promo:sweep_expired"

// NewSweepTask builds the periodic sweep task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSweepExpired, nil)
}

// Sweeper flips is_active off for expired rules and bundles. The engine
// already excludes them via derived status; the sweep keeps the stored
// flags and admin listings aligned.
type Sweeper struct {
	Store  *repo.Store
	Cache  *cache.Cache
	Logger zerolog.Logger
}

// HandleSweepExpired processes one sweep tick.
func (s *Sweeper) HandleSweepExpired(ctx context.Context, _ *asynq.Task) error {
	now := time.Now().UTC()
	rules, err := s.Store.DeactivateExpiredRules(ctx, now)
	if err != nil {
		s.Logger.Error().Err(err).Msg("sweep expired rules")
		return err
	}
	bundles, err := s.Store.DeactivateExpiredBundles(ctx, now)
	if err != nil {
		s.Logger.Error().Err(err).Msg("sweep expired bundles")
		return err
	}
	if rules > 0 || bundles > 0 {
		if err := s.Cache.Invalidate(ctx, repo.CatalogCacheKey); err != nil {
			s.Logger.Warn().Err(err).Msg("invalidate catalog cache after sweep")
		}
	}
	s.Logger.Info().
		Int64("rules_deactivated", rules).
		Int64("bundles_deactivated", bundles).
		Msg("expiry sweep complete")
	return nil
}
