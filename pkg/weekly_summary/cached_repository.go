package weekly_summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klokku/habitweek/internal/event_bus"
	"github.com/klokku/habitweek/pkg/week"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const summariesCacheTTL = 30 * time.Minute

var _ Repository = (*CachedRepository)(nil)

// CachedRepository keeps the list of a user's summaries in Redis. Ranges are filtered from the
// cached list. Saves invalidate the entry, and so does every committed recompute, since a read
// between Save and commit may have cached the old list again.
type CachedRepository struct {
	next  Repository
	cache *redis.Client
}

func NewCachedRepository(next Repository, cache *redis.Client, eventBus *event_bus.EventBus) *CachedRepository {
	r := &CachedRepository{next: next, cache: cache}
	event_bus.SubscribeTyped[event_bus.WeeklySummaryChanged](
		eventBus,
		event_bus.WeeklySummaryRecomputed,
		func(e event_bus.EventT[event_bus.WeeklySummaryChanged]) error {
			r.Invalidate(e.Context(), e.Data.UserId)
			return nil
		},
	)
	return r
}

func (r *CachedRepository) cacheKey(userId int) string {
	return fmt.Sprintf("summaries:%d", userId)
}

func (r *CachedRepository) Invalidate(ctx context.Context, userId int) {
	if err := r.cache.Del(ctx, r.cacheKey(userId)).Err(); err != nil {
		log.Warnf("[CACHE] Failed to invalidate summaries of user %d: %v", userId, err)
	}
}

func (r *CachedRepository) List(ctx context.Context, userId int, from *week.Date, to *week.Date) ([]WeeklySummary, error) {
	key := r.cacheKey(userId)

	val, err := r.cache.Get(ctx, key).Result()
	if err == nil {
		var summaries []WeeklySummary
		if err := json.Unmarshal([]byte(val), &summaries); err == nil {
			log.Tracef("[CACHE] hit for user %d", userId)
			return filterRange(summaries, from, to), nil
		}
		log.Warnf("[CACHE] Corrupted summaries for user %d, cleaning up key", userId)
		r.cache.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		log.Warnf("[CACHE] Redis read error: %v", err)
	}

	summaries, err := r.next.List(ctx, userId, nil, nil)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(summaries); err == nil {
		if setErr := r.cache.Set(ctx, key, data, summariesCacheTTL).Err(); setErr != nil {
			log.Warnf("[CACHE] Redis set error: %v", setErr)
		}
	}

	return filterRange(summaries, from, to), nil
}

func (r *CachedRepository) Get(ctx context.Context, userId int, weekStart week.Date) (WeeklySummary, error) {
	return r.next.Get(ctx, userId, weekStart)
}

func (r *CachedRepository) Save(ctx context.Context, userId int, summary WeeklySummary) error {
	if err := r.next.Save(ctx, userId, summary); err != nil {
		return err
	}
	r.Invalidate(ctx, userId)
	return nil
}

func (r *CachedRepository) LockWeek(ctx context.Context, userId int, weekStart week.Date) error {
	return r.next.LockWeek(ctx, userId, weekStart)
}

func filterRange(summaries []WeeklySummary, from *week.Date, to *week.Date) []WeeklySummary {
	filtered := make([]WeeklySummary, 0, len(summaries))
	for _, s := range summaries {
		if inRange(s.WeekStart, from, to) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
