package weekly_summary

import (
	"context"
	"fmt"

	"github.com/klokku/habitweek/internal/database"
	"github.com/klokku/habitweek/internal/event_bus"
	"github.com/klokku/habitweek/pkg/user"
	"github.com/klokku/habitweek/pkg/week"
	log "github.com/sirupsen/logrus"
)

type Service interface {
	ListSummaries(ctx context.Context, from *week.Date, to *week.Date) ([]WeeklySummary, error)
	GetSummary(ctx context.Context, weekStart week.Date) (WeeklySummary, error)
	// RecomputeSummary re-derives the summary of the week in its own transaction.
	RecomputeSummary(ctx context.Context, weekStart week.Date) (WeeklySummary, error)
}

type ServiceImpl struct {
	repo       Repository
	aggregator *Aggregator
	transactor database.Transactor
	eventBus   *event_bus.EventBus
}

func NewService(repo Repository, aggregator *Aggregator, transactor database.Transactor, eventBus *event_bus.EventBus) *ServiceImpl {
	service := &ServiceImpl{repo: repo, aggregator: aggregator, transactor: transactor, eventBus: eventBus}
	onDayChanged := func(e event_bus.EventT[event_bus.DailyRecordChanged]) error {
		log.Debugf("received %s event: %+v", e.Type, e.Data)
		return service.handleDailyRecordChanged(e.Context(), e.Data)
	}
	event_bus.SubscribeTyped(eventBus, event_bus.DailyRecordSaved, onDayChanged)
	event_bus.SubscribeTyped(eventBus, event_bus.DailyRecordDeleted, onDayChanged)
	return service
}

func (s *ServiceImpl) ListSummaries(ctx context.Context, from *week.Date, to *week.Date) ([]WeeklySummary, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	if (from != nil && !from.IsValid()) || (to != nil && !to.IsValid()) {
		return nil, week.ErrInvalidDate
	}
	return s.repo.List(ctx, userId, from, to)
}

// GetSummary returns the summary of the week containing weekStart.
func (s *ServiceImpl) GetSummary(ctx context.Context, weekStart week.Date) (WeeklySummary, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return WeeklySummary{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if !weekStart.IsValid() {
		return WeeklySummary{}, week.ErrInvalidDate
	}
	return s.repo.Get(ctx, userId, week.WeekStartOf(weekStart))
}

func (s *ServiceImpl) RecomputeSummary(ctx context.Context, weekStart week.Date) (WeeklySummary, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return WeeklySummary{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if !weekStart.IsValid() {
		return WeeklySummary{}, week.ErrInvalidDate
	}
	return s.Recompute(ctx, userId, week.WeekStartOf(weekStart))
}

// Recompute re-derives one week of any user, including the week after it when its weight bonus
// depends on the change. Used by the recompute endpoint and the repair command.
func (s *ServiceImpl) Recompute(ctx context.Context, userId int, weekStart week.Date) (WeeklySummary, error) {
	var summary WeeklySummary
	var following []WeeklySummary
	err := s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		rewritten, err := s.aggregator.RecomputeWeek(ctx, userId, weekStart)
		if err != nil {
			return err
		}
		summary, err = s.repo.Get(ctx, userId, weekStart)
		if err != nil {
			return err
		}
		following = following[:0]
		for _, w := range rewritten {
			if w == weekStart {
				continue
			}
			next, err := s.repo.Get(ctx, userId, w)
			if err != nil {
				return err
			}
			following = append(following, next)
		}
		return nil
	})
	if err != nil {
		log.Errorf("failed to recompute week %s of user %d: %v", weekStart, userId, err)
		return WeeklySummary{}, err
	}
	s.publishRecomputed(ctx, userId, summary)
	for _, next := range following {
		s.publishRecomputed(ctx, userId, next)
	}
	return summary, nil
}

// handleDailyRecordChanged announces every summary the day write rewrote, including a following
// week whose weight bonus moved with the edited week's average.
func (s *ServiceImpl) handleDailyRecordChanged(ctx context.Context, data event_bus.DailyRecordChanged) error {
	for _, recomputed := range data.RecomputedWeeks {
		weekStart, err := week.ParseDate(recomputed)
		if err != nil {
			return err
		}
		summary, err := s.repo.Get(ctx, data.UserId, weekStart)
		if err != nil {
			return fmt.Errorf("failed to read recomputed summary of week %s: %w", weekStart, err)
		}
		s.publishRecomputed(ctx, data.UserId, summary)
	}
	return nil
}

func (s *ServiceImpl) publishRecomputed(ctx context.Context, userId int, summary WeeklySummary) {
	err := s.eventBus.Publish(event_bus.NewEvent(ctx, event_bus.WeeklySummaryRecomputed, event_bus.WeeklySummaryChanged{
		UserId:            userId,
		WeekStart:         summary.WeekStart.String(),
		BasePoints:        summary.BasePoints,
		WeightBonus:       summary.WeightBonus,
		TotalPoints:       summary.TotalPoints,
		CompletionPercent: summary.CompletionPercent,
		AverageWeight:     summary.AverageWeight,
	}))
	if err != nil {
		log.Errorf("failed to publish recomputed summary of week %s: %v", summary.WeekStart, err)
	}
}
