package debrief

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/klokku/habitweek/internal/event_bus"
	"github.com/klokku/habitweek/internal/utils"
	"github.com/klokku/habitweek/pkg/daily_record"
	"github.com/klokku/habitweek/pkg/user"
	"github.com/klokku/habitweek/pkg/week"
	"github.com/klokku/habitweek/pkg/weekly_summary"
	log "github.com/sirupsen/logrus"
)

// previousWeeksInSnapshot is how many weeks before the debriefed one are sent for context.
const previousWeeksInSnapshot = 3

type Service interface {
	// GetDebrief returns the debrief of the week containing weekStart. A week without debrief
	// yields an empty one.
	GetDebrief(ctx context.Context, weekStart week.Date) (Debrief, error)
	SaveReflection(ctx context.Context, weekStart week.Date, reflection Reflection) (Debrief, error)
	GenerateInsights(ctx context.Context, weekStart week.Date) (Debrief, error)
}

type SummaryReader interface {
	Get(ctx context.Context, userId int, weekStart week.Date) (weekly_summary.WeeklySummary, error)
	List(ctx context.Context, userId int, from *week.Date, to *week.Date) ([]weekly_summary.WeeklySummary, error)
}

type DailyRecordReader interface {
	ListRange(ctx context.Context, userId int, from week.Date, to week.Date) ([]daily_record.DailyRecord, error)
}

type ServiceImpl struct {
	repo      Repository
	summaries SummaryReader
	records   DailyRecordReader
	client    InsightsClient
	eventBus  *event_bus.EventBus
	clock     utils.Clock
}

func NewService(
	repo Repository,
	summaries SummaryReader,
	records DailyRecordReader,
	client InsightsClient,
	eventBus *event_bus.EventBus,
	clock utils.Clock,
) *ServiceImpl {
	return &ServiceImpl{
		repo:      repo,
		summaries: summaries,
		records:   records,
		client:    client,
		eventBus:  eventBus,
		clock:     clock,
	}
}

type daySnapshot struct {
	Date week.Date          `json:"date"`
	Mood *daily_record.Mood `json:"mood,omitempty"`
	Note *string            `json:"note,omitempty"`
}

type weekSnapshot struct {
	Week          weekly_summary.WeeklySummary   `json:"week"`
	PreviousWeeks []weekly_summary.WeeklySummary `json:"previousWeeks"`
	Days          []daySnapshot                  `json:"days"`
	Reflection    Reflection                     `json:"reflection"`
}

func (s *ServiceImpl) GetDebrief(ctx context.Context, weekStart week.Date) (Debrief, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Debrief{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if !weekStart.IsValid() {
		return Debrief{}, week.ErrInvalidDate
	}
	weekStart = week.WeekStartOf(weekStart)

	debrief, err := s.repo.Get(ctx, userId, weekStart)
	if errors.Is(err, ErrDebriefNotFound) {
		return Debrief{WeekStart: weekStart}, nil
	}
	return debrief, err
}

func (s *ServiceImpl) SaveReflection(ctx context.Context, weekStart week.Date, reflection Reflection) (Debrief, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Debrief{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if !weekStart.IsValid() {
		return Debrief{}, week.ErrInvalidDate
	}
	for _, text := range []string{reflection.WentWell, reflection.ToImprove, reflection.NextFocus} {
		if utf8.RuneCountInString(text) > MaxReflectionLength {
			return Debrief{}, ErrReflectionTooLong
		}
	}
	return s.repo.SaveReflection(ctx, userId, week.WeekStartOf(weekStart), reflection)
}

// GenerateInsights sends a snapshot of the week to the insights client and stores the returned text.
func (s *ServiceImpl) GenerateInsights(ctx context.Context, weekStart week.Date) (Debrief, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Debrief{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if !weekStart.IsValid() {
		return Debrief{}, week.ErrInvalidDate
	}
	weekStart = week.WeekStartOf(weekStart)

	snapshot, err := s.buildSnapshot(ctx, userId, weekStart)
	if err != nil {
		return Debrief{}, err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return Debrief{}, fmt.Errorf("failed to encode week snapshot: %w", err)
	}

	insights, err := s.client.GenerateInsights(ctx, string(payload))
	if err != nil {
		log.Errorf("failed to generate insights for week %s: %v", weekStart, err)
		return Debrief{}, err
	}

	generatedAt := s.clock.Now()
	debrief, err := s.repo.SaveInsights(ctx, userId, weekStart, insights, generatedAt)
	if err != nil {
		return Debrief{}, err
	}

	event := event_bus.NewEvent(ctx, event_bus.DebriefInsightsCreated, event_bus.DebriefInsightsGenerated{
		UserId:      userId,
		WeekStart:   weekStart.String(),
		GeneratedAt: generatedAt,
	})
	if err := s.eventBus.Publish(event); err != nil {
		log.Warnf("failed to publish %s event: %v", event.Type, err)
	}
	return debrief, nil
}

func (s *ServiceImpl) buildSnapshot(ctx context.Context, userId int, weekStart week.Date) (weekSnapshot, error) {
	summary, err := s.summaries.Get(ctx, userId, weekStart)
	if errors.Is(err, weekly_summary.ErrWeeklySummaryNotFound) {
		return weekSnapshot{}, ErrNoSummaryForWeek
	}
	if err != nil {
		return weekSnapshot{}, err
	}

	from := weekStart.AddDays(-7 * previousWeeksInSnapshot)
	to := week.PreviousWeekStart(weekStart)
	previous, err := s.summaries.List(ctx, userId, &from, &to)
	if err != nil {
		return weekSnapshot{}, err
	}

	records, err := s.records.ListRange(ctx, userId, weekStart, week.WeekEndOf(weekStart))
	if err != nil {
		return weekSnapshot{}, err
	}
	days := make([]daySnapshot, 0, len(records))
	for _, record := range records {
		if record.Mood == nil && record.Note == nil {
			continue
		}
		days = append(days, daySnapshot{Date: record.Date, Mood: record.Mood, Note: record.Note})
	}

	var reflection Reflection
	debrief, err := s.repo.Get(ctx, userId, weekStart)
	if err == nil {
		reflection = debrief.Reflection
	} else if !errors.Is(err, ErrDebriefNotFound) {
		return weekSnapshot{}, err
	}

	return weekSnapshot{
		Week:          summary,
		PreviousWeeks: previous,
		Days:          days,
		Reflection:    reflection,
	}, nil
}
