package weekly_summary

import (
	"context"
	"errors"

	"github.com/klokku/habitweek/internal/utils"
	"github.com/klokku/habitweek/pkg/daily_record"
	"github.com/klokku/habitweek/pkg/week"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var bigLossThreshold = decimal.RequireFromString("0.3")

type DailyRecordReader interface {
	ListRange(ctx context.Context, userId int, from week.Date, to week.Date) ([]daily_record.DailyRecord, error)
}

// Aggregator derives weekly summaries from daily records. It never patches a stored summary,
// every recompute reads all 7 days again.
type Aggregator struct {
	records   DailyRecordReader
	summaries Repository
	clock     utils.Clock
}

func NewAggregator(records DailyRecordReader, summaries Repository, clock utils.Clock) *Aggregator {
	return &Aggregator{records: records, summaries: summaries, clock: clock}
}

// Recompute re-derives and stores the summary of the week starting at weekStart.
func (a *Aggregator) Recompute(ctx context.Context, userId int, weekStart week.Date) (WeeklySummary, error) {
	summary, _, err := a.recompute(ctx, userId, weekStart)
	return summary, err
}

// RecomputeWeek recomputes the week and, when its average weight changed, the following week,
// whose weight bonus depends on it. The following week is only touched when it has a summary.
// It returns the starts of the weeks whose stored summary was rewritten, oldest first.
func (a *Aggregator) RecomputeWeek(ctx context.Context, userId int, weekStart week.Date) ([]week.Date, error) {
	summary, result, err := a.recompute(ctx, userId, weekStart)
	if err != nil {
		return nil, err
	}
	var rewritten []week.Date
	if result.saved {
		rewritten = append(rewritten, summary.WeekStart)
	}
	if !result.averageChanged {
		return rewritten, nil
	}

	nextWeekStart := week.NextWeekStart(summary.WeekStart)
	_, err = a.summaries.Get(ctx, userId, nextWeekStart)
	if errors.Is(err, ErrWeeklySummaryNotFound) {
		return rewritten, nil
	}
	if err != nil {
		return nil, err
	}
	log.Debugf("average weight of week %s changed, recomputing week %s", summary.WeekStart, nextWeekStart)
	_, nextResult, err := a.recompute(ctx, userId, nextWeekStart)
	if err != nil {
		return nil, err
	}
	if nextResult.saved {
		rewritten = append(rewritten, nextWeekStart)
	}
	return rewritten, nil
}

type recomputeResult struct {
	saved          bool
	averageChanged bool
}

func (a *Aggregator) recompute(ctx context.Context, userId int, weekStart week.Date) (WeeklySummary, recomputeResult, error) {
	weekStart = week.WeekStartOf(weekStart)
	if err := a.summaries.LockWeek(ctx, userId, weekStart); err != nil {
		return WeeklySummary{}, recomputeResult{}, err
	}

	records, err := a.records.ListRange(ctx, userId, weekStart, week.WeekEndOf(weekStart))
	if err != nil {
		return WeeklySummary{}, recomputeResult{}, err
	}

	var previousAverage *float64
	previous, err := a.summaries.Get(ctx, userId, week.PreviousWeekStart(weekStart))
	if err == nil {
		previousAverage = previous.AverageWeight
	} else if !errors.Is(err, ErrWeeklySummaryNotFound) {
		return WeeklySummary{}, recomputeResult{}, err
	}

	computed := ComputeSummary(weekStart, records, previousAverage)

	existing, err := a.summaries.Get(ctx, userId, weekStart)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrWeeklySummaryNotFound) {
		return WeeklySummary{}, recomputeResult{}, err
	}
	if exists && sameAggregate(existing, computed) {
		log.Tracef("summary of week %s unchanged", weekStart)
		return existing, recomputeResult{}, nil
	}

	computed.UpdatedAt = a.clock.Now()
	if err := a.summaries.Save(ctx, userId, computed); err != nil {
		return WeeklySummary{}, recomputeResult{}, err
	}
	log.Debugf("stored summary of week %s: %d points (%d%%)", weekStart, computed.TotalPoints, computed.CompletionPercent)
	return computed, recomputeResult{
		saved: true,
		// existing is the zero summary when absent, so its nil average compares as "no weight".
		averageChanged: !sameWeight(existing.AverageWeight, computed.AverageWeight),
	}, nil
}

// ComputeSummary aggregates the records of the week starting at weekStart. Records outside the week
// are ignored and a day without a record counts as a day where nothing was done.
func ComputeSummary(weekStart week.Date, records []daily_record.DailyRecord, previousAverage *float64) WeeklySummary {
	byDate := make(map[week.Date]daily_record.DailyRecord, len(records))
	for _, r := range records {
		byDate[r.Date] = r
	}

	summary := WeeklySummary{
		WeekStart:   weekStart,
		WeekEnd:     week.WeekEndOf(weekStart),
		HabitCounts: make(HabitCounts, len(daily_record.AllHabits)),
	}

	weightSum := decimal.Zero
	weightDays := 0
	for _, d := range week.WeekMembers(weekStart) {
		record, ok := byDate[d]
		if ok {
			summary.DaysRecorded++
		} else {
			record = daily_record.Empty(d)
		}
		for _, habit := range daily_record.AllHabits {
			if record.Habits.Done(habit) {
				summary.HabitCounts[habit]++
			}
		}
		if record.Weight != nil {
			weightSum = weightSum.Add(decimal.NewFromFloat(*record.Weight))
			weightDays++
		}
	}

	for _, habit := range daily_record.AllHabits {
		summary.HabitCounts[habit] = min(summary.HabitCounts[habit], HabitCaps[habit])
		summary.BasePoints += summary.HabitCounts[habit]
	}

	if weightDays > 0 {
		average := weightSum.Div(decimal.NewFromInt(int64(weightDays))).Round(1).InexactFloat64()
		summary.AverageWeight = &average
	}

	summary.WeightBonus = WeightBonus(previousAverage, summary.AverageWeight)
	summary.TotalPoints = summary.BasePoints + summary.WeightBonus
	summary.CompletionPercent = CompletionPercent(summary.TotalPoints)
	return summary
}

// WeightBonus rewards losing weight since the previous week: 5 points for a loss of at least 0.3 kg,
// 3 points for any smaller loss.
func WeightBonus(previousAverage, currentAverage *float64) int {
	if previousAverage == nil || currentAverage == nil {
		return 0
	}
	delta := decimal.NewFromFloat(*previousAverage).Sub(decimal.NewFromFloat(*currentAverage))
	switch {
	case delta.GreaterThanOrEqual(bigLossThreshold):
		return BigWeightLossBonus
	case delta.IsPositive():
		return SmallWeightLossBonus
	default:
		return 0
	}
}

// CompletionPercent is totalPoints relative to TotalBudget, rounded half-up. It exceeds 100 when
// the weight bonus comes on top of a full score.
func CompletionPercent(totalPoints int) int {
	return int(decimal.NewFromInt(int64(totalPoints) * 100).
		Div(decimal.NewFromInt(TotalBudget)).
		Round(0).
		IntPart())
}
