package weekly_summary

import (
	"context"
	"testing"
	"time"

	"github.com/klokku/habitweek/internal/database"
	"github.com/klokku/habitweek/internal/utils"
	"github.com/klokku/habitweek/pkg/daily_record"
	"github.com/klokku/habitweek/pkg/week"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserId = 10

func date(t *testing.T, s string) week.Date {
	t.Helper()
	d, err := week.ParseDate(s)
	require.NoError(t, err)
	return d
}

func weight(w float64) *float64 {
	return &w
}

func TestComputeSummary(t *testing.T) {
	weekStart := date(t, "2025-06-01")

	t.Run("week without records scores nothing", func(t *testing.T) {
		// when
		summary := ComputeSummary(weekStart, nil, weight(80.0))

		// then
		assert.Equal(t, weekStart, summary.WeekStart)
		assert.Equal(t, date(t, "2025-06-07"), summary.WeekEnd)
		for _, habit := range daily_record.AllHabits {
			assert.Equal(t, 0, summary.HabitCounts[habit], habit)
		}
		assert.Nil(t, summary.AverageWeight)
		assert.Equal(t, 0, summary.BasePoints)
		assert.Equal(t, 0, summary.WeightBonus)
		assert.Equal(t, 0, summary.TotalPoints)
		assert.Equal(t, 0, summary.CompletionPercent)
		assert.Equal(t, 0, summary.DaysRecorded)
	})

	t.Run("habit counts are capped", func(t *testing.T) {
		// given
		var records []daily_record.DailyRecord
		for _, d := range week.WeekMembers(weekStart) {
			records = append(records, daily_record.DailyRecord{Date: d, Habits: daily_record.Habits{Medicate: true}})
		}

		// when
		summary := ComputeSummary(weekStart, records, nil)

		// then
		assert.Equal(t, 3, summary.HabitCounts[daily_record.Medicate])
		assert.Equal(t, 3, summary.BasePoints)
		assert.Equal(t, 7, summary.DaysRecorded)
	})

	t.Run("every habit every day gives the total budget and 100 percent", func(t *testing.T) {
		// given
		records := fullWeek(weekStart, nil)

		// when
		summary := ComputeSummary(weekStart, records, nil)

		// then
		for habit, habitCap := range HabitCaps {
			assert.Equal(t, habitCap, summary.HabitCounts[habit], habit)
		}
		assert.Equal(t, TotalBudget, summary.BasePoints)
		assert.Equal(t, 100, summary.CompletionPercent)
	})

	t.Run("completion percent is not clamped when the bonus tops a full score", func(t *testing.T) {
		// given
		records := fullWeek(weekStart, weight(79.0))

		// when
		summary := ComputeSummary(weekStart, records, weight(80.0))

		// then
		assert.Equal(t, 5, summary.WeightBonus)
		assert.Equal(t, 45, summary.TotalPoints)
		assert.Equal(t, 113, summary.CompletionPercent)
	})

	t.Run("scores a week of partial tracking", func(t *testing.T) {
		// given
		days := week.WeekMembers(weekStart)
		var records []daily_record.DailyRecord
		for i, d := range days {
			record := daily_record.DailyRecord{Date: d}
			record.Habits.Medicate = true
			record.Habits.Meditate = i < 3
			record.Habits.Exercise = i < 5
			switch i {
			case 0:
				record.Weight = weight(85.0)
			case 2:
				record.Weight = weight(84.8)
			case 4:
				record.Weight = weight(84.5)
			}
			records = append(records, record)
		}

		// when
		summary := ComputeSummary(weekStart, records, weight(85.5))

		// then
		assert.Equal(t, HabitCounts{
			daily_record.Meditate:    3,
			daily_record.Medicate:    3,
			daily_record.Exercise:    5,
			daily_record.Communicate: 0,
			daily_record.EatWell:     0,
			daily_record.Study:       0,
			daily_record.Rest:        0,
		}, summary.HabitCounts)
		require.NotNil(t, summary.AverageWeight)
		assert.Equal(t, 84.8, *summary.AverageWeight)
		assert.Equal(t, 11, summary.BasePoints)
		assert.Equal(t, 5, summary.WeightBonus)
		assert.Equal(t, 16, summary.TotalPoints)
		assert.Equal(t, 40, summary.CompletionPercent)
	})

	t.Run("average weight ignores days without weight", func(t *testing.T) {
		// given
		records := []daily_record.DailyRecord{
			{Date: date(t, "2025-06-02"), Weight: weight(80.0)},
			{Date: date(t, "2025-06-03")},
			{Date: date(t, "2025-06-04"), Weight: weight(80.3)},
		}

		// when
		summary := ComputeSummary(weekStart, records, nil)

		// then
		require.NotNil(t, summary.AverageWeight)
		assert.Equal(t, 80.2, *summary.AverageWeight)
		assert.Equal(t, 3, summary.DaysRecorded)
	})

	t.Run("records outside the week are ignored", func(t *testing.T) {
		// given
		records := []daily_record.DailyRecord{
			{Date: date(t, "2025-05-31"), Habits: daily_record.Habits{Study: true}},
			{Date: date(t, "2025-06-08"), Habits: daily_record.Habits{Study: true}},
			{Date: date(t, "2025-06-07"), Habits: daily_record.Habits{Study: true}},
		}

		// when
		summary := ComputeSummary(weekStart, records, nil)

		// then
		assert.Equal(t, 1, summary.HabitCounts[daily_record.Study])
		assert.Equal(t, 1, summary.DaysRecorded)
	})
}

func TestWeightBonus(t *testing.T) {
	tests := []struct {
		name     string
		previous *float64
		current  *float64
		want     int
	}{
		{name: "loss of exactly 0.3 kg", previous: weight(80.0), current: weight(79.7), want: 5},
		{name: "loss of more than 0.3 kg", previous: weight(85.5), current: weight(84.8), want: 5},
		{name: "loss just below 0.3 kg", previous: weight(80.0), current: weight(79.71), want: 3},
		{name: "small loss", previous: weight(80.0), current: weight(79.9), want: 3},
		{name: "no change", previous: weight(80.0), current: weight(80.0), want: 0},
		{name: "gain", previous: weight(80.0), current: weight(80.1), want: 0},
		{name: "no previous weight", previous: nil, current: weight(79.0), want: 0},
		{name: "no current weight", previous: weight(80.0), current: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeightBonus(tt.previous, tt.current))
		})
	}
}

func TestCompletionPercent(t *testing.T) {
	assert.Equal(t, 0, CompletionPercent(0))
	assert.Equal(t, 3, CompletionPercent(1))
	assert.Equal(t, 8, CompletionPercent(3))
	assert.Equal(t, 40, CompletionPercent(16))
	assert.Equal(t, 100, CompletionPercent(40))
	assert.Equal(t, 113, CompletionPercent(45))
}

func TestHabitCapsSumToTotalBudget(t *testing.T) {
	sum := 0
	for _, habitCap := range HabitCaps {
		sum += habitCap
	}
	assert.Equal(t, TotalBudget, sum)
	assert.Len(t, HabitCaps, len(daily_record.AllHabits))
}

type aggregatorFixture struct {
	ctx        context.Context
	records    *daily_record.RepositoryStub
	summaries  *RepositoryStub
	aggregator *Aggregator
	clock      *utils.MockClock
}

func setupAggregator(t *testing.T) aggregatorFixture {
	t.Helper()
	clock := &utils.MockClock{FixedNow: time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)}
	records := daily_record.NewRepositoryStub()
	summaries := NewRepositoryStub()
	return aggregatorFixture{
		ctx:        context.Background(),
		records:    records,
		summaries:  summaries,
		aggregator: NewAggregator(records, summaries, clock),
		clock:      clock,
	}
}

func (f aggregatorFixture) store(t *testing.T, record daily_record.DailyRecord) {
	t.Helper()
	_, err := f.records.Upsert(f.ctx, testUserId, record)
	require.NoError(t, err)
}

func TestAggregator_Recompute(t *testing.T) {
	t.Run("bonus is 0 when the previous week has no summary", func(t *testing.T) {
		// given
		f := setupAggregator(t)
		f.store(t, daily_record.DailyRecord{Date: date(t, "2025-06-02"), Weight: weight(70.0)})

		// when
		summary, err := f.aggregator.Recompute(f.ctx, testUserId, date(t, "2025-06-01"))

		// then
		require.NoError(t, err)
		assert.Equal(t, 0, summary.WeightBonus)
		require.NotNil(t, summary.AverageWeight)
		assert.Equal(t, 70.0, *summary.AverageWeight)
	})

	t.Run("bonus uses the stored summary of the previous week", func(t *testing.T) {
		// given
		f := setupAggregator(t)
		f.summaries.Put(testUserId, WeeklySummary{WeekStart: date(t, "2025-05-25"), AverageWeight: weight(80.0)})
		f.store(t, daily_record.DailyRecord{Date: date(t, "2025-06-03"), Weight: weight(79.7)})

		// when
		summary, err := f.aggregator.Recompute(f.ctx, testUserId, date(t, "2025-06-01"))

		// then
		require.NoError(t, err)
		assert.Equal(t, 5, summary.WeightBonus)
		assert.Equal(t, 5, summary.TotalPoints)
		assert.Equal(t, 13, summary.CompletionPercent)
	})

	t.Run("replaces the stored summary as a whole", func(t *testing.T) {
		// given
		f := setupAggregator(t)
		f.summaries.Put(testUserId, WeeklySummary{
			WeekStart:   date(t, "2025-06-01"),
			HabitCounts: HabitCounts{daily_record.Rest: 6},
			BasePoints:  6,
			TotalPoints: 6,
		})
		f.store(t, daily_record.DailyRecord{Date: date(t, "2025-06-04"), Habits: daily_record.Habits{Study: true}})

		// when
		_, err := f.aggregator.Recompute(f.ctx, testUserId, date(t, "2025-06-01"))

		// then
		require.NoError(t, err)
		stored, err := f.summaries.Get(f.ctx, testUserId, date(t, "2025-06-01"))
		require.NoError(t, err)
		assert.Equal(t, 0, stored.HabitCounts[daily_record.Rest])
		assert.Equal(t, 1, stored.HabitCounts[daily_record.Study])
		assert.Equal(t, 1, stored.BasePoints)
		assert.Equal(t, f.clock.Now(), stored.UpdatedAt)
	})

	t.Run("normalizes the week start and locks the week", func(t *testing.T) {
		// given
		f := setupAggregator(t)

		// when
		summary, err := f.aggregator.Recompute(f.ctx, testUserId, date(t, "2025-06-05"))

		// then
		require.NoError(t, err)
		assert.Equal(t, date(t, "2025-06-01"), summary.WeekStart)
		assert.Equal(t, []week.Date{date(t, "2025-06-01")}, f.summaries.LockedWeeks())
	})

	t.Run("does not write an unchanged summary again", func(t *testing.T) {
		// given
		f := setupAggregator(t)
		f.store(t, daily_record.DailyRecord{Date: date(t, "2025-06-04"), Habits: daily_record.Habits{Study: true}})
		first, err := f.aggregator.Recompute(f.ctx, testUserId, date(t, "2025-06-01"))
		require.NoError(t, err)
		f.clock.SetNow(f.clock.Now().Add(time.Hour))

		// when
		second, err := f.aggregator.Recompute(f.ctx, testUserId, date(t, "2025-06-01"))

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, f.summaries.SaveCount())
		assert.Equal(t, first, second)
	})

	t.Run("fails with store unavailable when the store fails", func(t *testing.T) {
		// given
		f := setupAggregator(t)
		f.summaries.SetFailOnSave(true)

		// when
		_, err := f.aggregator.Recompute(f.ctx, testUserId, date(t, "2025-06-01"))

		// then
		assert.ErrorIs(t, err, database.ErrStoreUnavailable)
	})
}

func TestAggregator_RecomputeWeek(t *testing.T) {
	t.Run("recomputes the following week when the average weight changed", func(t *testing.T) {
		// given
		f := setupAggregator(t)
		f.store(t, daily_record.DailyRecord{Date: date(t, "2025-06-02"), Weight: weight(85.0)})
		f.store(t, daily_record.DailyRecord{Date: date(t, "2025-06-09"), Weight: weight(84.0)})
		_, err := f.aggregator.RecomputeWeek(f.ctx, testUserId, date(t, "2025-06-01"))
		require.NoError(t, err)
		_, err = f.aggregator.RecomputeWeek(f.ctx, testUserId, date(t, "2025-06-08"))
		require.NoError(t, err)
		next, err := f.summaries.Get(f.ctx, testUserId, date(t, "2025-06-08"))
		require.NoError(t, err)
		require.Equal(t, 5, next.WeightBonus)

		// when
		f.store(t, daily_record.DailyRecord{Date: date(t, "2025-06-02"), Weight: weight(83.0)})
		rewritten, err := f.aggregator.RecomputeWeek(f.ctx, testUserId, date(t, "2025-06-01"))

		// then
		require.NoError(t, err)
		assert.Equal(t, []week.Date{date(t, "2025-06-01"), date(t, "2025-06-08")}, rewritten)
		next, err = f.summaries.Get(f.ctx, testUserId, date(t, "2025-06-08"))
		require.NoError(t, err)
		assert.Equal(t, 0, next.WeightBonus)
		assert.Equal(t, 0, next.TotalPoints)
	})

	t.Run("does not create a summary for the following week", func(t *testing.T) {
		// given
		f := setupAggregator(t)
		f.store(t, daily_record.DailyRecord{Date: date(t, "2025-06-02"), Weight: weight(85.0)})

		// when
		rewritten, err := f.aggregator.RecomputeWeek(f.ctx, testUserId, date(t, "2025-06-01"))

		// then
		require.NoError(t, err)
		assert.Equal(t, []week.Date{date(t, "2025-06-01")}, rewritten)
		_, err = f.summaries.Get(f.ctx, testUserId, date(t, "2025-06-08"))
		assert.ErrorIs(t, err, ErrWeeklySummaryNotFound)
	})

	t.Run("leaves the following week alone when the average did not change", func(t *testing.T) {
		// given
		f := setupAggregator(t)
		f.store(t, daily_record.DailyRecord{Date: date(t, "2025-06-02"), Weight: weight(85.0)})
		_, err := f.aggregator.RecomputeWeek(f.ctx, testUserId, date(t, "2025-06-01"))
		require.NoError(t, err)
		f.summaries.Put(testUserId, WeeklySummary{WeekStart: date(t, "2025-06-08"), BasePoints: 7, TotalPoints: 7})

		// when
		f.store(t, daily_record.DailyRecord{Date: date(t, "2025-06-03"), Habits: daily_record.Habits{Rest: true}})
		rewritten, err := f.aggregator.RecomputeWeek(f.ctx, testUserId, date(t, "2025-06-01"))

		// then
		require.NoError(t, err)
		assert.Equal(t, []week.Date{date(t, "2025-06-01")}, rewritten)
		next, err := f.summaries.Get(f.ctx, testUserId, date(t, "2025-06-08"))
		require.NoError(t, err)
		assert.Equal(t, 7, next.BasePoints)
	})
}

func fullWeek(weekStart week.Date, w *float64) []daily_record.DailyRecord {
	var records []daily_record.DailyRecord
	for _, d := range week.WeekMembers(weekStart) {
		records = append(records, daily_record.DailyRecord{
			Date:   d,
			Weight: w,
			Habits: daily_record.Habits{
				Meditate:    true,
				Medicate:    true,
				Exercise:    true,
				Communicate: true,
				EatWell:     true,
				Study:       true,
				Rest:        true,
			},
		})
	}
	return records
}
