package daily_record

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klokku/habitweek/internal/config"
	"github.com/klokku/habitweek/internal/database"
	"github.com/klokku/habitweek/internal/event_bus"
	"github.com/klokku/habitweek/internal/utils"
	"github.com/klokku/habitweek/pkg/user"
	"github.com/klokku/habitweek/pkg/week"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = user.WithUser(context.Background(), user.User{
	Id:          10,
	Uid:         "8f14e45f-test-user-1",
	Username:    "test-user-1",
	DisplayName: "Test User 1",
	Settings: user.Settings{
		Timezone: "Pacific/Auckland",
	},
})

type recomputerStub struct {
	mu       sync.Mutex
	calls    []week.Date
	failures int
	err      error
}

func (r *recomputerStub) RecomputeWeek(ctx context.Context, userId int, weekStart week.Date) ([]week.Date, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, weekStart)
	if r.failures > 0 {
		r.failures--
		return nil, r.err
	}
	return []week.Date{weekStart}, nil
}

func (r *recomputerStub) Calls() []week.Date {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]week.Date(nil), r.calls...)
}

type rollbackTransactor struct {
	repo *RepositoryStub
}

func (t rollbackTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.repo.Snapshot()
	if err := fn(ctx); err != nil {
		t.repo.Restore()
		return err
	}
	return nil
}

type fixture struct {
	repo       *RepositoryStub
	recomputer *recomputerStub
	eventBus   *event_bus.EventBus
	clock      *utils.MockClock
	service    *ServiceImpl
}

func setup(t *testing.T) fixture {
	t.Helper()
	repo := NewRepositoryStub()
	recomputer := &recomputerStub{}
	eventBus := event_bus.NewEventBus()
	// 2025-06-10 22:30 UTC is already 2025-06-11 in Auckland
	clock := &utils.MockClock{FixedNow: time.Date(2025, 6, 10, 22, 30, 0, 0, time.UTC)}
	service := NewService(repo, recomputer, rollbackTransactor{repo: repo}, eventBus, clock, config.Store{
		RetryAttempts: 3,
		RetryInterval: time.Millisecond,
	})
	return fixture{repo: repo, recomputer: recomputer, eventBus: eventBus, clock: clock, service: service}
}

func date(t *testing.T, s string) week.Date {
	t.Helper()
	d, err := week.ParseDate(s)
	require.NoError(t, err)
	return d
}

func ptr[T any](v T) *T {
	return &v
}

func TestServiceImpl_SaveDay(t *testing.T) {
	t.Run("stores the record and recomputes its week", func(t *testing.T) {
		// given
		f := setup(t)
		record := DailyRecord{
			Weight: ptr(81.26),
			Habits: Habits{Meditate: true, Rest: true},
			Mood:   ptr(Productive),
			Note:   ptr("long walk"),
		}

		// when
		saved, err := f.service.SaveDay(ctx, date(t, "2025-06-04"), record)

		// then
		require.NoError(t, err)
		assert.Equal(t, date(t, "2025-06-04"), saved.Date)
		require.NotNil(t, saved.Weight)
		assert.Equal(t, 81.3, *saved.Weight)
		stored, err := f.repo.Get(ctx, 10, date(t, "2025-06-04"))
		require.NoError(t, err)
		assert.Equal(t, saved, stored)
		assert.Equal(t, []week.Date{date(t, "2025-06-01")}, f.recomputer.Calls())
	})

	t.Run("replaces the whole record", func(t *testing.T) {
		// given
		f := setup(t)
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-04"), DailyRecord{
			Weight: ptr(80.0),
			Habits: Habits{Study: true},
			Note:   ptr("first"),
		})
		require.NoError(t, err)

		// when
		_, err = f.service.SaveDay(ctx, date(t, "2025-06-04"), DailyRecord{Habits: Habits{Exercise: true}})

		// then
		require.NoError(t, err)
		stored, err := f.repo.Get(ctx, 10, date(t, "2025-06-04"))
		require.NoError(t, err)
		assert.Equal(t, DailyRecord{Date: date(t, "2025-06-04"), Habits: Habits{Exercise: true}}, stored)
	})

	t.Run("accepts today in the user's timezone", func(t *testing.T) {
		// given
		f := setup(t)

		// when
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-11"), DailyRecord{})

		// then
		require.NoError(t, err)
	})

	t.Run("rejects a date after today", func(t *testing.T) {
		// given
		f := setup(t)

		// when
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-12"), DailyRecord{})

		// then
		assert.ErrorIs(t, err, ErrFutureDate)
		assert.Empty(t, f.recomputer.Calls())
	})

	t.Run("rejects an invalid date", func(t *testing.T) {
		// given
		f := setup(t)

		// when
		_, err := f.service.SaveDay(ctx, week.Date{Year: 2025, Month: 2, Day: 30}, DailyRecord{})

		// then
		assert.ErrorIs(t, err, week.ErrInvalidDate)
	})

	t.Run("validates the fields before writing", func(t *testing.T) {
		tests := []struct {
			name    string
			record  DailyRecord
			wantErr error
		}{
			{name: "zero weight", record: DailyRecord{Weight: ptr(0.0)}, wantErr: ErrInvalidWeight},
			{name: "negative weight", record: DailyRecord{Weight: ptr(-70.0)}, wantErr: ErrInvalidWeight},
			{name: "weight rounding to zero", record: DailyRecord{Weight: ptr(0.04)}, wantErr: ErrInvalidWeight},
			{name: "absurd weight", record: DailyRecord{Weight: ptr(500.1)}, wantErr: ErrInvalidWeight},
			{name: "unknown mood", record: DailyRecord{Mood: ptr(Mood("ecstatic"))}, wantErr: ErrInvalidMood},
			{name: "note too long", record: DailyRecord{Note: ptr(strings.Repeat("ż", MaxNoteLength+1))}, wantErr: ErrNoteTooLong},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				// given
				f := setup(t)

				// when
				_, err := f.service.SaveDay(ctx, date(t, "2025-06-04"), tt.record)

				// then
				assert.ErrorIs(t, err, tt.wantErr)
				_, getErr := f.repo.Get(ctx, 10, date(t, "2025-06-04"))
				assert.ErrorIs(t, getErr, ErrDailyRecordNotFound)
				assert.Empty(t, f.recomputer.Calls())
			})
		}
	})

	t.Run("accepts the maximum weight and note length", func(t *testing.T) {
		// given
		f := setup(t)

		// when
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-04"), DailyRecord{
			Weight: ptr(MaxWeight),
			Note:   ptr(strings.Repeat("ż", MaxNoteLength)),
		})

		// then
		require.NoError(t, err)
	})

	t.Run("retries when the store is unavailable", func(t *testing.T) {
		// given
		f := setup(t)
		f.recomputer.failures = 2
		f.recomputer.err = database.StoreError("store weekly summary", errors.New("connection reset"))

		// when
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-04"), DailyRecord{Habits: Habits{Study: true}})

		// then
		require.NoError(t, err)
		assert.Len(t, f.recomputer.Calls(), 3)
		_, err = f.repo.Get(ctx, 10, date(t, "2025-06-04"))
		assert.NoError(t, err)
	})

	t.Run("fails with aggregation failed and rolls back the day when recompute keeps failing", func(t *testing.T) {
		// given
		f := setup(t)
		f.recomputer.failures = 10
		f.recomputer.err = database.StoreError("store weekly summary", errors.New("connection reset"))

		// when
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-04"), DailyRecord{Habits: Habits{Study: true}})

		// then
		assert.ErrorIs(t, err, ErrAggregationFailed)
		assert.ErrorIs(t, err, database.ErrStoreUnavailable)
		assert.Len(t, f.recomputer.Calls(), 3)
		_, err = f.repo.Get(ctx, 10, date(t, "2025-06-04"))
		assert.ErrorIs(t, err, ErrDailyRecordNotFound)
	})

	t.Run("fails with store unavailable when the day cannot be written", func(t *testing.T) {
		// given
		f := setup(t)
		f.repo.SetFailing(true)

		// when
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-04"), DailyRecord{})

		// then
		assert.ErrorIs(t, err, database.ErrStoreUnavailable)
		assert.NotErrorIs(t, err, ErrAggregationFailed)
		assert.Empty(t, f.recomputer.Calls())
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		// given
		f := setup(t)
		f.recomputer.failures = 1
		f.recomputer.err = errors.New("boom")

		// when
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-04"), DailyRecord{})

		// then
		assert.ErrorIs(t, err, ErrAggregationFailed)
		assert.Len(t, f.recomputer.Calls(), 1)
	})

	t.Run("publishes the saved day after commit", func(t *testing.T) {
		// given
		f := setup(t)
		var received []event_bus.DailyRecordChanged
		event_bus.SubscribeTyped(f.eventBus, event_bus.DailyRecordSaved, func(e event_bus.EventT[event_bus.DailyRecordChanged]) error {
			received = append(received, e.Data)
			return nil
		})

		// when
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-04"), DailyRecord{})

		// then
		require.NoError(t, err)
		assert.Equal(t, []event_bus.DailyRecordChanged{{UserId: 10, Date: "2025-06-04", WeekStart: "2025-06-01", RecomputedWeeks: []string{"2025-06-01"}}}, received)
	})

	t.Run("a failing subscriber does not fail the save", func(t *testing.T) {
		// given
		f := setup(t)
		f.eventBus.Subscribe(event_bus.DailyRecordSaved, func(e event_bus.Event) error {
			return errors.New("subscriber failed")
		})

		// when
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-04"), DailyRecord{})

		// then
		require.NoError(t, err)
	})

	t.Run("requires a user", func(t *testing.T) {
		// given
		f := setup(t)

		// when
		_, err := f.service.SaveDay(context.Background(), date(t, "2025-06-04"), DailyRecord{})

		// then
		assert.ErrorIs(t, err, user.ErrNoUser)
	})

	t.Run("serializes concurrent saves of the same week", func(t *testing.T) {
		// given
		f := setup(t)
		var wg sync.WaitGroup

		// when
		for _, d := range []string{"2025-06-01", "2025-06-02", "2025-06-03", "2025-06-04", "2025-06-05"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.service.SaveDay(ctx, date(t, d), DailyRecord{Habits: Habits{Rest: true}})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		// then
		records, err := f.repo.ListRange(ctx, 10, date(t, "2025-06-01"), date(t, "2025-06-07"))
		require.NoError(t, err)
		assert.Len(t, records, 5)
		assert.Len(t, f.recomputer.Calls(), 5)
		assert.Empty(t, f.service.locks.locks)
	})
}

func TestServiceImpl_DeleteDay(t *testing.T) {
	t.Run("deletes the record and recomputes its week", func(t *testing.T) {
		// given
		f := setup(t)
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-07"), DailyRecord{Habits: Habits{Study: true}})
		require.NoError(t, err)

		// when
		err = f.service.DeleteDay(ctx, date(t, "2025-06-07"))

		// then
		require.NoError(t, err)
		_, err = f.repo.Get(ctx, 10, date(t, "2025-06-07"))
		assert.ErrorIs(t, err, ErrDailyRecordNotFound)
		assert.Equal(t, []week.Date{date(t, "2025-06-01"), date(t, "2025-06-01")}, f.recomputer.Calls())
	})

	t.Run("recomputes even when nothing was recorded", func(t *testing.T) {
		// given
		f := setup(t)

		// when
		err := f.service.DeleteDay(ctx, date(t, "2025-06-08"))

		// then
		require.NoError(t, err)
		assert.Equal(t, []week.Date{date(t, "2025-06-08")}, f.recomputer.Calls())
	})

	t.Run("rejects a date after today", func(t *testing.T) {
		// given
		f := setup(t)

		// when
		err := f.service.DeleteDay(ctx, date(t, "2025-07-01"))

		// then
		assert.ErrorIs(t, err, ErrFutureDate)
	})

	t.Run("publishes the deleted day", func(t *testing.T) {
		// given
		f := setup(t)
		var received []event_bus.DailyRecordChanged
		event_bus.SubscribeTyped(f.eventBus, event_bus.DailyRecordDeleted, func(e event_bus.EventT[event_bus.DailyRecordChanged]) error {
			received = append(received, e.Data)
			return nil
		})

		// when
		err := f.service.DeleteDay(ctx, date(t, "2025-06-03"))

		// then
		require.NoError(t, err)
		require.Len(t, received, 1)
		assert.Equal(t, "2025-06-03", received[0].Date)
		assert.Equal(t, []string{"2025-06-01"}, received[0].RecomputedWeeks)
	})
}

func TestServiceImpl_GetDay(t *testing.T) {
	t.Run("returns not found for a day without record", func(t *testing.T) {
		// given
		f := setup(t)

		// when
		_, err := f.service.GetDay(ctx, date(t, "2025-06-03"))

		// then
		assert.ErrorIs(t, err, ErrDailyRecordNotFound)
	})

	t.Run("does not return records of other users", func(t *testing.T) {
		// given
		f := setup(t)
		_, err := f.repo.Upsert(ctx, 11, DailyRecord{Date: date(t, "2025-06-03")})
		require.NoError(t, err)

		// when
		_, err = f.service.GetDay(ctx, date(t, "2025-06-03"))

		// then
		assert.ErrorIs(t, err, ErrDailyRecordNotFound)
	})
}

func TestServiceImpl_GetWeek(t *testing.T) {
	t.Run("returns 7 slots with the recorded days filled in", func(t *testing.T) {
		// given
		f := setup(t)
		_, err := f.service.SaveDay(ctx, date(t, "2025-06-03"), DailyRecord{Habits: Habits{Medicate: true}})
		require.NoError(t, err)

		// when
		view, err := f.service.GetWeek(ctx, date(t, "2025-06-05"))

		// then
		require.NoError(t, err)
		assert.Equal(t, date(t, "2025-06-01"), view.WeekStart)
		assert.Equal(t, date(t, "2025-06-07"), view.WeekEnd)
		for i, slot := range view.Days {
			assert.Equal(t, date(t, "2025-06-01").AddDays(i), slot.Date)
			if i == 2 {
				require.NotNil(t, slot.Record)
				assert.True(t, slot.Record.Habits.Medicate)
			} else {
				assert.Nil(t, slot.Record)
			}
		}
		assert.Equal(t, "Tue", view.Days[2].DayName)
		assert.Equal(t, "03/06", view.Days[2].Label)
	})
}
