package daily_record

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/klokku/habitweek/internal/config"
	"github.com/klokku/habitweek/internal/database"
	"github.com/klokku/habitweek/internal/event_bus"
	"github.com/klokku/habitweek/internal/utils"
	"github.com/klokku/habitweek/pkg/user"
	"github.com/klokku/habitweek/pkg/week"
	log "github.com/sirupsen/logrus"
)

// WeeklyRecomputer re-derives the stored aggregate of a week from its daily records.
// It is called inside the transaction of the day write and returns the starts of the weeks
// whose stored aggregate was rewritten.
type WeeklyRecomputer interface {
	RecomputeWeek(ctx context.Context, userId int, weekStart week.Date) ([]week.Date, error)
}

type Service interface {
	SaveDay(ctx context.Context, date week.Date, record DailyRecord) (DailyRecord, error)
	DeleteDay(ctx context.Context, date week.Date) error
	GetDay(ctx context.Context, date week.Date) (DailyRecord, error)
	GetWeek(ctx context.Context, date week.Date) (WeekView, error)
}

// DaySlot is one of the 7 columns of a week. Record is nil when nothing was tracked that day.
type DaySlot struct {
	Date    week.Date
	DayName string
	Label   string
	Record  *DailyRecord
}

type WeekView struct {
	WeekStart week.Date
	WeekEnd   week.Date
	Days      [7]DaySlot
}

type ServiceImpl struct {
	repo          Repository
	recomputer    WeeklyRecomputer
	transactor    database.Transactor
	eventBus      *event_bus.EventBus
	clock         utils.Clock
	retryAttempts int
	retryInterval time.Duration
	locks         *weekLocks
}

func NewService(
	repo Repository,
	recomputer WeeklyRecomputer,
	transactor database.Transactor,
	eventBus *event_bus.EventBus,
	clock utils.Clock,
	storeCfg config.Store,
) *ServiceImpl {
	attempts := storeCfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &ServiceImpl{
		repo:          repo,
		recomputer:    recomputer,
		transactor:    transactor,
		eventBus:      eventBus,
		clock:         clock,
		retryAttempts: attempts,
		retryInterval: storeCfg.RetryInterval,
		locks:         newWeekLocks(),
	}
}

// SaveDay validates the record, replaces whatever was stored for the date and recomputes the week,
// all in one transaction.
func (s *ServiceImpl) SaveDay(ctx context.Context, date week.Date, record DailyRecord) (DailyRecord, error) {
	currentUser, err := user.CurrentUser(ctx)
	if err != nil {
		return DailyRecord{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if err := s.validateDate(currentUser, date); err != nil {
		return DailyRecord{}, err
	}
	record.Date = date
	if err := validateFields(&record); err != nil {
		return DailyRecord{}, err
	}

	weekStart := week.WeekStartOf(date)
	var saved DailyRecord
	var rewritten []week.Date
	err = s.inWeekUnit(ctx, currentUser.Id, weekStart, func(ctx context.Context) error {
		stored, err := s.repo.Upsert(ctx, currentUser.Id, record)
		if err != nil {
			return err
		}
		rewritten, err = s.recomputer.RecomputeWeek(ctx, currentUser.Id, weekStart)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAggregationFailed, err)
		}
		saved = stored
		return nil
	})
	if err != nil {
		log.Errorf("failed to save day %s: %v", date, err)
		return DailyRecord{}, err
	}

	s.publish(ctx, event_bus.DailyRecordSaved, currentUser.Id, date, weekStart, rewritten)
	return saved, nil
}

// DeleteDay removes the record of the date and recomputes the week. Deleting a day without a record
// still recomputes.
func (s *ServiceImpl) DeleteDay(ctx context.Context, date week.Date) error {
	currentUser, err := user.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}
	if err := s.validateDate(currentUser, date); err != nil {
		return err
	}

	weekStart := week.WeekStartOf(date)
	var rewritten []week.Date
	err = s.inWeekUnit(ctx, currentUser.Id, weekStart, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, currentUser.Id, date); err != nil {
			return err
		}
		var err error
		rewritten, err = s.recomputer.RecomputeWeek(ctx, currentUser.Id, weekStart)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAggregationFailed, err)
		}
		return nil
	})
	if err != nil {
		log.Errorf("failed to delete day %s: %v", date, err)
		return err
	}

	s.publish(ctx, event_bus.DailyRecordDeleted, currentUser.Id, date, weekStart, rewritten)
	return nil
}

func (s *ServiceImpl) GetDay(ctx context.Context, date week.Date) (DailyRecord, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return DailyRecord{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if !date.IsValid() {
		return DailyRecord{}, week.ErrInvalidDate
	}
	return s.repo.Get(ctx, userId, date)
}

// GetWeek returns the 7 day slots of the week containing date.
func (s *ServiceImpl) GetWeek(ctx context.Context, date week.Date) (WeekView, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return WeekView{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if !date.IsValid() {
		return WeekView{}, week.ErrInvalidDate
	}

	weekStart := week.WeekStartOf(date)
	weekEnd := week.WeekEndOf(weekStart)
	records, err := s.repo.ListRange(ctx, userId, weekStart, weekEnd)
	if err != nil {
		return WeekView{}, err
	}
	byDate := make(map[week.Date]DailyRecord, len(records))
	for _, r := range records {
		byDate[r.Date] = r
	}

	view := WeekView{WeekStart: weekStart, WeekEnd: weekEnd}
	for i, d := range week.WeekMembers(weekStart) {
		slot := DaySlot{Date: d, DayName: week.DayName(d), Label: week.DisplayLabel(d)}
		if r, ok := byDate[d]; ok {
			slot.Record = &r
		}
		view.Days[i] = slot
	}
	return view, nil
}

func (s *ServiceImpl) validateDate(u user.User, date week.Date) error {
	if !date.IsValid() {
		return week.ErrInvalidDate
	}
	today := utils.Today(s.clock, u.Settings.Timezone)
	if date.After(today) {
		return fmt.Errorf("%w: %s is after %s", ErrFutureDate, date, today)
	}
	return nil
}

func validateFields(record *DailyRecord) error {
	if record.Weight != nil {
		rounded := roundWeight(*record.Weight)
		if rounded <= 0 || rounded > MaxWeight {
			return fmt.Errorf("%w: %v kg is outside (0, %v]", ErrInvalidWeight, *record.Weight, MaxWeight)
		}
		record.Weight = &rounded
	}
	if record.Mood != nil && !record.Mood.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidMood, *record.Mood)
	}
	if record.Note != nil && utf8.RuneCountInString(*record.Note) > MaxNoteLength {
		return fmt.Errorf("%w: more than %d characters", ErrNoteTooLong, MaxNoteLength)
	}
	return nil
}

// inWeekUnit runs fn in a transaction while holding the lock of the user's week. Store failures
// roll the transaction back and are retried with exponential backoff.
func (s *ServiceImpl) inWeekUnit(ctx context.Context, userId int, weekStart week.Date, fn func(ctx context.Context) error) error {
	unlock := s.locks.lock(weekKey{userId: userId, weekStart: weekStart})
	defer unlock()

	attempt := 0
	operation := func() error {
		attempt++
		err := s.transactor.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, database.ErrStoreUnavailable) {
			log.Warnf("attempt %d of %d for week %s failed: %v", attempt, s.retryAttempts, weekStart, err)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	if s.retryInterval > 0 {
		policy.InitialInterval = s.retryInterval
	}
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.retryAttempts-1)), ctx))
}

func (s *ServiceImpl) publish(ctx context.Context, eventType event_bus.EventType, userId int, date week.Date, weekStart week.Date, rewritten []week.Date) {
	recomputedWeeks := make([]string, 0, len(rewritten))
	for _, w := range rewritten {
		recomputedWeeks = append(recomputedWeeks, w.String())
	}
	err := s.eventBus.Publish(event_bus.NewEvent(ctx, eventType, event_bus.DailyRecordChanged{
		UserId:          userId,
		Date:            date.String(),
		WeekStart:       weekStart.String(),
		RecomputedWeeks: recomputedWeeks,
	}))
	if err != nil {
		// The write is committed, a failing subscriber must not turn it into an error.
		log.Errorf("failed to publish %s for %s: %v", eventType, date, err)
	}
}

type weekKey struct {
	userId    int
	weekStart week.Date
}

type weekLock struct {
	mu   sync.Mutex
	refs int
}

// weekLocks hands out one mutex per (user, week). Entries are dropped when nobody holds or waits for them.
type weekLocks struct {
	mu    sync.Mutex
	locks map[weekKey]*weekLock
}

func newWeekLocks() *weekLocks {
	return &weekLocks{locks: make(map[weekKey]*weekLock)}
}

func (l *weekLocks) lock(key weekKey) (unlock func()) {
	l.mu.Lock()
	wl, ok := l.locks[key]
	if !ok {
		wl = &weekLock{}
		l.locks[key] = wl
	}
	wl.refs++
	l.mu.Unlock()

	wl.mu.Lock()
	return func() {
		wl.mu.Unlock()
		l.mu.Lock()
		wl.refs--
		if wl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
