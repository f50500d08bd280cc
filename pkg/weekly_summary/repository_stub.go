package weekly_summary

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/klokku/habitweek/internal/database"
	"github.com/klokku/habitweek/pkg/week"
)

var errStubFailure = errors.New("stub store failure")

type summaryKey struct {
	userId    int
	weekStart week.Date
}

// RepositoryStub is an in-memory Repository. Snapshot and Restore let a test transactor roll it back.
type RepositoryStub struct {
	mu          sync.RWMutex
	summaries   map[summaryKey]WeeklySummary
	snapshot    map[summaryKey]WeeklySummary
	failOnSave  bool
	failOnRead  bool
	saveCount   int
	lockedWeeks []week.Date
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{summaries: make(map[summaryKey]WeeklySummary)}
}

func (r *RepositoryStub) Get(ctx context.Context, userId int, weekStart week.Date) (WeeklySummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failOnRead {
		return WeeklySummary{}, database.StoreError("get weekly summary", errStubFailure)
	}
	summary, ok := r.summaries[summaryKey{userId, weekStart}]
	if !ok {
		return WeeklySummary{}, ErrWeeklySummaryNotFound
	}
	return copySummary(summary), nil
}

func (r *RepositoryStub) Save(ctx context.Context, userId int, summary WeeklySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOnSave {
		return database.StoreError("store weekly summary", errStubFailure)
	}
	r.saveCount++
	r.summaries[summaryKey{userId, summary.WeekStart}] = copySummary(summary)
	return nil
}

func (r *RepositoryStub) List(ctx context.Context, userId int, from *week.Date, to *week.Date) ([]WeeklySummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failOnRead {
		return nil, database.StoreError("list weekly summaries", errStubFailure)
	}
	summaries := make([]WeeklySummary, 0)
	for key, summary := range r.summaries {
		if key.userId == userId && inRange(summary.WeekStart, from, to) {
			summaries = append(summaries, copySummary(summary))
		}
	}
	slices.SortFunc(summaries, func(a, b WeeklySummary) int {
		return a.WeekStart.Compare(b.WeekStart)
	})
	return summaries, nil
}

func (r *RepositoryStub) LockWeek(ctx context.Context, userId int, weekStart week.Date) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lockedWeeks = append(r.lockedWeeks, weekStart)
	return nil
}

// Put stores a summary directly, bypassing the aggregator.
func (r *RepositoryStub) Put(userId int, summary WeeklySummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[summaryKey{userId, summary.WeekStart}] = copySummary(summary)
}

func (r *RepositoryStub) SetFailOnSave(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOnSave = fail
}

func (r *RepositoryStub) SetFailOnRead(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOnRead = fail
}

func (r *RepositoryStub) SaveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saveCount
}

func (r *RepositoryStub) LockedWeeks() []week.Date {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.lockedWeeks)
}

func (r *RepositoryStub) Snapshot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = maps.Clone(r.summaries)
}

func (r *RepositoryStub) Restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot != nil {
		r.summaries = r.snapshot
		r.snapshot = nil
	}
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = make(map[summaryKey]WeeklySummary)
	r.snapshot = nil
	r.failOnSave = false
	r.failOnRead = false
	r.saveCount = 0
	r.lockedWeeks = nil
}

func copySummary(summary WeeklySummary) WeeklySummary {
	summary.HabitCounts = maps.Clone(summary.HabitCounts)
	if summary.AverageWeight != nil {
		w := *summary.AverageWeight
		summary.AverageWeight = &w
	}
	return summary
}
