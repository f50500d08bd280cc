package daily_record

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

type recordKey struct {
	userId int
	date   week.Date
}

// RepositoryStub is an in-memory Repository. Snapshot and Restore let a test transactor roll it back.
type RepositoryStub struct {
	mu       sync.RWMutex
	records  map[recordKey]DailyRecord
	snapshot map[recordKey]DailyRecord
	failing  bool
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{records: make(map[recordKey]DailyRecord)}
}

func (r *RepositoryStub) Get(ctx context.Context, userId int, date week.Date) (DailyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failing {
		return DailyRecord{}, database.StoreError("get daily record", errStubFailure)
	}
	record, ok := r.records[recordKey{userId, date}]
	if !ok {
		return DailyRecord{}, ErrDailyRecordNotFound
	}
	return copyRecord(record), nil
}

func (r *RepositoryStub) Upsert(ctx context.Context, userId int, record DailyRecord) (DailyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return DailyRecord{}, database.StoreError("store daily record", errStubFailure)
	}
	r.records[recordKey{userId, record.Date}] = copyRecord(record)
	return copyRecord(record), nil
}

func (r *RepositoryStub) Delete(ctx context.Context, userId int, date week.Date) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return database.StoreError("delete daily record", errStubFailure)
	}
	delete(r.records, recordKey{userId, date})
	return nil
}

func (r *RepositoryStub) ListRange(ctx context.Context, userId int, from week.Date, to week.Date) ([]DailyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failing {
		return nil, database.StoreError("list daily records", errStubFailure)
	}
	var records []DailyRecord
	for key, record := range r.records {
		if key.userId != userId || key.date.Before(from) || key.date.After(to) {
			continue
		}
		records = append(records, copyRecord(record))
	}
	slices.SortFunc(records, func(a, b DailyRecord) int {
		return a.Date.Compare(b.Date)
	})
	return records, nil
}

// SetFailing makes every call fail with database.ErrStoreUnavailable.
func (r *RepositoryStub) SetFailing(failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = failing
}

func (r *RepositoryStub) Snapshot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = maps.Clone(r.records)
}

func (r *RepositoryStub) Restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot != nil {
		r.records = r.snapshot
		r.snapshot = nil
	}
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[recordKey]DailyRecord)
	r.snapshot = nil
	r.failing = false
}

func copyRecord(record DailyRecord) DailyRecord {
	if record.Weight != nil {
		w := *record.Weight
		record.Weight = &w
	}
	if record.Mood != nil {
		m := *record.Mood
		record.Mood = &m
	}
	if record.Note != nil {
		n := *record.Note
		record.Note = &n
	}
	return record
}
