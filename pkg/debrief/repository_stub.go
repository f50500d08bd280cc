package debrief

import (
	"context"
	"sync"
	"time"

	"github.com/klokku/habitweek/pkg/week"
)

type debriefKey struct {
	userId    int
	weekStart week.Date
}

type RepositoryStub struct {
	mu       sync.Mutex
	debriefs map[debriefKey]Debrief
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{debriefs: make(map[debriefKey]Debrief)}
}

func (r *RepositoryStub) Get(ctx context.Context, userId int, weekStart week.Date) (Debrief, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	debrief, ok := r.debriefs[debriefKey{userId, weekStart}]
	if !ok {
		return Debrief{}, ErrDebriefNotFound
	}
	return debrief, nil
}

func (r *RepositoryStub) SaveReflection(ctx context.Context, userId int, weekStart week.Date, reflection Reflection) (Debrief, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := debriefKey{userId, weekStart}
	debrief := r.debriefs[key]
	debrief.WeekStart = weekStart
	debrief.Reflection = reflection
	r.debriefs[key] = debrief
	return debrief, nil
}

func (r *RepositoryStub) SaveInsights(ctx context.Context, userId int, weekStart week.Date, insights string, generatedAt time.Time) (Debrief, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := debriefKey{userId, weekStart}
	debrief := r.debriefs[key]
	debrief.WeekStart = weekStart
	debrief.Insights = &insights
	debrief.InsightsGeneratedAt = &generatedAt
	r.debriefs[key] = debrief
	return debrief, nil
}
