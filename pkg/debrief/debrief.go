package debrief

import (
	"errors"
	"time"

	"github.com/klokku/habitweek/pkg/week"
)

var (
	ErrDebriefNotFound     = errors.New("debrief not found")
	ErrNoSummaryForWeek    = errors.New("no weekly summary for the week")
	ErrInsightsDisabled    = errors.New("insights are disabled")
	ErrInsightsUnavailable = errors.New("insights service unavailable")
	ErrReflectionTooLong   = errors.New("reflection text is too long")
)

// MaxReflectionLength limits each reflection field, in runes.
const MaxReflectionLength = 4000

type Reflection struct {
	WentWell  string `json:"wentWell"`
	ToImprove string `json:"toImprove"`
	NextFocus string `json:"nextFocus"`
}

// Debrief is the weekly reflection of a user, optionally enriched with generated insights.
type Debrief struct {
	WeekStart week.Date
	Reflection
	Insights            *string
	InsightsGeneratedAt *time.Time
}
