package event_bus

import "time"

const (
	DailyRecordSaved        EventType = "daily_record.saved"
	DailyRecordDeleted      EventType = "daily_record.deleted"
	WeeklySummaryRecomputed EventType = "weekly_summary.recomputed"
	DebriefInsightsCreated  EventType = "debrief.insights.created"
)

// DailyRecordChanged is published after a day was saved or deleted and its week was recomputed.
// Dates are ISO "YYYY-MM-DD" strings so that this package stays free of domain imports.
// RecomputedWeeks lists the weeks whose stored summary the write rewrote, oldest first.
type DailyRecordChanged struct {
	UserId          int      `json:"userId"`
	Date            string   `json:"date"`
	WeekStart       string   `json:"weekStart"`
	RecomputedWeeks []string `json:"recomputedWeeks"`
}

type WeeklySummaryChanged struct {
	UserId            int      `json:"userId"`
	WeekStart         string   `json:"weekStart"`
	BasePoints        int      `json:"basePoints"`
	WeightBonus       int      `json:"weightBonus"`
	TotalPoints       int      `json:"totalPoints"`
	CompletionPercent int      `json:"completionPercent"`
	AverageWeight     *float64 `json:"averageWeight,omitempty"`
}

type DebriefInsightsGenerated struct {
	UserId      int       `json:"userId"`
	WeekStart   string    `json:"weekStart"`
	GeneratedAt time.Time `json:"generatedAt"`
}
