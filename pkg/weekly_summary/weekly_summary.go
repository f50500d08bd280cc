package weekly_summary

import (
	"errors"
	"time"

	"github.com/klokku/habitweek/pkg/daily_record"
	"github.com/klokku/habitweek/pkg/week"
)

var ErrWeeklySummaryNotFound = errors.New("weekly summary not found")

// HabitCaps is the maximum number of days per week each habit contributes to the score.
var HabitCaps = map[daily_record.Habit]int{
	daily_record.Meditate:    7,
	daily_record.Medicate:    3,
	daily_record.Exercise:    7,
	daily_record.Communicate: 5,
	daily_record.EatWell:     6,
	daily_record.Study:       6,
	daily_record.Rest:        6,
}

// TotalBudget is the sum of HabitCaps, the maximum base points of a week.
const TotalBudget = 40

const (
	BigWeightLossBonus   = 5
	SmallWeightLossBonus = 3
)

type HabitCounts map[daily_record.Habit]int

// WeeklySummary is the aggregate of one Sunday..Saturday week.
// AverageWeight is nil when no weight was recorded that week.
type WeeklySummary struct {
	WeekStart         week.Date   `json:"weekStart"`
	WeekEnd           week.Date   `json:"weekEnd"`
	HabitCounts       HabitCounts `json:"habitCounts"`
	AverageWeight     *float64    `json:"averageWeight"`
	BasePoints        int         `json:"basePoints"`
	WeightBonus       int         `json:"weightBonus"`
	TotalPoints       int         `json:"totalPoints"`
	CompletionPercent int         `json:"completionPercent"`
	DaysRecorded      int         `json:"daysRecorded"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// sameAggregate compares everything derived from the daily records, ignoring UpdatedAt.
func sameAggregate(a, b WeeklySummary) bool {
	if !a.WeekStart.Equal(b.WeekStart) ||
		a.BasePoints != b.BasePoints ||
		a.WeightBonus != b.WeightBonus ||
		a.TotalPoints != b.TotalPoints ||
		a.CompletionPercent != b.CompletionPercent ||
		a.DaysRecorded != b.DaysRecorded ||
		!sameWeight(a.AverageWeight, b.AverageWeight) {
		return false
	}
	for _, habit := range daily_record.AllHabits {
		if a.HabitCounts[habit] != b.HabitCounts[habit] {
			return false
		}
	}
	return true
}

func sameWeight(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func inRange(weekStart week.Date, from *week.Date, to *week.Date) bool {
	if from != nil && weekStart.Before(*from) {
		return false
	}
	if to != nil && weekStart.After(*to) {
		return false
	}
	return true
}
