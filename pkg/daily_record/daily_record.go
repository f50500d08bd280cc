package daily_record

import (
	"errors"

	"github.com/klokku/habitweek/pkg/week"
	"github.com/shopspring/decimal"
)

var (
	ErrFutureDate          = errors.New("date is in the future")
	ErrInvalidWeight       = errors.New("invalid weight")
	ErrInvalidMood         = errors.New("invalid mood")
	ErrNoteTooLong         = errors.New("note is too long")
	ErrDailyRecordNotFound = errors.New("daily record not found")
	// ErrAggregationFailed is returned when the day could not be saved because its week failed to recompute.
	ErrAggregationFailed = errors.New("weekly aggregation failed")
)

const (
	MaxWeight     = 500.0
	MaxNoteLength = 4000
)

type Habit string

const (
	Meditate    Habit = "meditate"
	Medicate    Habit = "medicate"
	Exercise    Habit = "exercise"
	Communicate Habit = "communicate"
	EatWell     Habit = "eat_well"
	Study       Habit = "study"
	Rest        Habit = "rest"
)

// AllHabits lists the habits in display order.
var AllHabits = []Habit{Meditate, Medicate, Exercise, Communicate, EatWell, Study, Rest}

type Habits struct {
	Meditate    bool
	Medicate    bool
	Exercise    bool
	Communicate bool
	EatWell     bool
	Study       bool
	Rest        bool
}

func (h Habits) Done(habit Habit) bool {
	switch habit {
	case Meditate:
		return h.Meditate
	case Medicate:
		return h.Medicate
	case Exercise:
		return h.Exercise
	case Communicate:
		return h.Communicate
	case EatWell:
		return h.EatWell
	case Study:
		return h.Study
	case Rest:
		return h.Rest
	}
	return false
}

type Mood string

const (
	Anxious    Mood = "anxious"
	Normal     Mood = "normal"
	Productive Mood = "productive"
)

func (m Mood) IsValid() bool {
	switch m {
	case Anxious, Normal, Productive:
		return true
	}
	return false
}

// DailyRecord is everything a user tracked for one calendar date.
// Weight is in kilograms and nil when not measured.
type DailyRecord struct {
	Date   week.Date
	Weight *float64
	Habits Habits
	Mood   *Mood
	Note   *string
}

// Empty is the record used for a day that has nothing stored.
func Empty(date week.Date) DailyRecord {
	return DailyRecord{Date: date}
}

// roundWeight rounds half-up to 0.1 kg, the precision weights are stored with.
func roundWeight(weight float64) float64 {
	return decimal.NewFromFloat(weight).Round(1).InexactFloat64()
}
