package weekly_summary

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/klokku/habitweek/pkg/daily_record"
	"github.com/klokku/habitweek/pkg/week"
	log "github.com/sirupsen/logrus"
)

type SummariesRenderer interface {
	RenderSummaries(summaries []WeeklySummary) (string, error)
}

type CsvRendererImpl struct {
}

func NewCsvRenderer() *CsvRendererImpl {
	return &CsvRendererImpl{}
}

var habitColumnNames = map[daily_record.Habit]string{
	daily_record.Meditate:    "Meditate",
	daily_record.Medicate:    "Medicate",
	daily_record.Exercise:    "Exercise",
	daily_record.Communicate: "Communicate",
	daily_record.EatWell:     "Eat well",
	daily_record.Study:       "Study",
	daily_record.Rest:        "Rest",
}

// RenderSummaries writes one row per week, in the order given.
func (t *CsvRendererImpl) RenderSummaries(summaries []WeeklySummary) (string, error) {
	header := []string{"Week"}
	for _, habit := range daily_record.AllHabits {
		header = append(header, habitColumnNames[habit])
	}
	header = append(header, "Average weight", "Base points", "Weight bonus", "Total points", "Completion %")

	data := make([][]string, 0, len(summaries)+1)
	data = append(data, header)
	for _, summary := range summaries {
		data = append(data, summaryRow(summary))
	}

	var b bytes.Buffer
	writer := csv.NewWriter(&b)
	for _, row := range data {
		err := writer.Write(row)
		if err != nil {
			log.Errorf("Error writing to csv: %v", err)
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return "", err
	}

	return b.String(), nil
}

func summaryRow(summary WeeklySummary) []string {
	row := make([]string, 0, len(daily_record.AllHabits)+6)
	row = append(row, week.DisplayLabel(summary.WeekStart)+"-"+week.DisplayLabel(summary.WeekEnd))
	for _, habit := range daily_record.AllHabits {
		row = append(row, strconv.Itoa(summary.HabitCounts[habit]))
	}
	averageWeight := ""
	if summary.AverageWeight != nil {
		averageWeight = strconv.FormatFloat(*summary.AverageWeight, 'f', 1, 64)
	}
	return append(row,
		averageWeight,
		strconv.Itoa(summary.BasePoints),
		strconv.Itoa(summary.WeightBonus),
		strconv.Itoa(summary.TotalPoints),
		strconv.Itoa(summary.CompletionPercent),
	)
}
