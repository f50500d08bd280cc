package weekly_summary

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/habitweek/internal/rest"
	"github.com/klokku/habitweek/pkg/daily_record"
	"github.com/klokku/habitweek/pkg/week"
	log "github.com/sirupsen/logrus"
)

type HabitCountsDTO struct {
	Meditate    int `json:"meditate"`
	Medicate    int `json:"medicate"`
	Exercise    int `json:"exercise"`
	Communicate int `json:"communicate"`
	EatWell     int `json:"eatWell"`
	Study       int `json:"study"`
	Rest        int `json:"rest"`
}

type WeeklySummaryDTO struct {
	WeekStart         string         `json:"weekStart"`
	WeekEnd           string         `json:"weekEnd"`
	Label             string         `json:"label"`
	HabitCounts       HabitCountsDTO `json:"habitCounts"`
	AverageWeight     *float64       `json:"averageWeight"`
	BasePoints        int            `json:"basePoints"`
	WeightBonus       int            `json:"weightBonus"`
	TotalPoints       int            `json:"totalPoints"`
	TotalBudget       int            `json:"totalBudget"`
	CompletionPercent int            `json:"completionPercent"`
	DaysRecorded      int            `json:"daysRecorded"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

type DaySlotDTO struct {
	Date    string                       `json:"date"`
	DayName string                       `json:"dayName"`
	Label   string                       `json:"label"`
	Record  *daily_record.DailyRecordDTO `json:"record"`
}

type WeekDTO struct {
	WeekStart string            `json:"weekStart"`
	WeekEnd   string            `json:"weekEnd"`
	Days      []DaySlotDTO      `json:"days"`
	Summary   *WeeklySummaryDTO `json:"summary"`
}

type Handler struct {
	service      Service
	dailyRecords daily_record.Service
	csvRenderer  SummariesRenderer
}

func NewHandler(service Service, dailyRecords daily_record.Service, csvRenderer SummariesRenderer) *Handler {
	return &Handler{service: service, dailyRecords: dailyRecords, csvRenderer: csvRenderer}
}

// GetWeek godoc
// @Summary Get the week table
// @Description Returns the 7 days of the week containing the date and the week's summary when there is one
// @Tags WeeklySummary
// @Produce json
// @Param date query string true "Any date of the week (YYYY-MM-DD)"
// @Success 200 {object} WeekDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid date"
// @Router /api/week [get]
// @Security XUserId
func (h *Handler) GetWeek(w http.ResponseWriter, r *http.Request) {
	date, err := week.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeInvalidDate(w, "date")
		return
	}
	view, err := h.dailyRecords.GetWeek(r.Context(), date)
	if err != nil {
		daily_record.WriteServiceError(w, err)
		return
	}

	weekDTO := WeekDTO{
		WeekStart: view.WeekStart.String(),
		WeekEnd:   view.WeekEnd.String(),
		Days:      make([]DaySlotDTO, 0, len(view.Days)),
	}
	for _, slot := range view.Days {
		slotDTO := DaySlotDTO{Date: slot.Date.String(), DayName: slot.DayName, Label: slot.Label}
		if slot.Record != nil {
			recordDTO := daily_record.ToDTO(*slot.Record)
			slotDTO.Record = &recordDTO
		}
		weekDTO.Days = append(weekDTO.Days, slotDTO)
	}

	summary, err := h.service.GetSummary(r.Context(), view.WeekStart)
	if err == nil {
		summaryDTO := toDTO(summary)
		weekDTO.Summary = &summaryDTO
	} else if !errors.Is(err, ErrWeeklySummaryNotFound) {
		writeServiceError(w, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, weekDTO)
}

// ListSummaries godoc
// @Summary List weekly summaries
// @Description Summaries ordered by week start. Responds with CSV when the client accepts text/csv.
// @Tags WeeklySummary
// @Produce json
// @Produce text/csv
// @Param from query string false "First week start (YYYY-MM-DD)"
// @Param to query string false "Last week start (YYYY-MM-DD)"
// @Success 200 {array} WeeklySummaryDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid date"
// @Router /api/summary [get]
// @Security XUserId
func (h *Handler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	from, ok := optionalDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := optionalDate(w, r, "to")
	if !ok {
		return
	}

	summaries, err := h.service.ListSummaries(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/csv") {
		csvData, err := h.csvRenderer.RenderSummaries(summaries)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=weekly-summaries.csv")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(csvData)); err != nil {
			log.Errorf("failed to write csv response: %v", err)
		}
		return
	}

	dtos := make([]WeeklySummaryDTO, 0, len(summaries))
	for _, summary := range summaries {
		dtos = append(dtos, toDTO(summary))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// GetSummary godoc
// @Summary Get the summary of a week
// @Tags WeeklySummary
// @Produce json
// @Param weekStart path string true "Week start, any date of the week is accepted (YYYY-MM-DD)"
// @Success 200 {object} WeeklySummaryDTO
// @Failure 404 {object} rest.ErrorResponse "No summary for the week"
// @Router /api/summary/{weekStart} [get]
// @Security XUserId
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	weekStart, err := week.ParseDate(mux.Vars(r)["weekStart"])
	if err != nil {
		writeInvalidDate(w, "weekStart")
		return
	}
	summary, err := h.service.GetSummary(r.Context(), weekStart)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(summary))
}

// RecomputeSummary godoc
// @Summary Recompute the summary of a week
// @Description Retry for a save that failed with an aggregation error
// @Tags WeeklySummary
// @Produce json
// @Param weekStart path string true "Week start (YYYY-MM-DD)"
// @Success 200 {object} WeeklySummaryDTO
// @Failure 503 {object} rest.ErrorResponse "Store unavailable"
// @Router /api/summary/{weekStart}/recompute [post]
// @Security XUserId
func (h *Handler) RecomputeSummary(w http.ResponseWriter, r *http.Request) {
	weekStart, err := week.ParseDate(mux.Vars(r)["weekStart"])
	if err != nil {
		writeInvalidDate(w, "weekStart")
		return
	}
	summary, err := h.service.RecomputeSummary(r.Context(), weekStart)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(summary))
}

func optionalDate(w http.ResponseWriter, r *http.Request, param string) (*week.Date, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return nil, true
	}
	date, err := week.ParseDate(value)
	if err != nil {
		writeInvalidDate(w, param)
		return nil, false
	}
	return &date, true
}

func writeInvalidDate(w http.ResponseWriter, param string) {
	rest.WriteError(w, http.StatusBadRequest, rest.ErrorResponse{
		Error:   "Invalid " + param,
		Details: param + " must be in YYYY-MM-DD format",
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrWeeklySummaryNotFound) {
		rest.WriteError(w, http.StatusNotFound, rest.ErrorResponse{Error: "No summary for this week"})
		return
	}
	daily_record.WriteServiceError(w, err)
}

func toDTO(summary WeeklySummary) WeeklySummaryDTO {
	return WeeklySummaryDTO{
		WeekStart: summary.WeekStart.String(),
		WeekEnd:   summary.WeekEnd.String(),
		Label:     week.DisplayLabel(summary.WeekStart) + " - " + week.DisplayLabel(summary.WeekEnd),
		HabitCounts: HabitCountsDTO{
			Meditate:    summary.HabitCounts[daily_record.Meditate],
			Medicate:    summary.HabitCounts[daily_record.Medicate],
			Exercise:    summary.HabitCounts[daily_record.Exercise],
			Communicate: summary.HabitCounts[daily_record.Communicate],
			EatWell:     summary.HabitCounts[daily_record.EatWell],
			Study:       summary.HabitCounts[daily_record.Study],
			Rest:        summary.HabitCounts[daily_record.Rest],
		},
		AverageWeight:     summary.AverageWeight,
		BasePoints:        summary.BasePoints,
		WeightBonus:       summary.WeightBonus,
		TotalPoints:       summary.TotalPoints,
		TotalBudget:       TotalBudget,
		CompletionPercent: summary.CompletionPercent,
		DaysRecorded:      summary.DaysRecorded,
		UpdatedAt:         summary.UpdatedAt,
	}
}
