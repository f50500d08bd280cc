package debrief

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/habitweek/internal/rest"
	"github.com/klokku/habitweek/pkg/daily_record"
	"github.com/klokku/habitweek/pkg/week"
)

type DebriefDTO struct {
	WeekStart           string     `json:"weekStart"`
	WentWell            string     `json:"wentWell"`
	ToImprove           string     `json:"toImprove"`
	NextFocus           string     `json:"nextFocus"`
	Insights            *string    `json:"insights"`
	InsightsGeneratedAt *time.Time `json:"insightsGeneratedAt"`
}

type ReflectionDTO struct {
	WentWell  string `json:"wentWell"`
	ToImprove string `json:"toImprove"`
	NextFocus string `json:"nextFocus"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// GetDebrief godoc
// @Summary Get the debrief of a week
// @Tags Debrief
// @Produce json
// @Param weekStart path string true "Week start, any date of the week is accepted (YYYY-MM-DD)"
// @Success 200 {object} DebriefDTO
// @Router /api/debrief/{weekStart} [get]
// @Security XUserId
func (h *Handler) GetDebrief(w http.ResponseWriter, r *http.Request) {
	weekStart, ok := weekStartParam(w, r)
	if !ok {
		return
	}
	debrief, err := h.service.GetDebrief(r.Context(), weekStart)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(debrief))
}

// SaveReflection godoc
// @Summary Save the reflection of a week
// @Description Replaces the reflection text. Generated insights are kept.
// @Tags Debrief
// @Accept json
// @Produce json
// @Param weekStart path string true "Week start (YYYY-MM-DD)"
// @Param reflection body ReflectionDTO true "Reflection"
// @Success 200 {object} DebriefDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request"
// @Router /api/debrief/{weekStart} [put]
// @Security XUserId
func (h *Handler) SaveReflection(w http.ResponseWriter, r *http.Request) {
	weekStart, ok := weekStartParam(w, r)
	if !ok {
		return
	}
	var reflectionDTO ReflectionDTO
	if err := json.NewDecoder(r.Body).Decode(&reflectionDTO); err != nil {
		rest.WriteError(w, http.StatusBadRequest, rest.ErrorResponse{Error: "Invalid request body format"})
		return
	}
	debrief, err := h.service.SaveReflection(r.Context(), weekStart, Reflection{
		WentWell:  reflectionDTO.WentWell,
		ToImprove: reflectionDTO.ToImprove,
		NextFocus: reflectionDTO.NextFocus,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(debrief))
}

// GenerateInsights godoc
// @Summary Generate insights for a week
// @Tags Debrief
// @Produce json
// @Param weekStart path string true "Week start (YYYY-MM-DD)"
// @Success 200 {object} DebriefDTO
// @Failure 404 {object} rest.ErrorResponse "No summary for the week"
// @Failure 501 {object} rest.ErrorResponse "Insights disabled"
// @Failure 503 {object} rest.ErrorResponse "Insights service unavailable"
// @Router /api/debrief/{weekStart}/insights [post]
// @Security XUserId
func (h *Handler) GenerateInsights(w http.ResponseWriter, r *http.Request) {
	weekStart, ok := weekStartParam(w, r)
	if !ok {
		return
	}
	debrief, err := h.service.GenerateInsights(r.Context(), weekStart)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(debrief))
}

func weekStartParam(w http.ResponseWriter, r *http.Request) (week.Date, bool) {
	weekStart, err := week.ParseDate(mux.Vars(r)["weekStart"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, rest.ErrorResponse{
			Error:   "Invalid weekStart",
			Details: "weekStart must be in YYYY-MM-DD format",
		})
		return week.Date{}, false
	}
	return weekStart, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrReflectionTooLong):
		rest.WriteError(w, http.StatusBadRequest, rest.ErrorResponse{Error: "Reflection is too long", Details: err.Error()})
	case errors.Is(err, ErrNoSummaryForWeek):
		rest.WriteError(w, http.StatusNotFound, rest.ErrorResponse{Error: "No summary for this week"})
	case errors.Is(err, ErrInsightsDisabled):
		rest.WriteError(w, http.StatusNotImplemented, rest.ErrorResponse{Error: "Insights are disabled"})
	case errors.Is(err, ErrInsightsUnavailable):
		rest.WriteError(w, http.StatusServiceUnavailable, rest.ErrorResponse{
			Error:   "Insights service unavailable",
			Details: err.Error(),
			Retry:   "insights",
		})
	default:
		daily_record.WriteServiceError(w, err)
	}
}

func toDTO(debrief Debrief) DebriefDTO {
	return DebriefDTO{
		WeekStart:           debrief.WeekStart.String(),
		WentWell:            debrief.WentWell,
		ToImprove:           debrief.ToImprove,
		NextFocus:           debrief.NextFocus,
		Insights:            debrief.Insights,
		InsightsGeneratedAt: debrief.InsightsGeneratedAt,
	}
}
