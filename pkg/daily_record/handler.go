package daily_record

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klokku/habitweek/internal/database"
	"github.com/klokku/habitweek/internal/rest"
	"github.com/klokku/habitweek/pkg/user"
	"github.com/klokku/habitweek/pkg/week"
	log "github.com/sirupsen/logrus"
)

type HabitsDTO struct {
	Meditate    bool `json:"meditate"`
	Medicate    bool `json:"medicate"`
	Exercise    bool `json:"exercise"`
	Communicate bool `json:"communicate"`
	EatWell     bool `json:"eatWell"`
	Study       bool `json:"study"`
	Rest        bool `json:"rest"`
}

type DailyRecordDTO struct {
	Date   string    `json:"date"`
	Weight *float64  `json:"weight"`
	Habits HabitsDTO `json:"habits"`
	Mood   *string   `json:"mood"`
	Note   *string   `json:"note"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// GetDay godoc
// @Summary Get the record of a day
// @Tags DailyRecord
// @Produce json
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 200 {object} DailyRecordDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid date"
// @Failure 404 {object} rest.ErrorResponse "Nothing recorded that day"
// @Router /api/day/{date} [get]
// @Security XUserId
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	date, ok := dateFromPath(w, r)
	if !ok {
		return
	}
	record, err := h.service.GetDay(r.Context(), date)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ToDTO(record))
}

// SaveDay godoc
// @Summary Save the record of a day
// @Description Replaces the whole record of the day and recomputes its week
// @Tags DailyRecord
// @Accept json
// @Produce json
// @Param date path string true "Date (YYYY-MM-DD)"
// @Param record body DailyRecordDTO true "Daily record"
// @Success 200 {object} DailyRecordDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid date, weight, mood or note"
// @Failure 422 {object} rest.ErrorResponse "Date in the future"
// @Failure 503 {object} rest.ErrorResponse "Store unavailable or aggregation failed"
// @Router /api/day/{date} [put]
// @Security XUserId
func (h *Handler) SaveDay(w http.ResponseWriter, r *http.Request) {
	date, ok := dateFromPath(w, r)
	if !ok {
		return
	}
	var recordDTO DailyRecordDTO
	if err := json.NewDecoder(r.Body).Decode(&recordDTO); err != nil {
		rest.WriteError(w, http.StatusBadRequest, rest.ErrorResponse{Error: "Invalid request body format"})
		return
	}
	log.Debugf("Saving day %s", date)

	saved, err := h.service.SaveDay(r.Context(), date, FromDTO(recordDTO))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ToDTO(saved))
}

// DeleteDay godoc
// @Summary Delete the record of a day
// @Tags DailyRecord
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 204
// @Failure 400 {object} rest.ErrorResponse "Invalid date"
// @Failure 503 {object} rest.ErrorResponse "Store unavailable or aggregation failed"
// @Router /api/day/{date} [delete]
// @Security XUserId
func (h *Handler) DeleteDay(w http.ResponseWriter, r *http.Request) {
	date, ok := dateFromPath(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDay(r.Context(), date); err != nil {
		WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func dateFromPath(w http.ResponseWriter, r *http.Request) (week.Date, bool) {
	date, err := week.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, rest.ErrorResponse{
			Error:   "Invalid date",
			Details: "date must be in YYYY-MM-DD format",
		})
		return week.Date{}, false
	}
	return date, true
}

// WriteServiceError maps errors of the daily record write path to HTTP responses.
func WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, week.ErrInvalidDate):
		rest.WriteError(w, http.StatusBadRequest, rest.ErrorResponse{Error: "Invalid date", Details: err.Error()})
	case errors.Is(err, ErrInvalidWeight):
		rest.WriteError(w, http.StatusBadRequest, rest.ErrorResponse{Error: "Invalid weight", Details: err.Error()})
	case errors.Is(err, ErrInvalidMood):
		rest.WriteError(w, http.StatusBadRequest, rest.ErrorResponse{Error: "Invalid mood", Details: err.Error()})
	case errors.Is(err, ErrNoteTooLong):
		rest.WriteError(w, http.StatusBadRequest, rest.ErrorResponse{Error: "Note is too long", Details: err.Error()})
	case errors.Is(err, ErrFutureDate):
		rest.WriteError(w, http.StatusUnprocessableEntity, rest.ErrorResponse{Error: "Date is in the future", Details: err.Error()})
	case errors.Is(err, ErrDailyRecordNotFound):
		rest.WriteError(w, http.StatusNotFound, rest.ErrorResponse{Error: "Nothing recorded for this day"})
	case errors.Is(err, ErrAggregationFailed):
		rest.WriteError(w, http.StatusServiceUnavailable, rest.ErrorResponse{
			Error:   "Weekly summary could not be recomputed",
			Details: err.Error(),
			Retry:   "recompute",
		})
	case errors.Is(err, database.ErrStoreUnavailable):
		rest.WriteError(w, http.StatusServiceUnavailable, rest.ErrorResponse{
			Error:   "Record store unavailable",
			Details: err.Error(),
			Retry:   "save",
		})
	case errors.Is(err, user.ErrNoUser):
		http.Error(w, "user not found", http.StatusForbidden)
	default:
		log.Errorf("unexpected error: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func ToDTO(record DailyRecord) DailyRecordDTO {
	var mood *string
	if record.Mood != nil {
		m := string(*record.Mood)
		mood = &m
	}
	return DailyRecordDTO{
		Date:   record.Date.String(),
		Weight: record.Weight,
		Habits: HabitsDTO{
			Meditate:    record.Habits.Meditate,
			Medicate:    record.Habits.Medicate,
			Exercise:    record.Habits.Exercise,
			Communicate: record.Habits.Communicate,
			EatWell:     record.Habits.EatWell,
			Study:       record.Habits.Study,
			Rest:        record.Habits.Rest,
		},
		Mood: mood,
		Note: record.Note,
	}
}

// FromDTO converts the request body. The date is taken from the path, not from the body.
func FromDTO(dto DailyRecordDTO) DailyRecord {
	var mood *Mood
	if dto.Mood != nil {
		m := Mood(*dto.Mood)
		mood = &m
	}
	return DailyRecord{
		Weight: dto.Weight,
		Habits: Habits{
			Meditate:    dto.Habits.Meditate,
			Medicate:    dto.Habits.Medicate,
			Exercise:    dto.Habits.Exercise,
			Communicate: dto.Habits.Communicate,
			EatWell:     dto.Habits.EatWell,
			Study:       dto.Habits.Study,
			Rest:        dto.Habits.Rest,
		},
		Mood: mood,
		Note: dto.Note,
	}
}
