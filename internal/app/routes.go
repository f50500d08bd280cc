package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Daily records
	r.HandleFunc("/api/day/{date}", deps.DailyRecordHandler.GetDay).Methods("GET")
	r.HandleFunc("/api/day/{date}", deps.DailyRecordHandler.SaveDay).Methods("PUT")
	r.HandleFunc("/api/day/{date}", deps.DailyRecordHandler.DeleteDay).Methods("DELETE")

	// Week table
	r.HandleFunc("/api/week", deps.WeeklySummaryHandler.GetWeek).Methods("GET")

	// Weekly summaries
	r.HandleFunc("/api/summary", deps.WeeklySummaryHandler.ListSummaries).Methods("GET")
	r.HandleFunc("/api/summary/{weekStart}", deps.WeeklySummaryHandler.GetSummary).Methods("GET")
	r.HandleFunc("/api/summary/{weekStart}/recompute", deps.WeeklySummaryHandler.RecomputeSummary).Methods("POST")

	// Debrief
	r.HandleFunc("/api/debrief/{weekStart}", deps.DebriefHandler.GetDebrief).Methods("GET")
	r.HandleFunc("/api/debrief/{weekStart}", deps.DebriefHandler.SaveReflection).Methods("PUT")
	r.HandleFunc("/api/debrief/{weekStart}/insights", deps.DebriefHandler.GenerateInsights).Methods("POST")

	// User management
	r.HandleFunc("/api/user/current", deps.UserHandler.CurrentUser).Methods("GET")
	r.HandleFunc("/api/user/current", deps.UserHandler.UpdateUser).Methods("PUT")
	r.HandleFunc("/api/user", deps.UserHandler.CreateUser).Methods("POST")
}
