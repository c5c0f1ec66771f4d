package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

func (js *JobServer) DailyReconciliation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Service.Log(ctx).WithField("type", "DailyReconciliationHandler")

	dateParam := r.URL.Query().Get("date")
	date := time.Now()
	if dateParam != "" {
		parsed, err := time.Parse("2006-01-02", dateParam)
		if err != nil {
			http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = parsed
	}

	report, err := js.Reconciliation.DailyReconciliation(ctx, date)
	if err != nil {
		logger.WithError(err).Warn("daily reconciliation failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (js *JobServer) MonthlyReconciliation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Service.Log(ctx).WithField("type", "MonthlyReconciliationHandler")

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		http.Error(w, "Invalid year", http.StatusBadRequest)
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		http.Error(w, "Invalid month", http.StatusBadRequest)
		return
	}

	report, err := js.Reconciliation.MonthlyReconciliation(ctx, year, time.Month(month))
	if err != nil {
		logger.WithError(err).Warn("monthly reconciliation failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (js *JobServer) ObjectAuditHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	records, err := js.Audit.ObjectHistory(r.Context(), vars["model"], vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (js *JobServer) UserAuditActivity(w http.ResponseWriter, r *http.Request) {
	from := time.Now().AddDate(0, -1, 0)
	to := time.Now()

	if fromParam := r.URL.Query().Get("from"); fromParam != "" {
		parsed, err := time.Parse("2006-01-02", fromParam)
		if err != nil {
			http.Error(w, "Invalid from date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if toParam := r.URL.Query().Get("to"); toParam != "" {
		parsed, err := time.Parse("2006-01-02", toParam)
		if err != nil {
			http.Error(w, "Invalid to date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		to = parsed.AddDate(0, 0, 1)
	}

	records, err := js.Audit.UserActivity(r.Context(), mux.Vars(r)["user_id"], from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
