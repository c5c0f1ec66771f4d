package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/edusuite/service-fees/service/business"
	"github.com/edusuite/service-fees/service/models"
	"github.com/edusuite/service-fees/service/utility"
)

type recordExpenseRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	RecordedBy  string `json:"recorded_by"`
}

func (js *JobServer) RecordExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Service.Log(ctx).WithField("type", "RecordExpenseHandler")

	var req recordExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WithError(err).Error("failed to decode request")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, err := utility.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, business.ErrInvalidAmount)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	expense, err := js.Finance.RecordExpense(ctx, &models.Expense{
		Description: req.Description,
		Category:    req.Category,
		Amount:      amount,
		Date:        date,
	}, req.RecordedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

type recordBankStatementRequest struct {
	Year           int    `json:"year"`
	Month          int    `json:"month"`
	ClosingBalance string `json:"closing_balance"`
	RecordedBy     string `json:"recorded_by"`
}

func (js *JobServer) RecordBankStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Service.Log(ctx).WithField("type", "RecordBankStatementHandler")

	var req recordBankStatementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WithError(err).Error("failed to decode request")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	closing, err := utility.ParseAmount(req.ClosingBalance)
	if err != nil {
		writeError(w, business.ErrInvalidAmount)
		return
	}

	if err = js.Finance.RecordBankStatement(ctx, req.Year, time.Month(req.Month), closing, req.RecordedBy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}
