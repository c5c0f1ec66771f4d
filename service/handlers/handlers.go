package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/edusuite/service-fees/service/business"
	"github.com/pitabwire/frame"
)

// JobServer carries the service handle and business layers into the HTTP
// handlers.
type JobServer struct {
	Service        *frame.Service
	Ledger         business.LedgerBusiness
	Payments       business.PaymentBusiness
	Orchestration  business.OrchestrationBusiness
	Reconciliation business.ReconciliationBusiness
	Finance        business.FinanceBusiness
	Audit          business.AuditBusiness
}

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps the business error taxonomy onto HTTP statuses. Integrity
// violations are internal faults and never expose detail.
func writeError(w http.ResponseWriter, err error) {
	code := business.ErrorCode(err)

	switch {
	case errors.Is(err, business.ErrTargetNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Code: code, Message: err.Error()})
	case business.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: code, Message: err.Error()})
	case business.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Code: code, Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal", Message: "internal server error"})
	}
}
