package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/edusuite/service-fees/service/business"
	"github.com/edusuite/service-fees/service/models"
	"github.com/edusuite/service-fees/service/utility"
)

type createFeeRequest struct {
	StudentID     string `json:"student_id"`
	Category      string `json:"category"`
	AcademicYear  string `json:"academic_year"`
	Term          int    `json:"term"`
	AmountPayable string `json:"amount_payable"`
	Notes         string `json:"notes,omitempty"`
	RecordedBy    string `json:"recorded_by"`
}

func (js *JobServer) CreateFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Service.Log(ctx).WithField("type", "CreateFeeHandler")

	var req createFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WithError(err).Error("failed to decode request")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, err := utility.ParseAmount(req.AmountPayable)
	if err != nil {
		writeError(w, business.ErrInvalidAmount)
		return
	}

	fee := &models.Fee{
		StudentID:     req.StudentID,
		Category:      req.Category,
		AcademicYear:  req.AcademicYear,
		Term:          req.Term,
		AmountPayable: amount,
		Notes:         req.Notes,
		RecordedBy:    req.RecordedBy,
	}

	created, err := js.Ledger.CreateFee(ctx, fee, req.RecordedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (js *JobServer) GetFee(w http.ResponseWriter, r *http.Request) {
	fee, err := js.Ledger.GetFee(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fee)
}

type generateFeeRequest struct {
	DueDate string `json:"due_date"`
	User    string `json:"user"`
}

func (js *JobServer) GenerateFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req generateFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		http.Error(w, "Invalid due_date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	if err = js.Ledger.GenerateFee(ctx, mux.Vars(r)["id"], dueDate, req.User); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "generated"})
}

type transitionRequest struct {
	User string `json:"user"`
}

func (js *JobServer) transition(
	w http.ResponseWriter, r *http.Request,
	apply func(feeID, user string) error, status string,
) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := apply(mux.Vars(r)["id"], req.User); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (js *JobServer) VerifyFee(w http.ResponseWriter, r *http.Request) {
	js.transition(w, r, func(id, user string) error {
		return js.Ledger.VerifyFee(r.Context(), id, user)
	}, models.GenerationStatusVerified)
}

func (js *JobServer) LockFee(w http.ResponseWriter, r *http.Request) {
	js.transition(w, r, func(id, user string) error {
		return js.Ledger.LockFee(r.Context(), id, user)
	}, models.GenerationStatusLocked)
}

func (js *JobServer) CancelFee(w http.ResponseWriter, r *http.Request) {
	js.transition(w, r, func(id, user string) error {
		return js.Ledger.CancelFee(r.Context(), id, user)
	}, models.GenerationStatusCancelled)
}

func (js *JobServer) ReinstateFee(w http.ResponseWriter, r *http.Request) {
	js.transition(w, r, func(id, user string) error {
		return js.Ledger.ReinstateFee(r.Context(), id, user)
	}, models.GenerationStatusDraft)
}

func (js *JobServer) ListStudentFees(w http.ResponseWriter, r *http.Request) {
	fees, err := js.Ledger.ListStudentFees(r.Context(), mux.Vars(r)["student_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

func (js *JobServer) ListStudentCredits(w http.ResponseWriter, r *http.Request) {
	credits, err := js.Ledger.ListStudentCredits(r.Context(), mux.Vars(r)["student_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credits)
}

type createBillRequest struct {
	StudentID    string `json:"student_id"`
	AcademicYear string `json:"academic_year"`
	Term         int    `json:"term"`
	DueDate      string `json:"due_date,omitempty"`
	RecordedBy   string `json:"recorded_by"`
	Items        []struct {
		Description string `json:"description"`
		Amount      string `json:"amount"`
	} `json:"items"`
}

func (js *JobServer) CreateBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Service.Log(ctx).WithField("type", "CreateBillHandler")

	var req createBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WithError(err).Error("failed to decode request")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var dueDate *time.Time
	if req.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			http.Error(w, "Invalid due_date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		dueDate = &parsed
	}

	total := decimal.Zero
	items := make([]*models.BillItem, 0, len(req.Items))
	for _, item := range req.Items {
		amount, err := utility.ParseAmount(item.Amount)
		if err != nil {
			writeError(w, business.ErrInvalidAmount)
			return
		}
		total = total.Add(amount)
		items = append(items, &models.BillItem{Description: item.Description, Amount: amount})
	}

	bill := &models.Bill{
		StudentID:    req.StudentID,
		AcademicYear: req.AcademicYear,
		Term:         req.Term,
		TotalAmount:  total,
		DueDate:      dueDate,
		RecordedBy:   req.RecordedBy,
	}

	created, err := js.Ledger.CreateBill(ctx, bill, items, req.RecordedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (js *JobServer) GetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := js.Ledger.GetBill(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}
