package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/edusuite/service-fees/service/business"
	"github.com/edusuite/service-fees/service/utility"
)

type recordPaymentRequest struct {
	Amount      string `json:"amount"`
	PaymentMode string `json:"payment_mode"`
	PaymentDate string `json:"payment_date"`
	Reference   string `json:"reference,omitempty"`
	RecordedBy  string `json:"recorded_by"`
	Notes       string `json:"notes,omitempty"`
}

func (req *recordPaymentRequest) toBusiness(targetID string) (business.RecordPaymentRequest, error) {
	amount, err := utility.ParseAmount(req.Amount)
	if err != nil {
		return business.RecordPaymentRequest{}, business.ErrInvalidAmount
	}
	date, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		return business.RecordPaymentRequest{}, business.ErrInvalidDate
	}
	return business.RecordPaymentRequest{
		TargetID:    targetID,
		Amount:      amount,
		PaymentMode: req.PaymentMode,
		PaymentDate: date,
		Reference:   req.Reference,
		RecordedBy:  req.RecordedBy,
		Notes:       req.Notes,
	}, nil
}

func (js *JobServer) RecordFeePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Service.Log(ctx).WithField("type", "RecordFeePaymentHandler")

	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WithError(err).Error("failed to decode request")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	bizReq, err := req.toBusiness(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	payment, err := js.Payments.RecordFeePayment(ctx, bizReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (js *JobServer) RecordBillPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Service.Log(ctx).WithField("type", "RecordBillPaymentHandler")

	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WithError(err).Error("failed to decode request")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	bizReq, err := req.toBusiness(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	payment, err := js.Payments.RecordBillPayment(ctx, bizReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

type voidRequest struct {
	User string `json:"user"`
}

func (js *JobServer) VoidFeePayment(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := js.Payments.VoidFeePayment(r.Context(), mux.Vars(r)["id"], req.User); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "voided"})
}

func (js *JobServer) VoidBillPayment(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := js.Payments.VoidBillPayment(r.Context(), mux.Vars(r)["id"], req.User); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "voided"})
}

func (js *JobServer) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := js.Payments.ConfirmManualPayment(r.Context(), mux.Vars(r)["id"], req.User); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

type initiatePaymentRequest struct {
	TargetType  string `json:"target_type"`
	TargetID    string `json:"target_id"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
	InitiatedBy string `json:"initiated_by"`
}

func (js *JobServer) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Service.Log(ctx).WithField("type", "InitiatePaymentHandler")

	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WithError(err).Error("failed to decode request")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := js.Orchestration.InitiatePayment(ctx, business.InitiatePaymentRequest{
		TargetType:  req.TargetType,
		TargetID:    req.TargetID,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		InitiatedBy: req.InitiatedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PaymentCallback lands the payer's redirect after a gateway checkout.
// The reference from the query string is verified with the gateway before
// anything is recorded.
func (js *JobServer) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Service.Log(ctx).WithField("type", "PaymentCallbackHandler")

	reference := r.URL.Query().Get("reference")
	if reference == "" {
		reference = r.URL.Query().Get("tx_ref")
	}
	if reference == "" {
		http.Error(w, "Missing payment reference", http.StatusBadRequest)
		return
	}

	logger = logger.WithField("reference", reference)

	pending, err := js.Orchestration.HandleCallback(ctx, reference)
	if err != nil {
		logger.WithError(err).Warn("callback confirmation failed")
		writeError(w, err)
		return
	}

	logger.Info("callback processed successfully")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    pending.Status,
		"reference": pending.Reference,
	})
}

// PaymentWebhook receives server-to-server notifications. The signature
// header is provider-specific; both providers are accepted here and the
// gateway decides which scheme applies.
func (js *JobServer) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := js.Service.Log(ctx).WithField("type", "PaymentWebhookHandler")

	body := http.MaxBytesReader(w, r.Body, 1<<20)
	payload, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("verif-hash")
	if signature == "" {
		signature = r.Header.Get("x-paystack-signature")
	}

	if err = js.Orchestration.HandleWebhook(ctx, signature, payload); err != nil {
		if errors.Is(err, business.ErrInvalidSignature) {
			logger.Warn("webhook signature verification failed")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
		logger.WithError(err).Warn("webhook processing failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (js *JobServer) GetPendingPayment(w http.ResponseWriter, r *http.Request) {
	pending, err := js.Orchestration.HandleCallback(r.Context(), mux.Vars(r)["reference"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    pending.Status,
		"reference": pending.Reference,
		"amount":    pending.Amount.StringFixed(2),
	})
}
