package business

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edusuite/service-fees/config"
	"github.com/edusuite/service-fees/service/gateway"
	"github.com/edusuite/service-fees/service/models"
	"github.com/edusuite/service-fees/service/repository"
	"github.com/pitabwire/frame"
)

// OrchestrationBusiness drives online payments end to end: initiation with
// the gateway, then confirmation from whichever of callback or webhook
// arrives first. Confirmation is idempotent; the pending row's conditional
// status flip decides the single winner.
type OrchestrationBusiness interface {
	InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error)
	HandleCallback(ctx context.Context, reference string) (*models.PendingPayment, error)
	HandleWebhook(ctx context.Context, signature string, body []byte) error
	ExpireStalePending(ctx context.Context, targetType, targetID string) error
}

type InitiatePaymentRequest struct {
	TargetType  string
	TargetID    string
	Email       string
	PhoneNumber string
	InitiatedBy string
}

type InitiatePaymentResponse struct {
	Reference        string
	AuthorizationURL string
	Amount           string
	Currency         string
}

func NewOrchestrationBusiness(
	_ context.Context,
	service *frame.Service,
	cfg *config.FeesConfig,
	repos *repository.Repositories,
	gw gateway.Gateway,
	payments PaymentBusiness,
) OrchestrationBusiness {
	return &orchestrationBusiness{
		service:  service,
		cfg:      cfg,
		repos:    repos,
		gateway:  gw,
		payments: payments,
	}
}

type orchestrationBusiness struct {
	service  *frame.Service
	cfg      *config.FeesConfig
	repos    *repository.Repositories
	gateway  gateway.Gateway
	payments PaymentBusiness
}

const metadataAuthorizationURL = "authorization_url"

func (ob *orchestrationBusiness) InitiatePayment(
	ctx context.Context, req InitiatePaymentRequest,
) (*InitiatePaymentResponse, error) {
	logger := ob.service.Log(ctx).
		WithField("target_type", req.TargetType).
		WithField("target_id", req.TargetID)

	outstanding, err := ob.outstandingBalance(ctx, req.TargetType, req.TargetID)
	if err != nil {
		return nil, err
	}
	if !outstanding.GreaterThan(decimal.Zero) {
		return nil, ErrNoBalance
	}

	open, err := ob.repos.Pending.GetOpenByTarget(ctx, req.TargetType, req.TargetID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		age := time.Since(open.CreatedAt)
		if age < time.Duration(ob.cfg.PendingPaymentTimeoutMin)*time.Minute {
			// An attempt is already in flight; hand back the same
			// authorization so the payer can resume it.
			authURL, _ := open.Metadata[metadataAuthorizationURL].(string)
			return &InitiatePaymentResponse{
				Reference:        open.Reference,
				AuthorizationURL: authURL,
				Amount:           open.Amount.StringFixed(2),
				Currency:         open.Currency,
			}, nil
		}
		if err = ob.repos.Pending.MarkCancelled(ctx, open.Reference); err != nil {
			return nil, err
		}
		logger.WithField("reference", open.Reference).Info("superseded stale pending payment")
	}

	pending := &models.PendingPayment{
		Reference:   generatePaymentReference(),
		TargetType:  req.TargetType,
		TargetID:    req.TargetID,
		Amount:      outstanding,
		Currency:    ob.cfg.Currency,
		Gateway:     ob.gateway.Name(),
		Status:      models.PendingStatusPending,
		InitiatedBy: req.InitiatedBy,
	}
	pending.GenID(ctx)
	if err = ob.repos.Pending.Save(ctx, pending); err != nil {
		return nil, err
	}

	chargeResp, err := gateway.ChargeWithRetry(ctx, ob.gateway, &gateway.ChargeRequest{
		Reference:   pending.Reference,
		Amount:      outstanding,
		Currency:    ob.cfg.Currency,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		RedirectURL: ob.cfg.PaymentRedirectURL,
		Metadata: map[string]string{
			"target_type": req.TargetType,
			"target_id":   req.TargetID,
		},
	})
	if err != nil {
		if failErr := ob.repos.Pending.MarkFailed(ctx, pending.Reference); failErr != nil {
			logger.WithError(failErr).Error("could not mark pending payment failed")
		}
		logger.WithError(err).Warn("gateway charge failed")
		return nil, err
	}

	pending.Metadata = datatypes.JSONMap{metadataAuthorizationURL: chargeResp.Authorization}
	if err = ob.repos.Pending.Save(ctx, pending); err != nil {
		return nil, err
	}

	err = appendAudit(ctx, ob.repos.Audits, AuditActionInitiated, "PendingPayment",
		pending.GetID(), req.InitiatedBy, nil, pending,
		fmt.Sprintf("online payment of %s initiated via %s", outstanding.StringFixed(2), ob.gateway.Name()))
	if err != nil {
		return nil, err
	}

	return &InitiatePaymentResponse{
		Reference:        pending.Reference,
		AuthorizationURL: chargeResp.Authorization,
		Amount:           outstanding.StringFixed(2),
		Currency:         ob.cfg.Currency,
	}, nil
}

// HandleCallback processes the payer's browser redirect. A callback is a
// hint, never proof; the gateway is always asked for the authoritative
// transaction before anything is recorded.
func (ob *orchestrationBusiness) HandleCallback(ctx context.Context, reference string) (*models.PendingPayment, error) {
	return ob.confirmPayment(ctx, reference)
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		TxRef     string `json:"tx_ref"`
		Status    string `json:"status"`
	} `json:"data"`
}

// HandleWebhook processes a server-to-server notification. Unknown
// references are acknowledged without error so the provider stops
// redelivering events that are not ours.
func (ob *orchestrationBusiness) HandleWebhook(ctx context.Context, signature string, body []byte) error {
	if !ob.gateway.VerifyWebhookSignature(signature, body) {
		return ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return &ValidationError{Code: "invalid_payload", Message: "webhook payload is not valid json"}
	}

	reference := event.Data.Reference
	if reference == "" {
		reference = event.Data.TxRef
	}
	if reference == "" {
		return &ValidationError{Code: "invalid_payload", Message: "webhook payload carries no reference"}
	}

	_, err := ob.confirmPayment(ctx, reference)
	if errors.Is(err, ErrTargetNotFound) {
		ob.service.Log(ctx).WithField("reference", reference).Info("ignoring webhook for unknown reference")
		return nil
	}
	return err
}

func (ob *orchestrationBusiness) confirmPayment(ctx context.Context, reference string) (*models.PendingPayment, error) {
	logger := ob.service.Log(ctx).WithField("reference", reference)

	pending, err := ob.repos.Pending.GetByReference(ctx, reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTargetNotFound
	}
	if err != nil {
		return nil, err
	}

	switch pending.Status {
	case models.PendingStatusCompleted:
		return pending, nil
	case models.PendingStatusFailed, models.PendingStatusCancelled:
		return nil, &ConflictError{Code: "attempt_closed",
			Message: fmt.Sprintf("payment attempt is %s", pending.Status)}
	}

	tx, err := ob.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		logger.WithError(err).Warn("gateway verification failed")
		return nil, err
	}
	if !tx.Successful() {
		if err = ob.repos.Pending.MarkFailed(ctx, reference); err != nil {
			return nil, err
		}
		if err = appendAudit(ctx, ob.repos.Audits, AuditActionFailed, "PendingPayment",
			pending.GetID(), "", pending, nil, tx.Message); err != nil {
			return nil, err
		}
		return nil, &ConflictError{Code: "payment_failed", Message: tx.Message}
	}
	if !tx.Amount.Equal(pending.Amount) {
		return nil, &IntegrityError{Message: fmt.Sprintf(
			"gateway settled %s for attempt %s expecting %s",
			tx.Amount.String(), reference, pending.Amount.String())}
	}

	paymentDate := tx.PaidAt
	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}

	// The status flip and the recording commit together. When the
	// recording cannot go through, the flip rolls back with it and a
	// redelivered confirmation retries the whole step.
	err = ob.repos.Tx.InTransaction(ctx, func(ctx context.Context) error {
		won, txErr := ob.repos.Pending.CompleteIfPending(ctx, reference)
		if txErr != nil {
			return txErr
		}
		if !won {
			// A concurrent confirmation got there first.
			return nil
		}

		recordReq := RecordPaymentRequest{
			TargetID:    pending.TargetID,
			Amount:      pending.Amount,
			PaymentMode: models.PaymentModeOnline,
			PaymentDate: paymentDate,
			Reference:   reference,
			RecordedBy:  "gateway:" + pending.Gateway,
			Notes:       tx.Channel,
		}
		if pending.TargetType == models.TargetTypeBill {
			_, txErr = ob.payments.RecordBillPayment(ctx, recordReq)
		} else {
			_, txErr = ob.payments.RecordFeePayment(ctx, recordReq)
		}
		if txErr != nil {
			return txErr
		}

		return appendAudit(ctx, ob.repos.Audits, AuditActionCompleted, "PendingPayment",
			pending.GetID(), "", nil, pending,
			fmt.Sprintf("online payment of %s confirmed via %s", pending.Amount.StringFixed(2), pending.Gateway))
	})
	if err != nil {
		logger.WithError(err).Error("verified payment could not be recorded")
		return nil, err
	}

	return ob.repos.Pending.GetByReference(ctx, reference)
}

// ExpireStalePending cancels a target's open attempt once it has outlived
// the configured window.
func (ob *orchestrationBusiness) ExpireStalePending(ctx context.Context, targetType, targetID string) error {
	open, err := ob.repos.Pending.GetOpenByTarget(ctx, targetType, targetID)
	if err != nil || open == nil {
		return err
	}
	if time.Since(open.CreatedAt) < time.Duration(ob.cfg.PendingPaymentTimeoutMin)*time.Minute {
		return nil
	}
	return ob.repos.Pending.MarkCancelled(ctx, open.Reference)
}

func (ob *orchestrationBusiness) outstandingBalance(ctx context.Context, targetType, targetID string) (amount decimal.Decimal, err error) {
	switch targetType {
	case models.TargetTypeBill:
		bill, billErr := ob.repos.Bills.GetByID(ctx, targetID)
		if errors.Is(billErr, gorm.ErrRecordNotFound) {
			return amount, ErrTargetNotFound
		}
		if billErr != nil {
			return amount, billErr
		}
		if !bill.CanAcceptPayments() {
			return amount, ErrTargetLocked
		}
		return bill.Balance, nil
	case models.TargetTypeFee:
		fee, feeErr := ob.repos.Fees.GetByID(ctx, targetID)
		if errors.Is(feeErr, gorm.ErrRecordNotFound) {
			return amount, ErrTargetNotFound
		}
		if feeErr != nil {
			return amount, feeErr
		}
		if !fee.CanAcceptPayments() {
			return amount, ErrTargetLocked
		}
		return fee.Balance, nil
	default:
		return amount, &ValidationError{Code: "invalid_target_type",
			Message: fmt.Sprintf("unknown target type %q", targetType)}
	}
}

// generatePaymentReference creates a globally unique gateway reference in
// the form PAY-20060102150405-a1b2c3d4.
func generatePaymentReference() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("PAY-%s-%s", time.Now().Format("20060102150405"), hex.EncodeToString(buf))
}
