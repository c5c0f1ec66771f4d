package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edusuite/service-fees/config"
)

// ChargeRequest describes a payment to initiate with a provider. Reference
// is supplied by the caller so the same reference ties the provider
// transaction back to the pending payment row.
type ChargeRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Email       string
	PhoneNumber string
	StudentID   string
	RedirectURL string
	Metadata    map[string]string
}

// ChargeResponse is the provider's answer to an initiation request.
type ChargeResponse struct {
	Reference     string
	Authorization string
	AccessCode    string
	RawStatus     string
}

// Transaction is the provider's authoritative record of a payment, used to
// verify callbacks and webhooks before any money is recorded.
type Transaction struct {
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Status    string
	Channel   string
	PaidAt    time.Time
	Message   string
}

// Successful reports whether the provider settled the transaction.
func (t *Transaction) Successful() bool {
	return t.Status == "success" || t.Status == "successful"
}

// Gateway is the provider abstraction. Implementations translate between the
// ledger's view of a payment and one provider's API.
type Gateway interface {
	Name() string
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
	Refund(ctx context.Context, reference string, amount decimal.Decimal) error
	VerifyWebhookSignature(signature string, body []byte) bool
}

// Error carries the provider's own status and message so failures can be
// surfaced verbatim.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
}

// Retryable reports whether the provider failure is worth retrying.
// Client errors are final; everything else may be transient.
func (e *Error) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

const (
	requestTimeout  = 30 * time.Second
	initiateRetries = 3
	retryBackoff    = 2 * time.Second
)

func newHTTPClient() *http.Client {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   requestTimeout,
	}
}

// NewGateway builds the provider named in the configuration.
func NewGateway(cfg *config.FeesConfig) (Gateway, error) {
	switch cfg.DefaultGateway {
	case NameFlutterwave:
		return NewFlutterwave(cfg.FlutterwaveBaseURL, cfg.FlutterwaveSecretKey, cfg.FlutterwaveWebhookHash), nil
	case NamePaystack:
		return NewPaystack(cfg.PaystackBaseURL, cfg.PaystackSecretKey), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway: %q", cfg.DefaultGateway)
	}
}

// ChargeWithRetry initiates a charge, retrying transient provider failures.
// Only initiation is retried; the caller-supplied reference makes a repeat
// attempt idempotent on the provider side.
func ChargeWithRetry(ctx context.Context, gw Gateway, req *ChargeRequest) (*ChargeResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= initiateRetries; attempt++ {
		resp, err := gw.Charge(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var gwErr *Error
		if errors.As(err, &gwErr) && !gwErr.Retryable() {
			return nil, err
		}
		if attempt == initiateRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return nil, lastErr
}
