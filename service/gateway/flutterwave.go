package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const NameFlutterwave = "flutterwave"

// Flutterwave implements the Gateway interface against the Flutterwave v3
// standard-payments API.
type Flutterwave struct {
	BaseURL     string
	SecretKey   string
	WebhookHash string
	HTTPClient  *http.Client
}

func NewFlutterwave(baseURL, secretKey, webhookHash string) *Flutterwave {
	return &Flutterwave{
		BaseURL:     baseURL,
		SecretKey:   secretKey,
		WebhookHash: webhookHash,
		HTTPClient:  newHTTPClient(),
	}
}

func (f *Flutterwave) Name() string { return NameFlutterwave }

type flwPaymentsRequest struct {
	TxRef       string            `json:"tx_ref"`
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	RedirectURL string            `json:"redirect_url"`
	Customer    flwCustomer       `json:"customer"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type flwCustomer struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phonenumber,omitempty"`
	Name        string `json:"name,omitempty"`
}

type flwEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type flwPaymentsData struct {
	Link string `json:"link"`
}

type flwTransactionData struct {
	TxRef       string          `json:"tx_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	PaymentType string          `json:"payment_type"`
	CreatedAt   string          `json:"created_at"`
}

func (f *Flutterwave) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	payload := flwPaymentsRequest{
		TxRef:       req.Reference,
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		RedirectURL: req.RedirectURL,
		Customer: flwCustomer{
			Email:       req.Email,
			PhoneNumber: req.PhoneNumber,
		},
		Meta: req.Metadata,
	}

	var env flwEnvelope
	if err := f.post(ctx, "/payments", payload, &env); err != nil {
		return nil, err
	}
	if env.Status != "success" {
		return nil, &Error{Provider: NameFlutterwave, StatusCode: http.StatusOK, Message: env.Message}
	}

	var data flwPaymentsData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("flutterwave: could not parse payments response: %w", err)
	}
	return &ChargeResponse{
		Reference:     req.Reference,
		Authorization: data.Link,
		RawStatus:     env.Status,
	}, nil
}

func (f *Flutterwave) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	path := "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)

	var env flwEnvelope
	if err := f.get(ctx, path, &env); err != nil {
		return nil, err
	}
	if env.Status != "success" {
		return nil, &Error{Provider: NameFlutterwave, StatusCode: http.StatusOK, Message: env.Message}
	}

	var data flwTransactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("flutterwave: could not parse transaction: %w", err)
	}

	paidAt, _ := time.Parse(time.RFC3339, data.CreatedAt)
	return &Transaction{
		Reference: data.TxRef,
		Amount:    data.Amount,
		Currency:  data.Currency,
		Status:    data.Status,
		Channel:   data.PaymentType,
		PaidAt:    paidAt,
		Message:   env.Message,
	}, nil
}

func (f *Flutterwave) Refund(ctx context.Context, reference string, amount decimal.Decimal) error {
	tx, err := f.VerifyTransaction(ctx, reference)
	if err != nil {
		return err
	}
	if !tx.Successful() {
		return &Error{Provider: NameFlutterwave, Message: "transaction not refundable: " + tx.Status}
	}

	payload := map[string]string{"amount": amount.StringFixed(2)}
	var env flwEnvelope
	if err = f.post(ctx, "/transactions/"+url.PathEscape(reference)+"/refund", payload, &env); err != nil {
		return err
	}
	if env.Status != "success" {
		return &Error{Provider: NameFlutterwave, StatusCode: http.StatusOK, Message: env.Message}
	}
	return nil
}

// VerifyWebhookSignature checks the verif-hash header Flutterwave sends with
// every webhook. The body is not part of the scheme.
func (f *Flutterwave) VerifyWebhookSignature(signature string, _ []byte) bool {
	if f.WebhookHash == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(f.WebhookHash))
}

func (f *Flutterwave) post(ctx context.Context, path string, payload any, out *flwEnvelope) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	return f.do(req, out)
}

func (f *Flutterwave) get(ctx context.Context, path string, out *flwEnvelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return f.do(req, out)
}

func (f *Flutterwave) do(req *http.Request, out *flwEnvelope) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.SecretKey)

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return &Error{Provider: NameFlutterwave, Message: err.Error()}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			fmt.Printf("failed to close response body: %v\n", closeErr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &Error{Provider: NameFlutterwave, StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if err = json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("flutterwave: failed to parse response: %w (status: %s, body: %s)",
			err, resp.Status, string(respBody))
	}
	return nil
}
