package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const NamePaystack = "paystack"

// Paystack implements the Gateway interface against the Paystack
// transaction API. Amounts cross the wire in the minor unit.
type Paystack struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

func NewPaystack(baseURL, secretKey string) *Paystack {
	return &Paystack{
		BaseURL:    baseURL,
		SecretKey:  secretKey,
		HTTPClient: newHTTPClient(),
	}
}

func (p *Paystack) Name() string { return NamePaystack }

type paystackInitializeRequest struct {
	Reference   string            `json:"reference"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Email       string            `json:"email"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTransactionData struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Channel   string `json:"channel"`
	PaidAt    string `json:"paid_at"`
	Message   string `json:"gateway_response"`
}

func toMinorUnit(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromMinorUnit(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

func (p *Paystack) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	payload := paystackInitializeRequest{
		Reference:   req.Reference,
		Amount:      toMinorUnit(req.Amount),
		Currency:    req.Currency,
		Email:       req.Email,
		CallbackURL: req.RedirectURL,
		Metadata:    req.Metadata,
	}

	var env paystackEnvelope
	if err := p.post(ctx, "/transaction/initialize", payload, &env); err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, &Error{Provider: NamePaystack, StatusCode: http.StatusOK, Message: env.Message}
	}

	var data paystackInitializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("paystack: could not parse initialize response: %w", err)
	}
	return &ChargeResponse{
		Reference:     data.Reference,
		Authorization: data.AuthorizationURL,
		AccessCode:    data.AccessCode,
		RawStatus:     env.Message,
	}, nil
}

func (p *Paystack) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var env paystackEnvelope
	if err := p.get(ctx, "/transaction/verify/"+url.PathEscape(reference), &env); err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, &Error{Provider: NamePaystack, StatusCode: http.StatusOK, Message: env.Message}
	}

	var data paystackTransactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("paystack: could not parse transaction: %w", err)
	}

	paidAt, _ := time.Parse(time.RFC3339, data.PaidAt)
	return &Transaction{
		Reference: data.Reference,
		Amount:    fromMinorUnit(data.Amount),
		Currency:  data.Currency,
		Status:    data.Status,
		Channel:   data.Channel,
		PaidAt:    paidAt,
		Message:   data.Message,
	}, nil
}

func (p *Paystack) Refund(ctx context.Context, reference string, amount decimal.Decimal) error {
	payload := map[string]any{
		"transaction": reference,
		"amount":      toMinorUnit(amount),
	}
	var env paystackEnvelope
	if err := p.post(ctx, "/refund", payload, &env); err != nil {
		return err
	}
	if !env.Status {
		return &Error{Provider: NamePaystack, StatusCode: http.StatusOK, Message: env.Message}
	}
	return nil
}

// VerifyWebhookSignature checks the x-paystack-signature header, an
// HMAC-SHA512 of the raw body keyed with the secret key.
func (p *Paystack) VerifyWebhookSignature(signature string, body []byte) bool {
	if p.SecretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.SecretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (p *Paystack) post(ctx context.Context, path string, payload any, out *paystackEnvelope) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	return p.do(req, out)
}

func (p *Paystack) get(ctx context.Context, path string, out *paystackEnvelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return p.do(req, out)
}

func (p *Paystack) do(req *http.Request, out *paystackEnvelope) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.SecretKey)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return &Error{Provider: NamePaystack, Message: err.Error()}
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
		return &Error{Provider: NamePaystack, StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if err = json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("paystack: failed to parse response: %w (status: %s, body: %s)",
			err, resp.Status, string(respBody))
	}
	return nil
}
