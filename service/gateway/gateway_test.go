package gateway

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edusuite/service-fees/config"
)

func TestErrorRetryable(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{name: "network failure", status: 0, retryable: true},
		{name: "bad request", status: http.StatusBadRequest, retryable: false},
		{name: "unauthorized", status: http.StatusUnauthorized, retryable: false},
		{name: "server error", status: http.StatusInternalServerError, retryable: true},
		{name: "bad gateway", status: http.StatusBadGateway, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &Error{Provider: NamePaystack, StatusCode: tt.status, Message: "boom"}
			assert.Equal(t, tt.retryable, err.Retryable())
		})
	}
}

func TestChargeWithRetryRecoversFromTransientFailure(t *testing.T) {
	gw := &MockGateway{}
	req := &ChargeRequest{Reference: "PAY-retry", Amount: decimal.NewFromInt(100), Currency: "GHS"}

	gw.On("Charge", mock.Anything, req).
		Return(nil, &Error{Provider: NamePaystack, StatusCode: http.StatusServiceUnavailable, Message: "try again"}).
		Once()
	gw.On("Charge", mock.Anything, req).
		Return(&ChargeResponse{Reference: "PAY-retry", Authorization: "https://checkout.example/abc"}, nil).
		Once()

	resp, err := ChargeWithRetry(t.Context(), gw, req)
	require.NoError(t, err)
	assert.Equal(t, "PAY-retry", resp.Reference)
	gw.AssertNumberOfCalls(t, "Charge", 2)
}

func TestChargeWithRetryStopsOnClientError(t *testing.T) {
	gw := &MockGateway{}
	req := &ChargeRequest{Reference: "PAY-bad", Amount: decimal.NewFromInt(100), Currency: "GHS"}

	gw.On("Charge", mock.Anything, req).
		Return(nil, &Error{Provider: NamePaystack, StatusCode: http.StatusBadRequest, Message: "invalid email"})

	resp, err := ChargeWithRetry(t.Context(), gw, req)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "invalid email")
	gw.AssertNumberOfCalls(t, "Charge", 1)
}

func TestNewGateway(t *testing.T) {
	flw, err := NewGateway(&config.FeesConfig{DefaultGateway: NameFlutterwave})
	require.NoError(t, err)
	assert.Equal(t, NameFlutterwave, flw.Name())

	ps, err := NewGateway(&config.FeesConfig{DefaultGateway: NamePaystack})
	require.NoError(t, err)
	assert.Equal(t, NamePaystack, ps.Name())

	_, err = NewGateway(&config.FeesConfig{DefaultGateway: "stripe"})
	require.Error(t, err)
}
