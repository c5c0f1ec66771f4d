package gateway

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of the Gateway interface.
type MockGateway struct {
	mock.Mock
}

// Name mocks the Name method.
func (m *MockGateway) Name() string {
	args := m.Called()
	return args.String(0)
}

// Charge mocks the Charge method.
func (m *MockGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ChargeResponse), args.Error(1)
}

// VerifyTransaction mocks the VerifyTransaction method.
func (m *MockGateway) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

// Refund mocks the Refund method.
func (m *MockGateway) Refund(ctx context.Context, reference string, amount decimal.Decimal) error {
	args := m.Called(ctx, reference, amount)
	return args.Error(0)
}

// VerifyWebhookSignature mocks the VerifyWebhookSignature method.
func (m *MockGateway) VerifyWebhookSignature(signature string, body []byte) bool {
	args := m.Called(signature, body)
	return args.Bool(0)
}
