package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edusuite/service-fees/service/models"
	"github.com/pitabwire/frame"
)

type PaymentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	Save(ctx context.Context, payment *models.Payment) error
	Delete(ctx context.Context, id string) error
	ListByFee(ctx context.Context, feeID string) ([]*models.Payment, error)
	// SumConfirmedByFee totals the confirmed payment set for a fee. The
	// recording engine derives amount_paid from this, never incrementally.
	SumConfirmedByFee(ctx context.Context, feeID string) (decimal.Decimal, error)
	ListByDate(ctx context.Context, date time.Time) ([]*models.Payment, error)
	ListByPeriod(ctx context.Context, from, to time.Time) ([]*models.Payment, error)
}

type paymentRepository struct {
	abstractRepository
}

func NewPaymentRepository(_ context.Context, service *frame.Service) PaymentRepository {
	return &paymentRepository{abstractRepository{service: service}}
}

func (repo *paymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	payment := models.Payment{}
	if err := repo.readDB(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (repo *paymentRepository) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	payment := models.Payment{}
	if err := repo.readDB(ctx).First(&payment, "reference = ?", reference).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (repo *paymentRepository) Save(ctx context.Context, payment *models.Payment) error {
	return repo.writeDB(ctx).Save(payment).Error
}

func (repo *paymentRepository) Delete(ctx context.Context, id string) error {
	return repo.writeDB(ctx).Delete(&models.Payment{}, "id = ?", id).Error
}

func (repo *paymentRepository) ListByFee(ctx context.Context, feeID string) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := repo.readDB(ctx).
		Where("fee_id = ?", feeID).
		Order("payment_date DESC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (repo *paymentRepository) SumConfirmedByFee(ctx context.Context, feeID string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := repo.readDB(ctx).
		Model(&models.Payment{}).
		Where("fee_id = ? AND is_confirmed = ?", feeID, true).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (repo *paymentRepository) ListByDate(ctx context.Context, date time.Time) ([]*models.Payment, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return repo.listBetween(ctx, start, start.AddDate(0, 0, 1))
}

func (repo *paymentRepository) ListByPeriod(ctx context.Context, from, to time.Time) ([]*models.Payment, error) {
	return repo.listBetween(ctx, from, to)
}

func (repo *paymentRepository) listBetween(ctx context.Context, from, to time.Time) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := repo.readDB(ctx).
		Where("payment_date >= ? AND payment_date < ?", from, to).
		Order("payment_date ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
