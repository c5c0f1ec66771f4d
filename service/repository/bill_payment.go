package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edusuite/service-fees/service/models"
	"github.com/pitabwire/frame"
)

type BillPaymentRepository interface {
	GetByID(ctx context.Context, id string) (*models.BillPayment, error)
	GetByReference(ctx context.Context, reference string) (*models.BillPayment, error)
	Save(ctx context.Context, payment *models.BillPayment) error
	Delete(ctx context.Context, id string) error
	ListByBill(ctx context.Context, billID string) ([]*models.BillPayment, error)
	SumConfirmedByBill(ctx context.Context, billID string) (decimal.Decimal, error)
	ListByDate(ctx context.Context, date time.Time) ([]*models.BillPayment, error)
	ListByPeriod(ctx context.Context, from, to time.Time) ([]*models.BillPayment, error)
}

type billPaymentRepository struct {
	abstractRepository
}

func NewBillPaymentRepository(_ context.Context, service *frame.Service) BillPaymentRepository {
	return &billPaymentRepository{abstractRepository{service: service}}
}

func (repo *billPaymentRepository) GetByID(ctx context.Context, id string) (*models.BillPayment, error) {
	payment := models.BillPayment{}
	if err := repo.readDB(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (repo *billPaymentRepository) GetByReference(ctx context.Context, reference string) (*models.BillPayment, error) {
	payment := models.BillPayment{}
	if err := repo.readDB(ctx).First(&payment, "reference = ?", reference).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (repo *billPaymentRepository) Save(ctx context.Context, payment *models.BillPayment) error {
	return repo.writeDB(ctx).Save(payment).Error
}

func (repo *billPaymentRepository) Delete(ctx context.Context, id string) error {
	return repo.writeDB(ctx).Delete(&models.BillPayment{}, "id = ?", id).Error
}

func (repo *billPaymentRepository) ListByBill(ctx context.Context, billID string) ([]*models.BillPayment, error) {
	var payments []*models.BillPayment
	err := repo.readDB(ctx).
		Where("bill_id = ?", billID).
		Order("payment_date DESC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (repo *billPaymentRepository) SumConfirmedByBill(ctx context.Context, billID string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := repo.readDB(ctx).
		Model(&models.BillPayment{}).
		Where("bill_id = ? AND is_confirmed = ?", billID, true).
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

func (repo *billPaymentRepository) ListByDate(ctx context.Context, date time.Time) ([]*models.BillPayment, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return repo.listBetween(ctx, start, start.AddDate(0, 0, 1))
}

func (repo *billPaymentRepository) ListByPeriod(ctx context.Context, from, to time.Time) ([]*models.BillPayment, error) {
	return repo.listBetween(ctx, from, to)
}

func (repo *billPaymentRepository) listBetween(ctx context.Context, from, to time.Time) ([]*models.BillPayment, error) {
	var payments []*models.BillPayment
	err := repo.readDB(ctx).
		Where("payment_date >= ? AND payment_date < ?", from, to).
		Order("payment_date ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
