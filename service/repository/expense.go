package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edusuite/service-fees/service/models"
	"github.com/pitabwire/frame"
)

type ExpenseRepository interface {
	Save(ctx context.Context, expense *models.Expense) error
	SumByPeriod(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

type expenseRepository struct {
	abstractRepository
}

func NewExpenseRepository(_ context.Context, service *frame.Service) ExpenseRepository {
	return &expenseRepository{abstractRepository{service: service}}
}

func (repo *expenseRepository) Save(ctx context.Context, expense *models.Expense) error {
	return repo.writeDB(ctx).Save(expense).Error
}

func (repo *expenseRepository) SumByPeriod(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := repo.readDB(ctx).
		Model(&models.Expense{}).
		Where("date >= ? AND date < ?", from, to).
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
