package repository

import (
	"context"

	"github.com/edusuite/service-fees/service/models"
	"github.com/pitabwire/frame"
	"gorm.io/gorm/clause"
)

type BankStatementRepository interface {
	// Save records a month's closing balance, replacing any earlier figure
	// for the same month.
	Save(ctx context.Context, statement *models.BankStatement) error
	GetByMonth(ctx context.Context, year, month int) (*models.BankStatement, error)
}

type bankStatementRepository struct {
	abstractRepository
}

func NewBankStatementRepository(_ context.Context, service *frame.Service) BankStatementRepository {
	return &bankStatementRepository{abstractRepository{service: service}}
}

func (repo *bankStatementRepository) Save(ctx context.Context, statement *models.BankStatement) error {
	return repo.writeDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "year"}, {Name: "month"}},
		UpdateAll: true,
	}).Create(statement).Error
}

func (repo *bankStatementRepository) GetByMonth(ctx context.Context, year, month int) (*models.BankStatement, error) {
	statement := models.BankStatement{}
	if err := repo.readDB(ctx).First(&statement, "year = ? AND month = ?", year, month).Error; err != nil {
		return nil, err
	}
	return &statement, nil
}
