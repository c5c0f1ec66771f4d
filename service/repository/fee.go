package repository

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/edusuite/service-fees/service/models"
	"github.com/pitabwire/frame"
)

type FeeRepository interface {
	GetByID(ctx context.Context, id string) (*models.Fee, error)
	// GetForUpdate takes a row lock on the fee; callers must be inside a
	// TxManager transaction for the lock to have any effect.
	GetForUpdate(ctx context.Context, id string) (*models.Fee, error)
	Save(ctx context.Context, fee *models.Fee) error
	ListByStudent(ctx context.Context, studentID string) ([]*models.Fee, error)
}

type feeRepository struct {
	abstractRepository
}

func NewFeeRepository(_ context.Context, service *frame.Service) FeeRepository {
	return &feeRepository{abstractRepository{service: service}}
}

func (repo *feeRepository) GetByID(ctx context.Context, id string) (*models.Fee, error) {
	fee := models.Fee{}
	if err := repo.readDB(ctx).First(&fee, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &fee, nil
}

func (repo *feeRepository) GetForUpdate(ctx context.Context, id string) (*models.Fee, error) {
	fee := models.Fee{}
	err := repo.writeDB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&fee, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &fee, nil
}

func (repo *feeRepository) Save(ctx context.Context, fee *models.Fee) error {
	return repo.writeDB(ctx).Save(fee).Error
}

func (repo *feeRepository) ListByStudent(ctx context.Context, studentID string) ([]*models.Fee, error) {
	var fees []*models.Fee
	err := repo.readDB(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&fees).Error
	if err != nil {
		return nil, err
	}
	return fees, nil
}
