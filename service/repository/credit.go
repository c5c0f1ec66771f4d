package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/edusuite/service-fees/service/models"
	"github.com/pitabwire/frame"
)

type CreditRepository interface {
	Save(ctx context.Context, credit *models.Credit) error
	// GetOpenBySourceFee returns the unused credit originating from a fee,
	// or nil when none exists.
	GetOpenBySourceFee(ctx context.Context, feeID string) (*models.Credit, error)
	GetOpenBySourceBill(ctx context.Context, billID string) (*models.Credit, error)
	ListByStudent(ctx context.Context, studentID string) ([]*models.Credit, error)
	Delete(ctx context.Context, id string) error
}

type creditRepository struct {
	abstractRepository
}

func NewCreditRepository(_ context.Context, service *frame.Service) CreditRepository {
	return &creditRepository{abstractRepository{service: service}}
}

func (repo *creditRepository) Save(ctx context.Context, credit *models.Credit) error {
	return repo.writeDB(ctx).Save(credit).Error
}

func (repo *creditRepository) GetOpenBySourceFee(ctx context.Context, feeID string) (*models.Credit, error) {
	credit := models.Credit{}
	err := repo.readDB(ctx).
		First(&credit, "source_fee_id = ? AND is_used = ?", feeID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

func (repo *creditRepository) GetOpenBySourceBill(ctx context.Context, billID string) (*models.Credit, error) {
	credit := models.Credit{}
	err := repo.readDB(ctx).
		First(&credit, "source_bill_id = ? AND is_used = ?", billID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

func (repo *creditRepository) Delete(ctx context.Context, id string) error {
	return repo.writeDB(ctx).Delete(&models.Credit{}, "id = ?", id).Error
}

func (repo *creditRepository) ListByStudent(ctx context.Context, studentID string) ([]*models.Credit, error) {
	var credits []*models.Credit
	err := repo.readDB(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&credits).Error
	if err != nil {
		return nil, err
	}
	return credits, nil
}
