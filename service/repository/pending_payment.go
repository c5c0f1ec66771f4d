package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/edusuite/service-fees/service/models"
	"github.com/pitabwire/frame"
)

type PendingPaymentRepository interface {
	Save(ctx context.Context, pending *models.PendingPayment) error
	GetByReference(ctx context.Context, reference string) (*models.PendingPayment, error)
	// GetOpenByTarget returns the pending attempt for a target, or nil.
	GetOpenByTarget(ctx context.Context, targetType, targetID string) (*models.PendingPayment, error)
	// CompleteIfPending flips pending -> completed as a single conditional
	// update. It reports false when the row was no longer pending, which is
	// how racing confirmations lose.
	CompleteIfPending(ctx context.Context, reference string) (bool, error)
	MarkFailed(ctx context.Context, reference string) error
	MarkCancelled(ctx context.Context, reference string) error
}

type pendingPaymentRepository struct {
	abstractRepository
}

func NewPendingPaymentRepository(_ context.Context, service *frame.Service) PendingPaymentRepository {
	return &pendingPaymentRepository{abstractRepository{service: service}}
}

func (repo *pendingPaymentRepository) Save(ctx context.Context, pending *models.PendingPayment) error {
	return repo.writeDB(ctx).Save(pending).Error
}

func (repo *pendingPaymentRepository) GetByReference(ctx context.Context, reference string) (*models.PendingPayment, error) {
	pending := models.PendingPayment{}
	if err := repo.readDB(ctx).First(&pending, "reference = ?", reference).Error; err != nil {
		return nil, err
	}
	return &pending, nil
}

func (repo *pendingPaymentRepository) GetOpenByTarget(ctx context.Context, targetType, targetID string) (*models.PendingPayment, error) {
	pending := models.PendingPayment{}
	err := repo.readDB(ctx).
		First(&pending, "target_type = ? AND target_id = ? AND status = ?",
			targetType, targetID, models.PendingStatusPending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

func (repo *pendingPaymentRepository) CompleteIfPending(ctx context.Context, reference string) (bool, error) {
	now := time.Now()
	result := repo.writeDB(ctx).
		Model(&models.PendingPayment{}).
		Where("reference = ? AND status = ?", reference, models.PendingStatusPending).
		Updates(map[string]any{
			"status":       models.PendingStatusCompleted,
			"completed_at": &now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (repo *pendingPaymentRepository) MarkFailed(ctx context.Context, reference string) error {
	return repo.setStatus(ctx, reference, models.PendingStatusFailed)
}

func (repo *pendingPaymentRepository) MarkCancelled(ctx context.Context, reference string) error {
	return repo.setStatus(ctx, reference, models.PendingStatusCancelled)
}

func (repo *pendingPaymentRepository) setStatus(ctx context.Context, reference, status string) error {
	return repo.writeDB(ctx).
		Model(&models.PendingPayment{}).
		Where("reference = ? AND status = ?", reference, models.PendingStatusPending).
		Update("status", status).Error
}
