package repository

import (
	"context"
	"time"

	"github.com/edusuite/service-fees/service/models"
	"github.com/pitabwire/frame"
)

// AuditRepository appends and reads the financial audit trail. It has no
// update or delete.
type AuditRepository interface {
	Append(ctx context.Context, record *models.AuditRecord) error
	ListByObject(ctx context.Context, modelName, objectID string) ([]*models.AuditRecord, error)
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*models.AuditRecord, error)
}

type auditRepository struct {
	abstractRepository
}

func NewAuditRepository(_ context.Context, service *frame.Service) AuditRepository {
	return &auditRepository{abstractRepository{service: service}}
}

func (repo *auditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	if record.GetID() == "" {
		record.GenID(ctx)
	}
	return repo.writeDB(ctx).Create(record).Error
}

func (repo *auditRepository) ListByObject(ctx context.Context, modelName, objectID string) ([]*models.AuditRecord, error) {
	var records []*models.AuditRecord
	err := repo.readDB(ctx).
		Where("model_name = ? AND object_id = ?", modelName, objectID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (repo *auditRepository) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*models.AuditRecord, error) {
	var records []*models.AuditRecord
	err := repo.readDB(ctx).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
