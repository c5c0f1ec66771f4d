package business

import (
	"context"
	"time"

	"github.com/edusuite/service-fees/service/models"
	"github.com/edusuite/service-fees/service/repository"
	"github.com/pitabwire/frame"
)

// AuditBusiness is the read side of the audit trail.
type AuditBusiness interface {
	ObjectHistory(ctx context.Context, modelName, objectID string) ([]*models.AuditRecord, error)
	UserActivity(ctx context.Context, userID string, from, to time.Time) ([]*models.AuditRecord, error)
}

func NewAuditBusiness(_ context.Context, service *frame.Service, repos *repository.Repositories) AuditBusiness {
	return &auditBusiness{service: service, repos: repos}
}

type auditBusiness struct {
	service *frame.Service
	repos   *repository.Repositories
}

func (ab *auditBusiness) ObjectHistory(ctx context.Context, modelName, objectID string) ([]*models.AuditRecord, error) {
	return ab.repos.Audits.ListByObject(ctx, modelName, objectID)
}

func (ab *auditBusiness) UserActivity(ctx context.Context, userID string, from, to time.Time) ([]*models.AuditRecord, error) {
	return ab.repos.Audits.ListByUser(ctx, userID, from, to)
}
