package events

import (
	"context"
	"errors"

	"github.com/edusuite/service-fees/service/models"
	"github.com/pitabwire/frame"
)

// AuditSave persists audit records emitted by business flows that run
// outside a ledger transaction, such as reconciliation jobs.
type AuditSave struct {
	Service *frame.Service
}

func (event *AuditSave) Name() string {
	return "audit.save"
}

func (event *AuditSave) PayloadType() any {
	return &models.AuditRecord{}
}

func (event *AuditSave) Validate(_ context.Context, payload any) error {
	record, ok := payload.(*models.AuditRecord)
	if !ok {
		return errors.New(" payload is not of type models.AuditRecord")
	}

	if record.Action == "" {
		return errors.New(" audit record action should be set ")
	}

	return nil
}

func (event *AuditSave) Execute(ctx context.Context, payload any) error {
	record := payload.(*models.AuditRecord)

	logger := event.Service.Log(ctx).WithField("type", event.Name())
	logger.WithField("payload", record).Debug("handling event")

	if record.GetID() == "" {
		record.GenID(ctx)
	}

	// Append only. Replays of the same record id are ignored rather than
	// rewritten.
	result := event.Service.DB(ctx, false).
		Where("id = ?", record.GetID()).
		FirstOrCreate(record)

	err := result.Error
	if err != nil {
		logger.WithError(err).Warn("could not save to db")
		return err
	}
	logger.WithField("rows affected", result.RowsAffected).Debug("successfully saved record to db")
	return nil
}

// Record satisfies the reconciliation audit recorder by emitting through
// the service's event bus.
func (event *AuditSave) Record(ctx context.Context, record *models.AuditRecord) error {
	return event.Service.Emit(ctx, event.Name(), record)
}
