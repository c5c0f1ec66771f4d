package business

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/edusuite/service-fees/service/models"
	"github.com/edusuite/service-fees/service/repository"
)

const (
	AuditActionCreate         = "CREATE"
	AuditActionUpdate         = "UPDATE"
	AuditActionPayment        = "PAYMENT"
	AuditActionVoid           = "VOID"
	AuditActionCancel         = "CANCEL"
	AuditActionInitiated      = "PAYMENT_INITIATED"
	AuditActionCompleted      = "PAYMENT_COMPLETED"
	AuditActionFailed         = "PAYMENT_FAILED"
	AuditActionReconciliation = "RECONCILIATION"
)

// snapshot serialises an entity state for the audit trail; a nil value
// yields a null column rather than an error.
func snapshot(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// diffStates lists fields whose value changed between two snapshots, keyed
// by field name with the old and new values side by side.
func diffStates(before, after datatypes.JSON) datatypes.JSON {
	if before == nil || after == nil {
		return nil
	}
	var oldState, newState map[string]any
	if json.Unmarshal(before, &oldState) != nil || json.Unmarshal(after, &newState) != nil {
		return nil
	}

	changes := map[string]any{}
	for key, newValue := range newState {
		oldValue, ok := oldState[key]
		if !ok || !jsonEqual(oldValue, newValue) {
			changes[key] = map[string]any{"from": oldValue, "to": newValue}
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return snapshot(changes)
}

func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ab) == string(bb)
}

func newAuditRecord(action, modelName, objectID, userID string, before, after any, notes string) *models.AuditRecord {
	beforeState := snapshot(before)
	afterState := snapshot(after)
	return &models.AuditRecord{
		Action:      action,
		ModelName:   modelName,
		ObjectID:    objectID,
		UserID:      userID,
		BeforeState: beforeState,
		AfterState:  afterState,
		Changes:     diffStates(beforeState, afterState),
		Notes:       notes,
	}
}

func appendAudit(
	ctx context.Context,
	audits repository.AuditRepository,
	action, modelName, objectID, userID string,
	before, after any,
	notes string,
) error {
	return audits.Append(ctx, newAuditRecord(action, modelName, objectID, userID, before, after, notes))
}
