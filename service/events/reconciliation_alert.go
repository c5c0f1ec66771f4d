package events

import (
	"context"
	"errors"
	"time"

	"github.com/pitabwire/frame"
)

// ReconciliationAlertPayload is the message published for high-severity
// reconciliation findings.
type ReconciliationAlertPayload struct {
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	DetectedAt time.Time `json:"detected_at"`
}

// ReconciliationAlert forwards a reconciliation finding to the alert topic
// for the notification service to act on.
type ReconciliationAlert struct {
	Service    *frame.Service
	AlertTopic string
}

func (event *ReconciliationAlert) Name() string {
	return "reconciliation.alert"
}

func (event *ReconciliationAlert) PayloadType() any {
	return &ReconciliationAlertPayload{}
}

func (event *ReconciliationAlert) Validate(_ context.Context, payload any) error {
	alert, ok := payload.(*ReconciliationAlertPayload)
	if !ok {
		return errors.New(" payload is not of type ReconciliationAlertPayload")
	}

	if alert.Message == "" {
		return errors.New(" alert message should be set ")
	}

	return nil
}

func (event *ReconciliationAlert) Execute(ctx context.Context, payload any) error {
	alert := payload.(*ReconciliationAlertPayload)

	logger := event.Service.Log(ctx).WithField("type", event.Name())
	logger.WithField("payload", alert).Debug("handling event")

	err := event.Service.Publish(ctx, event.AlertTopic, alert)
	if err != nil {
		logger.WithError(err).Warn("could not publish alert")
		return err
	}
	return nil
}

// Alert satisfies the reconciliation notifier by emitting through the
// service's event bus.
func (event *ReconciliationAlert) Alert(ctx context.Context, severity, message string) error {
	return event.Service.Emit(ctx, event.Name(), &ReconciliationAlertPayload{
		Severity:   severity,
		Message:    message,
		DetectedAt: time.Now(),
	})
}
