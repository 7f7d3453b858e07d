// Package notify delivers patient alerts raised by providers.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/telehealth-provider-scheduling/internal/logging"
	"github.com/hackgods/telehealth-provider-scheduling/internal/scheduling"
)

const AlertEventType = "appointment.alert"

// AlertEvent is the wire form of a patient alert.
type AlertEvent struct {
	Type            string    `json:"type"`
	AppointmentID   string    `json:"appointment_id"`
	ProviderID      string    `json:"provider_id"`
	PatientName     string    `json:"patient_name"`
	Email           string    `json:"email"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentTime string    `json:"appointment_time"`
	RoomID          string    `json:"room_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func newAlertEvent(alert scheduling.Alert, now time.Time) AlertEvent {
	return AlertEvent{
		Type:            AlertEventType,
		AppointmentID:   alert.AppointmentID.String(),
		ProviderID:      alert.ProviderID.String(),
		PatientName:     alert.PatientName,
		Email:           alert.Email,
		AppointmentDate: scheduling.FormatDate(alert.AppointmentDate),
		AppointmentTime: alert.AppointmentTime.String(),
		RoomID:          alert.RoomID,
		OccurredAt:      now.UTC(),
	}
}

// LogNotifier only logs the alert. Used in development.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.OrNop(logger)}
}

func (n *LogNotifier) Notify(ctx context.Context, alert scheduling.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Info("patient alert",
		zap.Stringer("appointment_id", alert.AppointmentID),
		zap.String("email", alert.Email),
		zap.String("date", scheduling.FormatDate(alert.AppointmentDate)),
		zap.String("time", alert.AppointmentTime.String()),
	)
	return nil
}

func alertEmail(alert scheduling.Alert) EmailMessage {
	when := fmt.Sprintf("%s at %s", scheduling.FormatDate(alert.AppointmentDate), alert.AppointmentTime)
	body := fmt.Sprintf("Hello %s,\n\nYour provider is ready for your appointment on %s.", alert.PatientName, when)
	if alert.RoomID != "" {
		body += fmt.Sprintf("\nJoin the video call with room id %s.", alert.RoomID)
	}
	return EmailMessage{
		To:      alert.Email,
		ToName:  alert.PatientName,
		Subject: "Your appointment on " + when,
		Body:    body,
	}
}

var (
	_ scheduling.Notifier = (*LogNotifier)(nil)
	_ scheduling.Notifier = (*KafkaNotifier)(nil)
	_ scheduling.Notifier = (*EmailNotifier)(nil)
)
