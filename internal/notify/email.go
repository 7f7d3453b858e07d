package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-provider-scheduling/internal/logging"
	"github.com/hackgods/telehealth-provider-scheduling/internal/scheduling"
)

// EmailSender sends one email. SendGrid and SES implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// EmailNotifier alerts the patient by email.
type EmailNotifier struct {
	sender EmailSender
}

func NewEmailNotifier(sender EmailSender) *EmailNotifier {
	return &EmailNotifier{sender: sender}
}

func (n *EmailNotifier) Notify(ctx context.Context, alert scheduling.Alert) error {
	if alert.Email == "" {
		return fmt.Errorf("notify: appointment %s has no email", alert.AppointmentID)
	}
	return n.sender.Send(ctx, alertEmail(alert))
}

type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *zap.Logger
}

type SenderConfig struct {
	FromEmail string
	FromName  string
}

func NewSendGridSender(apiKey string, cfg SenderConfig, logger *zap.Logger) (*SendGridSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("notify: sendgrid api key is required")
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logging.OrNop(logger),
	}, nil
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, "")

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status",
			zap.Int("status", response.StatusCode),
			zap.String("body", response.Body),
		)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", zap.String("to", msg.To), zap.Int("status", response.StatusCode))
	return nil
}

var _ EmailSender = (*SendGridSender)(nil)
