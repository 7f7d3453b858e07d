package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-provider-scheduling/internal/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESSender struct {
	client    sesAPI
	fromEmail string
	fromName  string
	logger    *zap.Logger
}

// NewSESSender loads AWS credentials from the default chain.
func NewSESSender(ctx context.Context, region string, cfg SenderConfig, logger *zap.Logger) (*SESSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("notify: load aws config: %w", err)
	}
	return newSESSender(sesv2.NewFromConfig(awsCfg), cfg, logger), nil
}

func newSESSender(client sesAPI, cfg SenderConfig, logger *zap.Logger) *SESSender {
	return &SESSender{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logging.OrNop(logger),
	}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("notify: SES send failed: %w", err)
	}

	s.logger.Info("email sent via SES", zap.String("to", msg.To), zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

var _ EmailSender = (*SESSender)(nil)
