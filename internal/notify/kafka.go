package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-provider-scheduling/internal/logging"
	"github.com/hackgods/telehealth-provider-scheduling/internal/scheduling"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes alerts for the patient messaging service to deliver.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
	now    func() time.Time
}

func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("notify: at least one kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("notify: kafka topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaNotifier(writer, topic, logger), nil
}

func newKafkaNotifier(w messageWriter, topic string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: w,
		topic:  topic,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Notify writes one message keyed by appointment id so alerts for the same
// appointment stay ordered on one partition.
func (n *KafkaNotifier) Notify(ctx context.Context, alert scheduling.Alert) error {
	value, err := json.Marshal(newAlertEvent(alert, n.now()))
	if err != nil {
		return fmt.Errorf("notify: marshal alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(alert.AppointmentID.String()),
		Value: value,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("notify: produce alert: %w", err)
	}

	n.logger.Info("alert produced",
		zap.String("topic", n.topic),
		zap.Stringer("appointment_id", alert.AppointmentID),
	)
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
