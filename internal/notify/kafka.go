package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/vaidashi/invoice-reconciler/internal/config"
	"github.com/vaidashi/invoice-reconciler/internal/models"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

// KafkaNotifier publishes notifications to a topic so ops tooling can
// consume run events without being on the email list
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	runID    string
	logger   logger.Logger
}

type notificationEvent struct {
	RunID   string `json:"run_id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	SentAt  string `json:"sent_at"`
}

// NewKafkaNotifier creates a new KafkaNotifier
func NewKafkaNotifier(cfg config.KafkaConfig, runID string, logger logger.Logger) (*KafkaNotifier, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Retry.Backoff = 500 * time.Millisecond
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Timeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)

	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaNotifier{
		producer: producer,
		topic:    cfg.Topic,
		runID:    runID,
		logger:   logger,
	}, nil
}

// Notify publishes one notification event keyed by run id
func (n *KafkaNotifier) Notify(subject, body string) error {
	event := notificationEvent{
		RunID:   n.runID,
		Subject: subject,
		Body:    body,
		SentAt:  models.GetCurrentTime().Format(time.RFC3339),
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(n.runID),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := n.producer.SendMessage(msg)

	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Debug("Published notification event",
		"topic", n.topic,
		"partition", partition,
		"offset", offset)

	return nil
}

// Close closes the underlying producer
func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
