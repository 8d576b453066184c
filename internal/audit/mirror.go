package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"irrl/internal/domain"
	"irrl/internal/platform/config"
)

// KafkaMirror streams a copy of every audit event to a Kafka topic so
// external consumers can follow the chain without polling the API. The
// database chain stays the source of truth; the mirror is best-effort.
type KafkaMirror struct {
	client *kgo.Client
	topic  string
}

// NewKafkaMirror connects to the brokers and ensures the topic exists.
// Returns nil when no brokers are configured.
func NewKafkaMirror(ctx context.Context, cfg config.Kafka) (*KafkaMirror, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(cfg.AuditTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopic(ctx, 1, -1, nil, cfg.AuditTopic); err != nil {
		// Already-exists is the steady state on restart.
		if !strings.Contains(err.Error(), "TOPIC_ALREADY_EXISTS") {
			client.Close()
			return nil, fmt.Errorf("ensure audit topic: %w", err)
		}
	}
	return &KafkaMirror{client: client, topic: cfg.AuditTopic}, nil
}

// Publish produces one event, keyed by event id so partition-local ordering
// follows append order for a single-partition topic.
func (m *KafkaMirror) Publish(ctx context.Context, event domain.AuditEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{Key: []byte(event.ID), Value: value, Topic: m.topic}
	if err := m.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes pending records and releases the client.
func (m *KafkaMirror) Close() {
	m.client.Close()
}
