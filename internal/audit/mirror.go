package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Mirror publishes audit entries to a Kafka topic for downstream
// consumers (SIEM, compliance archive). Delivery is asynchronous and
// best-effort; the postgres store remains the queryable trail.
type Mirror struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewMirror returns nil when no brokers are configured; the publisher is
// nil-safe around it.
func NewMirror(brokers []string, topic string, logger *slog.Logger) (*Mirror, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, err
	}
	return &Mirror{client: client, topic: topic, logger: logger}, nil
}

type mirrorPayload struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	SubjectUserID string         `json:"subject_user_id,omitempty"`
	IdentityHash  string         `json:"identity_hash,omitempty"`
	TxHash        string         `json:"tx_hash,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

// Publish enqueues the entry; delivery failures are logged, not returned.
func (m *Mirror) Publish(ctx context.Context, entry Entry) {
	payload := mirrorPayload{
		ID:           entry.ID.String(),
		Action:       string(entry.Action),
		TxHash:       entry.TxHash,
		Metadata:     entry.Metadata,
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    entry.CreatedAt.Format(time.RFC3339Nano),
	}
	if !entry.SubjectUserID.IsNil() {
		payload.SubjectUserID = entry.SubjectUserID.String()
	}
	if entry.IdentityHash != nil {
		payload.IdentityHash = entry.IdentityHash.Hex()
	}

	value, err := json.Marshal(payload)
	if err != nil {
		m.logger.ErrorContext(ctx, "audit mirror marshal failed", "error", err)
		return
	}

	record := &kgo.Record{Topic: m.topic, Key: []byte(entry.Action), Value: value}
	m.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			m.logger.Error("audit mirror produce failed",
				"action", string(entry.Action),
				"error", err,
			)
		}
	})
}

func (m *Mirror) Close() {
	m.client.Close()
}
