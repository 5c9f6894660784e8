package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"civicledger/pkg/domain"
)

// Publisher appends audit entries and mirrors them to the broker when one
// is configured. Writes are best-effort: the ledger is the true source of
// record, so a failed audit write is logged and never propagated to the
// operation that produced it.
type Publisher struct {
	store  Store
	mirror *Mirror
	logger *slog.Logger
}

func NewPublisher(store Store, mirror *Mirror, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, mirror: mirror, logger: logger}
}

// Record stamps and appends one entry. It deliberately returns nothing.
func (p *Publisher) Record(ctx context.Context, entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := p.store.Append(ctx, entry); err != nil {
		p.logger.ErrorContext(ctx, "audit append failed",
			"action", string(entry.Action),
			"subject_user_id", entry.SubjectUserID.String(),
			"error", err,
		)
	}
	if p.mirror != nil {
		p.mirror.Publish(ctx, entry)
	}
}

// List returns a user's trail, newest first.
func (p *Publisher) List(ctx context.Context, userID domain.UserID, limit int) ([]Entry, error) {
	return p.store.ListByUser(ctx, userID, limit)
}

// ListRecent returns the trail tail across all subjects.
func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	return p.store.ListRecent(ctx, limit)
}
