package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"civicledger/pkg/domain"
)

// Action names every operation and anomaly the trail records. Success and
// failure get distinct actions so the trail reads without joining on the
// error column.
type Action string

const (
	ActionIssue               Action = "issue"
	ActionIssueFailed         Action = "issue_failed"
	ActionIssueRetry          Action = "issue_retry"
	ActionVerify              Action = "verify"
	ActionRevoke              Action = "revoke"
	ActionRecordContent       Action = "record_content"
	ActionRecordContentFailed Action = "record_content_failed"
	ActionDeleteContent       Action = "delete_content"
	ActionDeleteContentFailed Action = "delete_content_failed"
	ActionVerifyProfile       Action = "verify_profile"
	ActionProfileBackfill     Action = "profile_hash_backfill"
	ActionProfileTamper       Action = "profile_tamper_detected"
	ActionIntegrityCheck      Action = "integrity_check"
)

// Entry is one immutable audit row. Entries are appended for every
// attempted state-changing operation and every detected anomaly, and are
// never mutated or deleted.
type Entry struct {
	ID            uuid.UUID      `json:"id"`
	Action        Action         `json:"action"`
	SubjectUserID domain.UserID  `json:"subject_user_id,omitempty"`
	IdentityHash  *domain.Hash32 `json:"identity_hash,omitempty"`
	TxHash        string         `json:"tx_hash,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Store is the append-only persistence for audit entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByUser(ctx context.Context, userID domain.UserID, limit int) ([]Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}
