package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"civicledger/pkg/domain"
)

// PostgresStore persists the audit trail. The table is insert-only; there
// are deliberately no update or delete statements in this file.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the DDL the store expects. Kept here so operators and the
// integration tests share one definition.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id              UUID PRIMARY KEY,
	action          TEXT NOT NULL,
	subject_user_id UUID,
	identity_hash   TEXT,
	tx_hash         TEXT,
	metadata        JSONB,
	error_message   TEXT,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_log_subject_idx ON audit_log (subject_user_id, created_at DESC);
`

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	var subjectID *uuid.UUID
	if !entry.SubjectUserID.IsNil() {
		uid := uuid.UUID(entry.SubjectUserID)
		subjectID = &uid
	}
	var identityHash *string
	if entry.IdentityHash != nil {
		h := entry.IdentityHash.Hex()
		identityHash = &h
	}

	query := `
		INSERT INTO audit_log (id, action, subject_user_id, identity_hash, tx_hash, metadata, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		string(entry.Action),
		subjectID,
		identityHash,
		nullable(entry.TxHash),
		metadata,
		nullable(entry.ErrorMessage),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID domain.UserID, limit int) ([]Entry, error) {
	query := `
		SELECT id, action, subject_user_id, identity_hash, tx_hash, metadata, error_message, created_at
		FROM audit_log
		WHERE subject_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, action, subject_user_id, identity_hash, tx_hash, metadata, error_message, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry        Entry
			action       string
			subjectID    *uuid.UUID
			identityHash *string
			txHash       *string
			metadata     []byte
			errMessage   *string
		)
		if err := rows.Scan(&entry.ID, &action, &subjectID, &identityHash, &txHash, &metadata, &errMessage, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = Action(action)
		if subjectID != nil {
			entry.SubjectUserID = domain.UserID(*subjectID)
		}
		if identityHash != nil {
			h, err := domain.ParseHash32(*identityHash)
			if err == nil {
				entry.IdentityHash = &h
			}
		}
		if txHash != nil {
			entry.TxHash = *txHash
		}
		if errMessage != nil {
			entry.ErrorMessage = *errMessage
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
