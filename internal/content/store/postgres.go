package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicledger/internal/content"
	"civicledger/pkg/domain"
	"civicledger/pkg/platform/sentinel"
)

// Postgres persists anchor pointer records. Rows are append-only except
// for the tombstone flag; "latest per subject" is resolved at query time
// so the full anchoring history stays queryable.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Schema is the DDL the store expects.
const Schema = `
CREATE TABLE IF NOT EXISTS content_records (
	record_key         UUID PRIMARY KEY,
	subject_id         TEXT NOT NULL,
	content_type       TEXT NOT NULL,
	content_hash       TEXT NOT NULL,
	user_identity_hash TEXT NOT NULL,
	tx_hash            TEXT,
	block_number       BIGINT NOT NULL DEFAULT 0,
	is_deleted         BOOLEAN NOT NULL DEFAULT FALSE,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS content_records_subject_idx
	ON content_records (subject_id, content_type, created_at DESC);
`

const recordColumns = `record_key, subject_id, content_type, content_hash, user_identity_hash, tx_hash, block_number, is_deleted, created_at`

func (p *Postgres) Save(ctx context.Context, rec *content.Record) error {
	query := `
		INSERT INTO content_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := p.pool.Exec(ctx, query,
		uuid.UUID(rec.Key),
		rec.SubjectID.String(),
		string(rec.Type),
		rec.ContentHash.Hex(),
		rec.UserIdentityHash.Hex(),
		rec.TxHash,
		rec.BlockNumber,
		rec.IsDeleted,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save content record: %w", err)
	}
	return nil
}

func (p *Postgres) Latest(ctx context.Context, subjectID domain.ContentID, t domain.ContentType) (*content.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM content_records
		WHERE subject_id = $1 AND content_type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanRecord(p.pool.QueryRow(ctx, query, subjectID.String(), string(t)))
}

func (p *Postgres) MarkDeleted(ctx context.Context, key domain.RecordKey) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE content_records SET is_deleted = TRUE WHERE record_key = $1`,
		uuid.UUID(key),
	)
	if err != nil {
		return fmt.Errorf("tombstone content record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (p *Postgres) ListLatest(ctx context.Context, limit int) ([]*content.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `
		SELECT DISTINCT ON (subject_id, content_type) ` + recordColumns + `
		FROM content_records
		ORDER BY subject_id, content_type, created_at DESC
		LIMIT $1
	`
	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list content records: %w", err)
	}
	defer rows.Close()

	var out []*content.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content records: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*content.Record, error) {
	var (
		rec          content.Record
		key          uuid.UUID
		subjectID    string
		contentType  string
		contentHash  string
		identityHash string
		txHash       *string
	)
	err := row.Scan(&key, &subjectID, &contentType, &contentHash, &identityHash, &txHash, &rec.BlockNumber, &rec.IsDeleted, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan content record: %w", err)
	}

	rec.Key = domain.RecordKey(key)
	rec.SubjectID = domain.ContentID(subjectID)
	rec.Type = domain.ContentType(contentType)

	h, err := domain.ParseHash32(contentHash)
	if err != nil {
		return nil, fmt.Errorf("corrupt content hash %q: %w", contentHash, err)
	}
	rec.ContentHash = h
	ih, err := domain.ParseHash32(identityHash)
	if err != nil {
		return nil, fmt.Errorf("corrupt identity hash %q: %w", identityHash, err)
	}
	rec.UserIdentityHash = ih
	if txHash != nil {
		rec.TxHash = *txHash
	}
	return &rec, nil
}
