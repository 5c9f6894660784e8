package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicledger/internal/identity"
	"civicledger/pkg/domain"
	"civicledger/pkg/platform/sentinel"
)

// Postgres persists identity pointer records. A partial unique index on
// (user_id) WHERE status = 'active' enforces the one-active-identity
// invariant at the database, not just in application code.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Schema is the DDL the store expects.
const Schema = `
CREATE TABLE IF NOT EXISTS identity_records (
	identity_hash    TEXT PRIMARY KEY,
	user_id          UUID NOT NULL,
	issuer_signature BYTEA,
	profile_hash     TEXT,
	status           TEXT NOT NULL,
	tx_hash          TEXT,
	block_number     BIGINT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS identity_records_one_active_idx
	ON identity_records (user_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS identity_records_user_idx ON identity_records (user_id, created_at DESC);
`

func (p *Postgres) Save(ctx context.Context, rec *identity.Record) error {
	var profileHash *string
	if rec.ProfileHash != nil {
		h := rec.ProfileHash.Hex()
		profileHash = &h
	}

	query := `
		INSERT INTO identity_records (identity_hash, user_id, issuer_signature, profile_hash, status, tx_hash, block_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (identity_hash) DO UPDATE SET
			status       = EXCLUDED.status,
			tx_hash      = EXCLUDED.tx_hash,
			block_number = EXCLUDED.block_number,
			profile_hash = EXCLUDED.profile_hash,
			updated_at   = EXCLUDED.updated_at
	`
	_, err := p.pool.Exec(ctx, query,
		rec.IdentityHash.Hex(),
		uuid.UUID(rec.UserID),
		rec.IssuerSignature,
		profileHash,
		string(rec.Status),
		rec.TxHash,
		rec.BlockNumber,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save identity record: %w", err)
	}
	return nil
}

func (p *Postgres) FindByUser(ctx context.Context, userID domain.UserID) (*identity.Record, error) {
	query := `
		SELECT identity_hash, user_id, issuer_signature, profile_hash, status, tx_hash, block_number, created_at, updated_at
		FROM identity_records
		WHERE user_id = $1
		ORDER BY (status = 'active') DESC, created_at DESC
		LIMIT 1
	`
	return p.scanOne(p.pool.QueryRow(ctx, query, uuid.UUID(userID)))
}

func (p *Postgres) FindByHash(ctx context.Context, hash domain.Hash32) (*identity.Record, error) {
	query := `
		SELECT identity_hash, user_id, issuer_signature, profile_hash, status, tx_hash, block_number, created_at, updated_at
		FROM identity_records
		WHERE identity_hash = $1
	`
	return p.scanOne(p.pool.QueryRow(ctx, query, hash.Hex()))
}

func (p *Postgres) UpdateStatus(ctx context.Context, hash domain.Hash32, status identity.Status) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE identity_records SET status = $2, updated_at = $3 WHERE identity_hash = $1`,
		hash.Hex(), string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update identity status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (p *Postgres) SetProfileHash(ctx context.Context, hash domain.Hash32, profileHash domain.Hash32) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE identity_records SET profile_hash = $2, updated_at = $3 WHERE identity_hash = $1`,
		hash.Hex(), profileHash.Hex(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set profile hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (p *Postgres) ListActive(ctx context.Context, limit int) ([]*identity.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `
		SELECT identity_hash, user_id, issuer_signature, profile_hash, status, tx_hash, block_number, created_at, updated_at
		FROM identity_records
		WHERE status = 'active'
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list active identities: %w", err)
	}
	defer rows.Close()

	var out []*identity.Record
	for rows.Next() {
		rec, err := p.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity records: %w", err)
	}
	return out, nil
}

func (p *Postgres) scanOne(row pgx.Row) (*identity.Record, error) {
	var (
		rec         identity.Record
		hashHex     string
		userID      uuid.UUID
		profileHash *string
		status      string
		txHash      *string
	)
	err := row.Scan(&hashHex, &userID, &rec.IssuerSignature, &profileHash, &status, &txHash, &rec.BlockNumber, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan identity record: %w", err)
	}

	h, err := domain.ParseHash32(hashHex)
	if err != nil {
		return nil, fmt.Errorf("corrupt identity hash %q: %w", hashHex, err)
	}
	rec.IdentityHash = h
	rec.UserID = domain.UserID(userID)
	rec.Status = identity.Status(status)
	if profileHash != nil {
		ph, err := domain.ParseHash32(*profileHash)
		if err != nil {
			return nil, fmt.Errorf("corrupt profile hash %q: %w", *profileHash, err)
		}
		rec.ProfileHash = &ph
	}
	if txHash != nil {
		rec.TxHash = *txHash
	}
	return &rec, nil
}
