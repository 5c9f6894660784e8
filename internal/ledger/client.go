package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"civicledger/internal/hashing"
	"civicledger/pkg/domain"
)

const defaultTimeout = 30 * time.Second

// Client wraps a Backend with the cross-cutting concerns every caller
// needs: bounded timeouts on all chain calls, and serialization of writes.
//
// Writes MUST be serialized per signing key: each submission consumes the
// account's next sequence number, and concurrent writers sharing one key
// would produce conflicting transactions. Reads take no lock and may run
// fully in parallel.
//
// The Client never retries on its own. A timed-out write is reported as a
// retryable failure and left to an explicit caller-initiated retry that
// first confirms on-chain state, since blind resubmission could
// double-anchor.
type Client struct {
	backend Backend
	hasher  *hashing.Hasher
	timeout time.Duration
	logger  *slog.Logger

	writeMu sync.Mutex
}

func NewClient(backend Backend, hasher *hashing.Hasher, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		backend: backend,
		hasher:  hasher,
		timeout: timeout,
		logger:  logger,
	}
}

// IssueIdentity computes the identity fingerprint, signs it, submits the
// issuance transaction, and blocks until inclusion.
func (c *Client) IssueIdentity(ctx context.Context, userID domain.UserID, email, attemptID string) (*IssueResult, error) {
	hash := c.hasher.IdentityHash(userID, email, attemptID)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sig, tx, err := c.backend.IssueIdentity(ctx, hash)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "identity issued on chain",
		"identity_hash", hash.Hex(),
		"tx_hash", tx.TxHash,
		"block", tx.BlockNumber,
	)
	return &IssueResult{IdentityHash: hash, Signature: sig, TxResult: *tx}, nil
}

// IdentityHash recomputes the fingerprint without touching the chain.
// Used by retry paths to check current on-chain state before resubmitting.
func (c *Client) IdentityHash(userID domain.UserID, email, attemptID string) domain.Hash32 {
	return c.hasher.IdentityHash(userID, email, attemptID)
}

// VerifyOnChainIdentity is a read-only passthrough. Node unreachability
// surfaces as a coded unavailable error, never as "does not exist".
func (c *Client) VerifyOnChainIdentity(ctx context.Context, hash domain.Hash32) (*IdentityState, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.backend.VerifyIdentity(ctx, hash)
}

// RevokeIdentity marks the identity revoked on chain. One-way.
func (c *Client) RevokeIdentity(ctx context.Context, hash domain.Hash32) (*TxResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tx, err := c.backend.RevokeIdentity(ctx, hash)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "identity revoked on chain",
		"identity_hash", hash.Hex(),
		"tx_hash", tx.TxHash,
	)
	return tx, nil
}

// RecordContent anchors a content fingerprint under a fresh record key.
func (c *Client) RecordContent(ctx context.Context, key domain.RecordKey, contentHash, userIdentityHash domain.Hash32, contentType domain.ContentType) (*RecordResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tx, err := c.backend.RecordContent(ctx, key, contentHash, userIdentityHash, contentType)
	if err != nil {
		return nil, err
	}
	return &RecordResult{ContentHash: contentHash, TxResult: *tx}, nil
}

// DeleteContent tombstones an anchored record. The fingerprint stays on
// chain; only the deleted flag flips.
func (c *Client) DeleteContent(ctx context.Context, key domain.RecordKey) (*TxResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.backend.DeleteContent(ctx, key)
}

// VerifyContent is a read-only passthrough.
func (c *Client) VerifyContent(ctx context.Context, key domain.RecordKey) (*ContentState, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.backend.VerifyContent(ctx, key)
}

// HealthCheck reports the operational state of the chain connection. It
// never returns an error; failures are captured in the boolean fields.
func (c *Client) HealthCheck(ctx context.Context) *Health {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	h := &Health{SignerAddress: c.backend.SignerAddress()}

	block, err := c.backend.BlockNumber(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "health check: node unreachable", "error", err)
		return h
	}
	h.NodeConnected = true
	h.BlockNumber = block

	if chainID, err := c.backend.ChainID(ctx); err == nil {
		h.ChainID = chainID
	}
	deployed, err := c.backend.ContractsDeployed(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "health check: contract code query failed", "error", err)
		return h
	}
	h.ContractsDeployed = deployed
	return h
}

// Close releases the underlying transport.
func (c *Client) Close() {
	c.backend.Close()
}
