// Package ledger is the only component that talks to the chain. The
// Client holds the signing identity and exposes typed operations over a
// Backend; backends translate contract semantics into coded errors so
// callers never see raw RPC failures.
package ledger

import (
	"context"
	"time"

	"civicledger/pkg/domain"
)

// TxResult describes an included transaction.
type TxResult struct {
	TxHash      string
	BlockNumber uint64
}

// IssueResult is returned by Client.IssueIdentity.
type IssueResult struct {
	IdentityHash domain.Hash32
	Signature    []byte
	TxResult
}

// RecordResult is returned by Client.RecordContent.
type RecordResult struct {
	ContentHash domain.Hash32
	TxResult
}

// IdentityState mirrors the identity registry's verifyIdentity view.
type IdentityState struct {
	Exists   bool      `json:"exists"`
	Issuer   string    `json:"issuer,omitempty"`
	IssuedAt time.Time `json:"issued_at,omitempty"`
	Revoked  bool      `json:"revoked"`
}

// ContentState mirrors the content registry's verifyContent view.
type ContentState struct {
	Exists           bool               `json:"exists"`
	ContentHash      domain.Hash32      `json:"content_hash"`
	UserIdentityHash domain.Hash32      `json:"user_identity_hash"`
	Timestamp        time.Time          `json:"timestamp,omitempty"`
	ContentType      domain.ContentType `json:"content_type,omitempty"`
	IsDeleted        bool               `json:"is_deleted"`
}

// Health is the operational snapshot surfaced by Client.HealthCheck.
// Failures land in the booleans; the method itself never errors.
type Health struct {
	NodeConnected     bool   `json:"node_connected"`
	ContractsDeployed bool   `json:"contracts_deployed"`
	SignerAddress     string `json:"signer_address,omitempty"`
	ChainID           uint64 `json:"chain_id,omitempty"`
	BlockNumber       uint64 `json:"block_number,omitempty"`
}

// Backend abstracts the chain. The EVM implementation speaks JSON-RPC to a
// proof-of-authority node; the memory implementation executes the registry
// state machines in-process for tests and development.
//
// Write methods block until inclusion and sign with the backend's key.
// Read methods must surface node unreachability as a coded unavailable
// error, never as "does not exist".
type Backend interface {
	IssueIdentity(ctx context.Context, hash domain.Hash32) (sig []byte, tx *TxResult, err error)
	RevokeIdentity(ctx context.Context, hash domain.Hash32) (*TxResult, error)
	VerifyIdentity(ctx context.Context, hash domain.Hash32) (*IdentityState, error)

	RecordContent(ctx context.Context, key domain.RecordKey, contentHash, userIdentityHash domain.Hash32, contentType domain.ContentType) (*TxResult, error)
	DeleteContent(ctx context.Context, key domain.RecordKey) (*TxResult, error)
	VerifyContent(ctx context.Context, key domain.RecordKey) (*ContentState, error)

	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (uint64, error)
	ContractsDeployed(ctx context.Context) (bool, error)
	SignerAddress() string
	Close()
}
