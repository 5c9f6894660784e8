// Package identity manages the lifecycle of on-chain identity
// commitments: issuance, revocation, retry after transient failure, and
// profile verification against the stored profile fingerprint.
package identity

import (
	"time"

	"civicledger/pkg/domain"
)

// Status tracks the off-chain pointer's view of an identity commitment.
type Status string

const (
	StatusActive       Status = "active"
	StatusRevoked      Status = "revoked"
	StatusPendingRetry Status = "pending_retry"
)

// Record is the off-chain pointer to an on-chain identity commitment.
//
// Invariants:
//   - exactly one active identity per UserID
//   - IdentityHash is unique across all records
//   - revocation is one-way; records are never deleted
type Record struct {
	UserID          domain.UserID
	IdentityHash    domain.Hash32
	IssuerSignature []byte
	ProfileHash     *domain.Hash32
	Status          Status
	TxHash          string
	BlockNumber     uint64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProfileStatus classifies a profile verification outcome. These are
// findings, not errors.
type ProfileStatus string

const (
	ProfileVerified      ProfileStatus = "verified"
	ProfileTampered      ProfileStatus = "tampered"
	ProfileNoIdentity    ProfileStatus = "no_identity"
	ProfileNoProfileHash ProfileStatus = "no_profile_hash"
)

// ProfileVerification is the result of diffing current profile fields
// against the fingerprint stored at issuance time. NoProfileHash marks
// identities issued before profile hashing existed; it is a permanent,
// reportable state and must never be conflated with tampering.
type ProfileVerification struct {
	Status      ProfileStatus  `json:"status"`
	Verified    bool           `json:"verified"`
	Tampered    bool           `json:"tampered"`
	StoredHash  *domain.Hash32 `json:"stored_hash,omitempty"`
	CurrentHash *domain.Hash32 `json:"current_hash,omitempty"`
}

// IssueOutcome is returned from issuance and retry.
type IssueOutcome struct {
	IdentityHash domain.Hash32 `json:"identity_hash"`
	Signature    []byte        `json:"signature"`
	TxHash       string        `json:"tx_hash"`
	BlockNumber  uint64        `json:"block_number"`
	Backfilled   bool          `json:"backfilled,omitempty"`
}
