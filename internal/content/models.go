// Package content anchors content fingerprints on chain and reconciles
// the mutable application rows against them.
package content

import (
	"time"

	"civicledger/pkg/domain"
)

// Record is the off-chain pointer to one on-chain content anchor. Each
// anchoring event gets a fresh RecordKey; re-anchoring edited content
// produces a new Record, and Latest per subject is the one that counts
// for verification.
type Record struct {
	Key              domain.RecordKey
	SubjectID        domain.ContentID
	Type             domain.ContentType
	ContentHash      domain.Hash32
	UserIdentityHash domain.Hash32
	TxHash           string
	BlockNumber      uint64
	IsDeleted        bool
	CreatedAt        time.Time
}

// AnchorOutcome is returned from a successful anchoring.
type AnchorOutcome struct {
	Key         domain.RecordKey `json:"record_key"`
	ContentHash domain.Hash32    `json:"content_hash"`
	TxHash      string           `json:"tx_hash"`
	BlockNumber uint64           `json:"block_number"`
}

// Status classifies a verification outcome. These are findings carried
// in the result, not errors: a missing row, a missing anchor, and a
// hash mismatch are all answers, and an unreachable ledger is reported
// separately so it is never mistaken for tampering.
type Status string

const (
	StatusVerified    Status = "verified"
	StatusTampered    Status = "tampered"
	StatusNotRecorded Status = "not_recorded"
	StatusNotFound    Status = "not_found"
	StatusUnconfirmed Status = "unconfirmed"
)

// Verification is the result of reconciling one content record.
//
// Tampered compares the recomputed hash against the anchor we recorded;
// OnChainMismatch compares our recorded hash against what the chain
// returns. The two signals are independent and both are surfaced.
type Verification struct {
	Status          Status         `json:"status"`
	Verified        bool           `json:"verified"`
	Tampered        bool           `json:"tampered"`
	LedgerChecked   bool           `json:"ledger_checked"`
	OnChain         bool           `json:"on_chain"`
	OnChainMismatch bool           `json:"on_chain_mismatch,omitempty"`
	IsDeleted       bool           `json:"is_deleted,omitempty"`
	CurrentHash     *domain.Hash32 `json:"current_hash,omitempty"`
	RecordedHash    *domain.Hash32 `json:"recorded_hash,omitempty"`
	OnChainHash     *domain.Hash32 `json:"on_chain_hash,omitempty"`
	TxHash          string         `json:"tx_hash,omitempty"`
	BlockNumber     uint64         `json:"block_number,omitempty"`
	CheckedAt       time.Time      `json:"checked_at"`
}

// CheckItem is one flagged finding in an integrity sweep.
type CheckItem struct {
	Kind   string             `json:"kind"`
	ID     string             `json:"id"`
	Type   domain.ContentType `json:"type,omitempty"`
	Status string             `json:"status"`
}

// Summary aggregates one integrity sweep. Clean is true only when every
// checked item verified; skipped items (errors, unreachable ledger) keep
// Clean false because absence of evidence is not evidence of integrity.
type Summary struct {
	Scope             string      `json:"scope"`
	CheckedIdentities int         `json:"checked_identities"`
	CheckedContent    int         `json:"checked_content"`
	TamperedCount     int         `json:"tampered_count"`
	NoProfileHash     int         `json:"no_profile_hash"`
	Skipped           int         `json:"skipped"`
	Clean             bool        `json:"clean"`
	Flagged           []CheckItem `json:"flagged,omitempty"`
	StartedAt         time.Time   `json:"started_at"`
	FinishedAt        time.Time   `json:"finished_at"`
}

// SubjectID derives the stable pointer-store key for a content
// reference. Issues and comments are addressed by their own row id; vote
// rows have no client-visible id, so votes are addressed by parent id
// plus voter.
func SubjectID(ref domain.ContentRef) domain.ContentID {
	if ref.Type.IsVote() {
		return domain.ContentID(ref.ID.String() + "/" + ref.UserID.String())
	}
	return ref.ID
}
