// Package domain holds the typed identifiers and enums shared across the
// integrity core. Typed IDs prevent cross-type assignment at compile time;
// parsing enforces the "valid, non-empty, non-nil" invariant at trust
// boundaries.
package domain

import (
	"encoding/json"

	"github.com/google/uuid"

	dErrors "civicledger/pkg/domain-errors"
)

// UserID identifies a verified participant. Opaque and stable for the
// lifetime of the account.
type UserID uuid.UUID

// RecordKey is the fresh key minted for a single content-anchoring event.
// It is never the content's own identifier, so repeated anchors of the same
// content as it is edited each get their own on-chain record.
type RecordKey uuid.UUID

// ContentID is the off-chain identifier of a mutable application record
// (an issue, comment, or vote row). Kept as an opaque string because the
// application layer owns its shape.
type ContentID string

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

func ParseRecordKey(s string) (RecordKey, error) {
	u, err := parseUUID(s)
	if err != nil {
		return RecordKey{}, err
	}
	return RecordKey(u), nil
}

// NewRecordKey mints a fresh anchoring key.
func NewRecordKey() RecordKey {
	return RecordKey(uuid.New())
}

func (id UserID) String() string   { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (k RecordKey) String() string { return uuid.UUID(k).String() }
func (k RecordKey) IsNil() bool    { return uuid.UUID(k) == uuid.Nil }
func (c ContentID) String() string { return string(c) }
func (c ContentID) IsEmpty() bool  { return c == "" }

// MarshalJSON renders ids in their canonical uuid string form.
func (id UserID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

func (id *UserID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return dErrors.Wrap(dErrors.CodeInvalidInput, "user id must be a string", err)
	}
	parsed, err := ParseUserID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (k RecordKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

func (k *RecordKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return dErrors.Wrap(dErrors.CodeInvalidInput, "record key must be a string", err)
	}
	parsed, err := ParseRecordKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Bytes32 returns the key left-aligned in a 32-byte array, the form the
// content registry stores it in.
func (k RecordKey) Bytes32() [32]byte {
	var b [32]byte
	u := uuid.UUID(k)
	copy(b[:], u[:])
	return b
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(dErrors.CodeInvalidInput, "id must be a valid uuid", err)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil uuid")
	}
	return u, nil
}
