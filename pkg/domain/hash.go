package domain

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	dErrors "civicledger/pkg/domain-errors"
)

// Hash32 is a 256-bit fingerprint as anchored on-chain (bytes32).
type Hash32 [32]byte

// Hex renders the hash 0x-prefixed, the form used in APIs and audit rows.
func (h Hash32) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash32) IsZero() bool {
	return h == Hash32{}
}

// MarshalJSON renders the hash in its canonical 0x-prefixed hex form.
func (h Hash32) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.Hex() + `"`), nil
}

func (h *Hash32) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return dErrors.Wrap(dErrors.CodeInvalidInput, "hash must be a hex string", err)
	}
	parsed, err := ParseHash32(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash32 accepts a 64-char hex string with or without 0x prefix.
func ParseHash32(s string) (Hash32, error) {
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash32{}, dErrors.Wrap(dErrors.CodeInvalidInput, "hash must be hex", err)
	}
	if len(raw) != 32 {
		return Hash32{}, dErrors.New(dErrors.CodeInvalidInput, "hash must be 32 bytes")
	}
	var h Hash32
	copy(h[:], raw)
	return h, nil
}
