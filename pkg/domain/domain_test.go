package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
)

func TestParseUserID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		raw := uuid.NewString()
		id, err := domain.ParseUserID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, id.String())
	})

	for name, input := range map[string]string{
		"empty":    "",
		"garbage":  "not-a-uuid",
		"nil uuid": "00000000-0000-0000-0000-000000000000",
	} {
		t.Run(name+" is rejected", func(t *testing.T) {
			_, err := domain.ParseUserID(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestRecordKeyBytes32(t *testing.T) {
	key := domain.NewRecordKey()
	b := key.Bytes32()
	assert.Equal(t, [16]byte(uuid.MustParse(key.String())), [16]byte(b[:16]))
	assert.Equal(t, [16]byte{}, [16]byte(b[16:]), "key is left-aligned, zero padded")
}

func TestHash32Hex(t *testing.T) {
	h := domain.Hash32{0xde, 0xad}
	assert.Equal(t, "0xdead", h.Hex()[:6])

	parsed, err := domain.ParseHash32(h.Hex())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = domain.ParseHash32("0x1234")
	require.Error(t, err)
}

func TestHash32JSON(t *testing.T) {
	h := domain.Hash32{1, 2, 3}
	raw, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `"`+h.Hex()+`"`, string(raw))

	var back domain.Hash32
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, h, back)
}

func TestContentRefValidate(t *testing.T) {
	userID := domain.UserID(uuid.New())

	t.Run("issue needs no user", func(t *testing.T) {
		ref := domain.ContentRef{ID: "issue-1", Type: domain.ContentTypeIssue}
		assert.NoError(t, ref.Validate())
	})

	t.Run("vote requires the voter", func(t *testing.T) {
		ref := domain.ContentRef{ID: "issue-1", Type: domain.ContentTypeVote}
		assert.Error(t, ref.Validate())

		ref.UserID = userID
		assert.NoError(t, ref.Validate())
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		ref := domain.ContentRef{ID: "x", Type: "reaction"}
		assert.Error(t, ref.Validate())
	})

	t.Run("empty id is rejected", func(t *testing.T) {
		ref := domain.ContentRef{Type: domain.ContentTypeIssue}
		assert.Error(t, ref.Validate())
	})
}
