package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicledger/internal/identity"
	"civicledger/internal/ledger"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
	"civicledger/pkg/testutil"
)

type stubService struct {
	issue         func(identity.IssueParams) (*identity.IssueOutcome, error)
	verify        func(domain.UserID) (*ledger.IdentityState, error)
	verifyProfile func(domain.UserID) (*identity.ProfileVerification, error)
	backfill      func(domain.Hash32) (*identity.Record, error)
}

func (s *stubService) Issue(_ context.Context, p identity.IssueParams) (*identity.IssueOutcome, error) {
	return s.issue(p)
}

func (s *stubService) RetryIssue(_ context.Context, p identity.IssueParams) (*identity.IssueOutcome, error) {
	return s.issue(p)
}

func (s *stubService) Revoke(context.Context, domain.UserID) (*ledger.TxResult, error) {
	return &ledger.TxResult{TxHash: "0xdead", BlockNumber: 7}, nil
}

func (s *stubService) Verify(_ context.Context, userID domain.UserID) (*ledger.IdentityState, error) {
	return s.verify(userID)
}

func (s *stubService) VerifyProfile(_ context.Context, userID domain.UserID) (*identity.ProfileVerification, error) {
	return s.verifyProfile(userID)
}

func (s *stubService) BackfillProfileHash(_ context.Context, hash domain.Hash32) (*identity.Record, error) {
	return s.backfill(hash)
}

func newRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestHandleIssue(t *testing.T) {
	t.Run("created on success", func(t *testing.T) {
		svc := &stubService{
			issue: func(p identity.IssueParams) (*identity.IssueOutcome, error) {
				return &identity.IssueOutcome{IdentityHash: domain.Hash32{1}, TxHash: "0xbeef"}, nil
			},
		}
		req := testutil.NewJSONRequest(t, http.MethodPost, "/identity/issue", map[string]string{
			"user_id":    uuid.NewString(),
			"email":      "citizen@example.org",
			"attempt_id": uuid.NewString(),
		})
		rr := testutil.DoRequest(newRouter(svc), req)

		testutil.AssertStatus(t, rr, http.StatusCreated)
		outcome := testutil.UnmarshalResponse[identity.IssueOutcome](t, rr)
		assert.Equal(t, "0xbeef", outcome.TxHash)
	})

	t.Run("invalid user id is rejected before the service runs", func(t *testing.T) {
		called := false
		svc := &stubService{
			issue: func(identity.IssueParams) (*identity.IssueOutcome, error) {
				called = true
				return nil, nil
			},
		}
		req := testutil.NewJSONRequest(t, http.MethodPost, "/identity/issue", map[string]string{
			"user_id": "not-a-uuid",
		})
		rr := testutil.DoRequest(newRouter(svc), req)

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
		assert.False(t, called)
	})

	t.Run("conflict for duplicate identity", func(t *testing.T) {
		svc := &stubService{
			issue: func(identity.IssueParams) (*identity.IssueOutcome, error) {
				return nil, dErrors.New(dErrors.CodeAlreadyExists, "user already has an active identity")
			},
		}
		req := testutil.NewJSONRequest(t, http.MethodPost, "/identity/issue", map[string]string{
			"user_id":    uuid.NewString(),
			"email":      "citizen@example.org",
			"attempt_id": uuid.NewString(),
		})
		rr := testutil.DoRequest(newRouter(svc), req)

		testutil.AssertStatusAndError(t, rr, http.StatusConflict, string(dErrors.CodeAlreadyExists))
	})

	t.Run("split brain surfaces the outcome with 202", func(t *testing.T) {
		svc := &stubService{
			issue: func(identity.IssueParams) (*identity.IssueOutcome, error) {
				return &identity.IssueOutcome{TxHash: "0xbeef"},
					dErrors.New(dErrors.CodeSplitBrain, "pointer save failed")
			},
		}
		req := testutil.NewJSONRequest(t, http.MethodPost, "/identity/issue", map[string]string{
			"user_id":    uuid.NewString(),
			"email":      "citizen@example.org",
			"attempt_id": uuid.NewString(),
		})
		rr := testutil.DoRequest(newRouter(svc), req)

		testutil.AssertStatus(t, rr, http.StatusAccepted)
		body := testutil.UnmarshalResponse[map[string]any](t, rr)
		assert.Equal(t, true, (*body)["split_brain"])
	})
}

func TestHandleVerify(t *testing.T) {
	userID := uuid.NewString()

	t.Run("returns on-chain state", func(t *testing.T) {
		svc := &stubService{
			verify: func(domain.UserID) (*ledger.IdentityState, error) {
				return &ledger.IdentityState{Exists: true, Revoked: false}, nil
			},
		}
		rr := testutil.DoRequest(newRouter(svc), testutil.NewRequest(t, http.MethodGet, "/identity/"+userID+"/verify"))

		testutil.AssertStatus(t, rr, http.StatusOK)
		state := testutil.UnmarshalResponse[ledger.IdentityState](t, rr)
		assert.True(t, state.Exists)
	})

	t.Run("unavailable ledger maps to 503", func(t *testing.T) {
		svc := &stubService{
			verify: func(domain.UserID) (*ledger.IdentityState, error) {
				return nil, dErrors.New(dErrors.CodeUnavailable, "node unreachable")
			},
		}
		rr := testutil.DoRequest(newRouter(svc), testutil.NewRequest(t, http.MethodGet, "/identity/"+userID+"/verify"))

		testutil.AssertStatusAndError(t, rr, http.StatusServiceUnavailable, string(dErrors.CodeUnavailable))
	})
}

func TestHandleVerifyProfile(t *testing.T) {
	svc := &stubService{
		verifyProfile: func(domain.UserID) (*identity.ProfileVerification, error) {
			return &identity.ProfileVerification{Status: identity.ProfileNoProfileHash}, nil
		},
	}
	rr := testutil.DoRequest(newRouter(svc), testutil.NewRequest(t, http.MethodGet, "/identity/"+uuid.NewString()+"/profile/verify"))

	testutil.AssertStatus(t, rr, http.StatusOK)
	result := testutil.UnmarshalResponse[identity.ProfileVerification](t, rr)
	require.Equal(t, identity.ProfileNoProfileHash, result.Status)
}

func TestHandleBackfillProfile(t *testing.T) {
	t.Run("returns the captured fingerprint", func(t *testing.T) {
		profileHash := domain.Hash32{2}
		svc := &stubService{
			backfill: func(hash domain.Hash32) (*identity.Record, error) {
				return &identity.Record{IdentityHash: hash, ProfileHash: &profileHash}, nil
			},
		}
		req := testutil.NewJSONRequest(t, http.MethodPost, "/identity/profile/backfill", map[string]string{
			"identity_hash": domain.Hash32{1}.Hex(),
		})
		rr := testutil.DoRequest(newRouter(svc), req)

		testutil.AssertStatus(t, rr, http.StatusOK)
		body := testutil.UnmarshalResponse[map[string]string](t, rr)
		assert.Equal(t, profileHash.Hex(), (*body)["profile_hash"])
	})

	t.Run("malformed hash is rejected before the service runs", func(t *testing.T) {
		called := false
		svc := &stubService{
			backfill: func(domain.Hash32) (*identity.Record, error) {
				called = true
				return nil, nil
			},
		}
		req := testutil.NewJSONRequest(t, http.MethodPost, "/identity/profile/backfill", map[string]string{
			"identity_hash": "0x1234",
		})
		rr := testutil.DoRequest(newRouter(svc), req)

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
		assert.False(t, called)
	})
}
