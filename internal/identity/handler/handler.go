// Package handler exposes the identity lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicledger/internal/identity"
	"civicledger/internal/ledger"
	"civicledger/internal/transport/http/shared"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
)

// Service defines the identity operations the transport needs.
type Service interface {
	Issue(ctx context.Context, p identity.IssueParams) (*identity.IssueOutcome, error)
	RetryIssue(ctx context.Context, p identity.IssueParams) (*identity.IssueOutcome, error)
	Revoke(ctx context.Context, userID domain.UserID) (*ledger.TxResult, error)
	Verify(ctx context.Context, userID domain.UserID) (*ledger.IdentityState, error)
	VerifyProfile(ctx context.Context, userID domain.UserID) (*identity.ProfileVerification, error)
	BackfillProfileHash(ctx context.Context, hash domain.Hash32) (*identity.Record, error)
}

// Handler handles identity endpoints.
type Handler struct {
	identities Service
	logger     *slog.Logger
}

func New(identities Service, logger *slog.Logger) *Handler {
	return &Handler{identities: identities, logger: logger}
}

// Register registers the identity routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identity/issue", h.handleIssue)
	r.Post("/identity/retry", h.handleRetry)
	r.Post("/identity/{userID}/revoke", h.handleRevoke)
	r.Get("/identity/{userID}/verify", h.handleVerify)
	r.Get("/identity/{userID}/profile/verify", h.handleVerifyProfile)
	r.Post("/identity/profile/backfill", h.handleBackfillProfile)
}

type issueRequest struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	AttemptID string `json:"attempt_id"`
}

func (h *Handler) decodeIssue(r *http.Request) (identity.IssueParams, error) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return identity.IssueParams{}, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	userID, err := domain.ParseUserID(req.UserID)
	if err != nil {
		return identity.IssueParams{}, err
	}
	return identity.IssueParams{UserID: userID, Email: req.Email, AttemptID: req.AttemptID}, nil
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.decodeIssue(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	outcome, err := h.identities.Issue(ctx, p)
	if err != nil {
		if outcome != nil && dErrors.HasCode(err, dErrors.CodeSplitBrain) {
			// The anchor landed; report success with the split-brain
			// condition flagged so the caller can trigger a backfill.
			shared.WriteJSON(w, http.StatusAccepted, map[string]any{
				"outcome":     outcome,
				"split_brain": true,
			})
			return
		}
		h.logger.WarnContext(ctx, "identity issuance failed",
			"user_id", p.UserID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, outcome)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.decodeIssue(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	outcome, err := h.identities.RetryIssue(ctx, p)
	if err != nil {
		h.logger.WarnContext(ctx, "identity retry failed",
			"user_id", p.UserID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, outcome)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	tx, err := h.identities.Revoke(ctx, userID)
	if err != nil {
		h.logger.WarnContext(ctx, "identity revocation failed",
			"user_id", userID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"tx_hash":      tx.TxHash,
		"block_number": tx.BlockNumber,
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	state, err := h.identities.Verify(ctx, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, state)
}

type backfillRequest struct {
	IdentityHash string `json:"identity_hash"`
}

func (h *Handler) handleBackfillProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	hash, err := domain.ParseHash32(req.IdentityHash)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	rec, err := h.identities.BackfillProfileHash(ctx, hash)
	if err != nil {
		h.logger.WarnContext(ctx, "profile hash backfill failed",
			"identity_hash", hash.Hex(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"identity_hash": rec.IdentityHash.Hex(),
		"profile_hash":  rec.ProfileHash.Hex(),
	})
}

func (h *Handler) handleVerifyProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.identities.VerifyProfile(ctx, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}
