// Package handler exposes content anchoring and reconciliation over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"civicledger/internal/content"
	"civicledger/internal/ledger"
	"civicledger/internal/transport/http/shared"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
)

// Service defines the content operations the transport needs.
type Service interface {
	Record(ctx context.Context, ref domain.ContentRef) (*content.AnchorOutcome, error)
	Delete(ctx context.Context, ref domain.ContentRef) (*ledger.TxResult, error)
	Verify(ctx context.Context, ref domain.ContentRef, force bool) (*content.Verification, error)
	IntegrityCheck(ctx context.Context, scope string, limit int) (*content.Summary, error)
}

// Handler handles content endpoints.
type Handler struct {
	contents Service
	logger   *slog.Logger
}

func New(contents Service, logger *slog.Logger) *Handler {
	return &Handler{contents: contents, logger: logger}
}

// Register registers the content routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/content/record", h.handleRecord)
	r.Post("/content/delete", h.handleDelete)
	r.Post("/content/verify", h.handleVerify)
	r.Post("/integrity/check", h.handleIntegrityCheck)
}

type refRequest struct {
	ContentID   string `json:"content_id"`
	ContentType string `json:"content_type"`
	UserID      string `json:"user_id,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

func decodeRef(r *http.Request) (domain.ContentRef, bool, error) {
	var req refRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.ContentRef{}, false, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	t, err := domain.ParseContentType(req.ContentType)
	if err != nil {
		return domain.ContentRef{}, false, err
	}
	ref := domain.ContentRef{ID: domain.ContentID(req.ContentID), Type: t}
	if req.UserID != "" {
		userID, err := domain.ParseUserID(req.UserID)
		if err != nil {
			return domain.ContentRef{}, false, err
		}
		ref.UserID = userID
	}
	if err := ref.Validate(); err != nil {
		return domain.ContentRef{}, false, err
	}
	return ref, req.Force, nil
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, _, err := decodeRef(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	outcome, err := h.contents.Record(ctx, ref)
	if err != nil {
		if outcome != nil && dErrors.HasCode(err, dErrors.CodeSplitBrain) {
			shared.WriteJSON(w, http.StatusAccepted, map[string]any{
				"outcome":     outcome,
				"split_brain": true,
			})
			return
		}
		h.logger.WarnContext(ctx, "content anchoring failed",
			"content_id", ref.ID.String(),
			"content_type", ref.Type.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, outcome)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, _, err := decodeRef(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	tx, err := h.contents.Delete(ctx, ref)
	if err != nil {
		h.logger.WarnContext(ctx, "content tombstone failed",
			"content_id", ref.ID.String(),
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
	ref, force, err := decodeRef(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.contents.Verify(ctx, ref, force)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleIntegrityCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := r.URL.Query().Get("scope")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	summary, err := h.contents.IntegrityCheck(ctx, scope, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, summary)
}
