package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"civicledger/internal/audit"
	"civicledger/internal/hashing"
	"civicledger/internal/ledger"
	"civicledger/internal/platform/metrics"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
	"civicledger/pkg/platform/sentinel"
)

// Service implements the identity lifecycle. Ordering within each
// operation is deliberate: the chain write happens first and the pointer
// row second, so a crash between the two leaves an on-chain record with
// no pointer (recoverable via retry) rather than a pointer to nothing.
type Service struct {
	store    Store
	profiles ProfileSource
	client   *ledger.Client
	audit    *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(store Store, profiles ProfileSource, client *ledger.Client, auditor *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		profiles: profiles,
		client:   client,
		audit:    auditor,
		metrics:  m,
		logger:   logger,
	}
}

// IssueParams carries the inputs of one issuance attempt. AttemptID is
// minted by the caller per verification attempt; it is what makes a
// re-verification after revocation produce a fresh fingerprint.
type IssueParams struct {
	UserID    domain.UserID
	Email     string
	AttemptID string
}

func (p IssueParams) validate() error {
	if p.UserID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if p.Email == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "email is required")
	}
	if p.AttemptID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "attempt id is required")
	}
	return nil
}

// Issue anchors a new identity commitment for the user. At most one
// active identity may exist per user; a prior revoked identity does not
// block a fresh issuance. A leftover pending_retry record routes through
// the same on-chain-state-first path as RetryIssue.
func (s *Service) Issue(ctx context.Context, p IssueParams) (*IssueOutcome, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.FindByUser(ctx, p.UserID)
	switch {
	case err == nil && existing.Status == StatusActive:
		return nil, dErrors.New(dErrors.CodeAlreadyExists, "user already has an active identity")
	case err == nil && existing.Status == StatusPendingRetry:
		return s.retry(ctx, p, existing)
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return nil, fmt.Errorf("look up existing identity: %w", err)
	}

	res, err := s.client.IssueIdentity(ctx, p.UserID, p.Email, p.AttemptID)
	if err != nil {
		return nil, s.issueFailed(ctx, p, err)
	}
	return s.finishIssue(ctx, p, res.IdentityHash, res.Signature, res.TxResult, audit.ActionIssue, false)
}

// RetryIssue resumes an issuance that failed transiently. It checks
// on-chain state first: if the earlier transaction actually landed, the
// pointer row is backfilled instead of resubmitting, since a blind
// resubmission of an already-anchored fingerprint would revert.
func (s *Service) RetryIssue(ctx context.Context, p IssueParams) (*IssueOutcome, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.FindByUser(ctx, p.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no issuance attempt to retry")
	}
	if err != nil {
		return nil, fmt.Errorf("look up existing identity: %w", err)
	}
	if existing.Status == StatusActive {
		return nil, dErrors.New(dErrors.CodeAlreadyExists, "user already has an active identity")
	}
	if existing.Status != StatusPendingRetry {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identity is not pending retry")
	}
	return s.retry(ctx, p, existing)
}

func (s *Service) retry(ctx context.Context, p IssueParams, pending *Record) (*IssueOutcome, error) {
	hash := s.client.IdentityHash(p.UserID, p.Email, p.AttemptID)
	if hash != pending.IdentityHash {
		return nil, dErrors.New(dErrors.CodeBadRequest, "retry inputs do not match the pending attempt")
	}

	state, err := s.client.VerifyOnChainIdentity(ctx, hash)
	if err != nil {
		s.metrics.IncrementLedgerErrors("verify_identity")
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "cannot confirm on-chain state before retry", err)
	}
	if state.Exists {
		// The earlier submission landed; heal the pointer instead of
		// resubmitting. A backfilled row carries whatever provenance the
		// pending marker kept, usually nothing: the marker never saw a
		// receipt and the registry's verify view does not expose the
		// original transaction. The on-chain record stays authoritative.
		return s.finishIssue(ctx, p, hash, pending.IssuerSignature, ledger.TxResult{TxHash: pending.TxHash, BlockNumber: pending.BlockNumber}, audit.ActionIssueRetry, true)
	}

	res, err := s.client.IssueIdentity(ctx, p.UserID, p.Email, p.AttemptID)
	if err != nil {
		return nil, s.issueFailed(ctx, p, err)
	}
	return s.finishIssue(ctx, p, res.IdentityHash, res.Signature, res.TxResult, audit.ActionIssueRetry, false)
}

func (s *Service) finishIssue(ctx context.Context, p IssueParams, hash domain.Hash32, sig []byte, tx ledger.TxResult, action audit.Action, backfilled bool) (*IssueOutcome, error) {
	now := time.Now().UTC()
	rec := &Record{
		UserID:          p.UserID,
		IdentityHash:    hash,
		IssuerSignature: sig,
		Status:          StatusActive,
		TxHash:          tx.TxHash,
		BlockNumber:     tx.BlockNumber,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if fields, err := s.profiles.ProfileFields(ctx, p.UserID); err == nil {
		ph := hashing.ProfileHash(*fields)
		rec.ProfileHash = &ph
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "profile snapshot failed at issuance; identity stored without profile hash",
			"user_id", p.UserID.String(),
			"error", err,
		)
	}

	outcome := &IssueOutcome{
		IdentityHash: hash,
		Signature:    sig,
		TxHash:       tx.TxHash,
		BlockNumber:  tx.BlockNumber,
		Backfilled:   backfilled,
	}

	if err := s.store.Save(ctx, rec); err != nil {
		// The commitment is on chain but the pointer write failed. This
		// is a split-brain state, not a rollback; the caller gets the
		// outcome plus a distinctly coded error so an operator can
		// backfill via RetryIssue.
		s.logger.ErrorContext(ctx, "identity anchored on chain but pointer save failed",
			"user_id", p.UserID.String(),
			"identity_hash", hash.Hex(),
			"tx_hash", tx.TxHash,
			"error", err,
		)
		s.audit.Record(ctx, audit.Entry{
			Action:        action,
			SubjectUserID: p.UserID,
			IdentityHash:  &hash,
			TxHash:        tx.TxHash,
			ErrorMessage:  "pointer save failed after on-chain success: " + err.Error(),
			Metadata:      map[string]any{"split_brain": true},
		})
		return outcome, dErrors.Wrap(dErrors.CodeSplitBrain, "identity anchored on chain but local pointer save failed", err)
	}

	s.metrics.IdentitiesIssued.Inc()
	s.audit.Record(ctx, audit.Entry{
		Action:        action,
		SubjectUserID: p.UserID,
		IdentityHash:  &hash,
		TxHash:        tx.TxHash,
		Metadata:      map[string]any{"backfilled": backfilled},
	})
	return outcome, nil
}

func (s *Service) issueFailed(ctx context.Context, p IssueParams, cause error) error {
	hash := s.client.IdentityHash(p.UserID, p.Email, p.AttemptID)

	if dErrors.Retryable(cause) {
		now := time.Now().UTC()
		pending := &Record{
			UserID:       p.UserID,
			IdentityHash: hash,
			Status:       StatusPendingRetry,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.store.Save(ctx, pending); err != nil {
			s.logger.ErrorContext(ctx, "could not persist pending-retry marker",
				"user_id", p.UserID.String(),
				"error", err,
			)
		}
	}

	s.metrics.IncrementLedgerErrors("issue_identity")
	s.audit.Record(ctx, audit.Entry{
		Action:        audit.ActionIssueFailed,
		SubjectUserID: p.UserID,
		IdentityHash:  &hash,
		ErrorMessage:  cause.Error(),
	})
	return cause
}

// Revoke marks the user's identity revoked on chain and in the pointer
// store. Revocation is one-way.
func (s *Service) Revoke(ctx context.Context, userID domain.UserID) (*ledger.TxResult, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}

	rec, err := s.store.FindByUser(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user has no identity")
	}
	if err != nil {
		return nil, fmt.Errorf("look up identity: %w", err)
	}
	if rec.Status == StatusRevoked {
		return nil, dErrors.New(dErrors.CodeAlreadyRevoked, "identity is already revoked")
	}

	tx, err := s.client.RevokeIdentity(ctx, rec.IdentityHash)
	if err != nil {
		s.metrics.IncrementLedgerErrors("revoke_identity")
		s.audit.Record(ctx, audit.Entry{
			Action:        audit.ActionRevoke,
			SubjectUserID: userID,
			IdentityHash:  &rec.IdentityHash,
			ErrorMessage:  err.Error(),
		})
		return nil, err
	}

	if err := s.store.UpdateStatus(ctx, rec.IdentityHash, StatusRevoked); err != nil {
		s.logger.ErrorContext(ctx, "identity revoked on chain but pointer update failed",
			"user_id", userID.String(),
			"identity_hash", rec.IdentityHash.Hex(),
			"error", err,
		)
		s.audit.Record(ctx, audit.Entry{
			Action:        audit.ActionRevoke,
			SubjectUserID: userID,
			IdentityHash:  &rec.IdentityHash,
			TxHash:        tx.TxHash,
			ErrorMessage:  "pointer update failed after on-chain success: " + err.Error(),
			Metadata:      map[string]any{"split_brain": true},
		})
		return tx, dErrors.Wrap(dErrors.CodeSplitBrain, "identity revoked on chain but local pointer update failed", err)
	}

	s.metrics.IdentitiesRevoked.Inc()
	s.audit.Record(ctx, audit.Entry{
		Action:        audit.ActionRevoke,
		SubjectUserID: userID,
		IdentityHash:  &rec.IdentityHash,
		TxHash:        tx.TxHash,
	})
	return tx, nil
}

// Verify reads the on-chain state of the user's identity commitment. A
// missing pointer and an unreachable node are distinct outcomes: the
// first is a not-found, the second a coded unavailable error.
func (s *Service) Verify(ctx context.Context, userID domain.UserID) (*ledger.IdentityState, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}

	rec, err := s.store.FindByUser(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user has no identity")
	}
	if err != nil {
		return nil, fmt.Errorf("look up identity: %w", err)
	}

	state, err := s.client.VerifyOnChainIdentity(ctx, rec.IdentityHash)
	if err != nil {
		s.metrics.IncrementLedgerErrors("verify_identity")
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:        audit.ActionVerify,
		SubjectUserID: userID,
		IdentityHash:  &rec.IdentityHash,
		Metadata:      map[string]any{"exists": state.Exists, "revoked": state.Revoked},
	})
	return state, nil
}

// Find returns the pointer record without touching the chain.
func (s *Service) Find(ctx context.Context, userID domain.UserID) (*Record, error) {
	rec, err := s.store.FindByUser(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user has no identity")
	}
	return rec, err
}

// VerifyProfile recomputes the profile fingerprint from current fields
// and diffs it against the one captured at issuance. The no_identity and
// no_profile_hash outcomes are findings, not errors; tampering increments
// the tamper metric and writes a dedicated audit action.
func (s *Service) VerifyProfile(ctx context.Context, userID domain.UserID) (*ProfileVerification, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}

	rec, err := s.store.FindByUser(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &ProfileVerification{Status: ProfileNoIdentity}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up identity: %w", err)
	}
	if rec.ProfileHash == nil {
		// Issued before profile hashing existed. Permanent state; never
		// re-issued implicitly.
		return &ProfileVerification{Status: ProfileNoProfileHash}, nil
	}

	fields, err := s.profiles.ProfileFields(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load profile fields: %w", err)
	}

	current := hashing.ProfileHash(*fields)
	result := &ProfileVerification{
		StoredHash:  rec.ProfileHash,
		CurrentHash: &current,
	}
	if current == *rec.ProfileHash {
		result.Status = ProfileVerified
		result.Verified = true
		s.audit.Record(ctx, audit.Entry{
			Action:        audit.ActionVerifyProfile,
			SubjectUserID: userID,
			IdentityHash:  &rec.IdentityHash,
			Metadata:      map[string]any{"verified": true},
		})
		return result, nil
	}

	result.Status = ProfileTampered
	result.Tampered = true
	s.metrics.IncrementTamperDetected("profile")
	s.logger.WarnContext(ctx, "profile fingerprint mismatch",
		"user_id", userID.String(),
		"stored", rec.ProfileHash.Hex(),
		"current", current.Hex(),
	)
	s.audit.Record(ctx, audit.Entry{
		Action:        audit.ActionProfileTamper,
		SubjectUserID: userID,
		IdentityHash:  &rec.IdentityHash,
		Metadata: map[string]any{
			"stored_hash":  rec.ProfileHash.Hex(),
			"current_hash": current.Hex(),
		},
	})
	return result, nil
}

// BackfillProfileHash captures the current profile fingerprint for an
// identity that has none, healing the no_profile_hash state surfaced by
// VerifyProfile and the integrity sweep. Addressed by identity hash, as
// that is what operators read off the audit trail. An existing
// fingerprint is never overwritten; that would erase the tamper
// baseline.
func (s *Service) BackfillProfileHash(ctx context.Context, hash domain.Hash32) (*Record, error) {
	rec, err := s.store.FindByHash(ctx, hash)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no identity with that hash")
	}
	if err != nil {
		return nil, fmt.Errorf("look up identity: %w", err)
	}
	if rec.Status != StatusActive {
		return nil, dErrors.New(dErrors.CodeBadRequest, "only active identities can be backfilled")
	}
	if rec.ProfileHash != nil {
		return nil, dErrors.New(dErrors.CodeAlreadyExists, "identity already carries a profile fingerprint")
	}

	fields, err := s.profiles.ProfileFields(ctx, rec.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load profile fields: %w", err)
	}

	ph := hashing.ProfileHash(*fields)
	if err := s.store.SetProfileHash(ctx, hash, ph); err != nil {
		return nil, fmt.Errorf("persist profile hash: %w", err)
	}
	rec.ProfileHash = &ph

	s.audit.Record(ctx, audit.Entry{
		Action:        audit.ActionProfileBackfill,
		SubjectUserID: rec.UserID,
		IdentityHash:  &hash,
		Metadata:      map[string]any{"profile_hash": ph.Hex()},
	})
	return rec, nil
}

// ListActive exposes the active pointer set for integrity sweeps.
func (s *Service) ListActive(ctx context.Context, limit int) ([]*Record, error) {
	return s.store.ListActive(ctx, limit)
}
