package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"civicledger/internal/audit"
	"civicledger/internal/hashing"
	"civicledger/internal/identity"
	"civicledger/internal/ledger"
	"civicledger/internal/platform/metrics"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
	"civicledger/pkg/platform/sentinel"
)

const (
	defaultSweepLimit = 50
	maxSweepLimit     = 500
	sweepConcurrency  = 8
)

// Service anchors content fingerprints and reconciles application rows
// against them.
type Service struct {
	pointers   PointerStore
	source     Source
	identities IdentityDirectory
	client     *ledger.Client
	cache      *VerificationCache
	audit      *audit.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(pointers PointerStore, source Source, identities IdentityDirectory, client *ledger.Client, cache *VerificationCache, auditor *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		pointers:   pointers,
		source:     source,
		identities: identities,
		client:     client,
		cache:      cache,
		audit:      auditor,
		metrics:    m,
		logger:     logger,
	}
}

// Record anchors the current state of one application row. The acting
// user must hold an active identity; the anchor binds the content
// fingerprint to that identity's hash. Edits are anchored by calling
// Record again: a fresh key is minted every time and the newest pointer
// wins.
func (s *Service) Record(ctx context.Context, ref domain.ContentRef) (*AnchorOutcome, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	snap, err := s.source.Snapshot(ctx, ref)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "content not found")
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot content: %w", err)
	}

	idRec, err := s.identities.Find(ctx, snap.OwnerID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotAuthorized, "content owner has no identity")
		}
		return nil, err
	}
	if idRec.Status != identity.StatusActive {
		return nil, dErrors.New(dErrors.CodeNotAuthorized, "content owner's identity is not active")
	}

	hash := hashing.ContentHash(snap.Fields)
	key := domain.NewRecordKey()

	res, err := s.client.RecordContent(ctx, key, hash, idRec.IdentityHash, ref.Type)
	if err != nil {
		s.metrics.IncrementLedgerErrors("record_content")
		s.audit.Record(ctx, audit.Entry{
			Action:        audit.ActionRecordContentFailed,
			SubjectUserID: snap.OwnerID,
			IdentityHash:  &idRec.IdentityHash,
			ErrorMessage:  err.Error(),
			Metadata: map[string]any{
				"content_type": string(ref.Type),
				"subject_id":   SubjectID(ref).String(),
			},
		})
		return nil, err
	}

	outcome := &AnchorOutcome{
		Key:         key,
		ContentHash: hash,
		TxHash:      res.TxHash,
		BlockNumber: res.BlockNumber,
	}

	rec := &Record{
		Key:              key,
		SubjectID:        SubjectID(ref),
		Type:             ref.Type,
		ContentHash:      hash,
		UserIdentityHash: idRec.IdentityHash,
		TxHash:           res.TxHash,
		BlockNumber:      res.BlockNumber,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.pointers.Save(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "content anchored on chain but pointer save failed",
			"record_key", key.String(),
			"subject_id", rec.SubjectID.String(),
			"tx_hash", res.TxHash,
			"error", err,
		)
		s.audit.Record(ctx, audit.Entry{
			Action:        audit.ActionRecordContent,
			SubjectUserID: snap.OwnerID,
			IdentityHash:  &idRec.IdentityHash,
			TxHash:        res.TxHash,
			ErrorMessage:  "pointer save failed after on-chain success: " + err.Error(),
			Metadata:      map[string]any{"split_brain": true, "record_key": key.String()},
		})
		return outcome, dErrors.Wrap(dErrors.CodeSplitBrain, "content anchored on chain but local pointer save failed", err)
	}

	s.cache.Invalidate(ctx, rec.SubjectID, ref.Type)
	s.metrics.ContentAnchored.Inc()
	s.audit.Record(ctx, audit.Entry{
		Action:        audit.ActionRecordContent,
		SubjectUserID: snap.OwnerID,
		IdentityHash:  &idRec.IdentityHash,
		TxHash:        res.TxHash,
		Metadata: map[string]any{
			"content_type": string(ref.Type),
			"subject_id":   rec.SubjectID.String(),
			"record_key":   key.String(),
			"content_hash": hash.Hex(),
		},
	})
	return outcome, nil
}

// Delete tombstones the latest anchor for the reference. The fingerprint
// stays on chain; only the deleted flag flips, so the trail still shows
// that the content existed.
func (s *Service) Delete(ctx context.Context, ref domain.ContentRef) (*ledger.TxResult, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	subjectID := SubjectID(ref)
	ptr, err := s.pointers.Latest(ctx, subjectID, ref.Type)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "content was never anchored")
	}
	if err != nil {
		return nil, fmt.Errorf("look up anchor pointer: %w", err)
	}
	if ptr.IsDeleted {
		return nil, dErrors.New(dErrors.CodeAlreadyDeleted, "anchor is already tombstoned")
	}

	tx, err := s.client.DeleteContent(ctx, ptr.Key)
	if err != nil {
		s.metrics.IncrementLedgerErrors("delete_content")
		s.audit.Record(ctx, audit.Entry{
			Action:       audit.ActionDeleteContentFailed,
			ErrorMessage: err.Error(),
			Metadata: map[string]any{
				"content_type": string(ref.Type),
				"subject_id":   subjectID.String(),
				"record_key":   ptr.Key.String(),
			},
		})
		return nil, err
	}

	if err := s.pointers.MarkDeleted(ctx, ptr.Key); err != nil {
		s.logger.ErrorContext(ctx, "anchor tombstoned on chain but pointer update failed",
			"record_key", ptr.Key.String(),
			"error", err,
		)
		s.audit.Record(ctx, audit.Entry{
			Action:       audit.ActionDeleteContent,
			TxHash:       tx.TxHash,
			ErrorMessage: "pointer update failed after on-chain success: " + err.Error(),
			Metadata: map[string]any{
				"split_brain": true,
				"subject_id":  subjectID.String(),
				"record_key":  ptr.Key.String(),
			},
		})
		return tx, dErrors.Wrap(dErrors.CodeSplitBrain, "anchor tombstoned on chain but local pointer update failed", err)
	}

	s.cache.Invalidate(ctx, subjectID, ref.Type)
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionDeleteContent,
		TxHash: tx.TxHash,
		Metadata: map[string]any{
			"content_type": string(ref.Type),
			"subject_id":   subjectID.String(),
			"record_key":   ptr.Key.String(),
		},
	})
	return tx, nil
}

// Verify reconciles one application row against its latest anchor.
//
// The outcome taxonomy is strict: a row that was never anchored is
// not_recorded, a hash mismatch is tampered, and an unreachable ledger
// leaves LedgerChecked false with status unconfirmed. None of these are
// errors; callers get a finding either way. Only input validation and
// store failures error out.
func (s *Service) Verify(ctx context.Context, ref domain.ContentRef, force bool) (*Verification, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	timer := time.Now()
	defer func() { s.metrics.VerifyDuration.Observe(time.Since(timer).Seconds()) }()

	subjectID := SubjectID(ref)
	if !force {
		if cached, ok := s.cache.Get(ctx, subjectID, ref.Type); ok {
			return cached, nil
		}
	}

	v := &Verification{CheckedAt: time.Now().UTC()}

	snap, err := s.source.Snapshot(ctx, ref)
	if errors.Is(err, sentinel.ErrNotFound) {
		v.Status = StatusNotFound
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot content: %w", err)
	}

	current := hashing.ContentHash(snap.Fields)
	v.CurrentHash = &current

	ptr, err := s.pointers.Latest(ctx, subjectID, ref.Type)
	if errors.Is(err, sentinel.ErrNotFound) {
		v.Status = StatusNotRecorded
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up anchor pointer: %w", err)
	}

	v.RecordedHash = &ptr.ContentHash
	v.TxHash = ptr.TxHash
	v.BlockNumber = ptr.BlockNumber
	v.IsDeleted = ptr.IsDeleted
	v.Tampered = current != ptr.ContentHash

	state, chainErr := s.client.VerifyContent(ctx, ptr.Key)
	if chainErr != nil {
		s.metrics.IncrementLedgerErrors("verify_content")
		s.logger.WarnContext(ctx, "ledger unreachable during verification; reporting unconfirmed",
			"subject_id", subjectID.String(),
			"error", chainErr,
		)
	} else {
		v.LedgerChecked = true
		v.OnChain = state.Exists
		if state.Exists {
			onChain := state.ContentHash
			v.OnChainHash = &onChain
			v.OnChainMismatch = onChain != ptr.ContentHash
			if state.IsDeleted {
				v.IsDeleted = true
			}
		}
	}

	switch {
	case v.Tampered:
		v.Status = StatusTampered
		s.metrics.IncrementTamperDetected("content")
	case v.LedgerChecked && v.OnChain && !v.OnChainMismatch:
		v.Status = StatusVerified
		v.Verified = true
	default:
		// Off-chain hashes agree but the chain could not confirm, either
		// because the node is unreachable or the record is absent or
		// mismatched on chain.
		v.Status = StatusUnconfirmed
	}

	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionVerify,
		TxHash: ptr.TxHash,
		Metadata: map[string]any{
			"content_type":   string(ref.Type),
			"subject_id":     subjectID.String(),
			"status":         string(v.Status),
			"ledger_checked": v.LedgerChecked,
		},
	})
	s.cache.Set(ctx, subjectID, ref.Type, v)
	return v, nil
}

// IntegrityCheck sweeps anchored content and active identities,
// reconciling each item. Scope is "content", "identities", or "all".
// Items are checked concurrently with bounded parallelism; one bad item
// never aborts the sweep.
func (s *Service) IntegrityCheck(ctx context.Context, scope string, limit int) (*Summary, error) {
	switch scope {
	case "", "all":
		scope = "all"
	case "content", "identities":
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "scope must be one of: all, content, identities")
	}
	if limit <= 0 || limit > maxSweepLimit {
		limit = defaultSweepLimit
	}

	summary := &Summary{Scope: scope, StartedAt: time.Now().UTC()}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	if scope == "all" || scope == "content" {
		records, err := s.pointers.ListLatest(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list anchor pointers: %w", err)
		}
		for _, rec := range records {
			rec := rec
			g.Go(func() error {
				v, err := s.verifyPointer(gctx, rec)
				mu.Lock()
				defer mu.Unlock()
				summary.CheckedContent++
				switch {
				case err != nil || v == nil:
					summary.Skipped++
				case v.Status == StatusTampered:
					summary.TamperedCount++
					summary.Flagged = append(summary.Flagged, CheckItem{
						Kind:   "content",
						ID:     rec.SubjectID.String(),
						Type:   rec.Type,
						Status: string(v.Status),
					})
				case v.Status != StatusVerified:
					summary.Skipped++
				}
				return nil
			})
		}
	}

	if scope == "all" || scope == "identities" {
		identities, err := s.identities.ListActive(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list active identities: %w", err)
		}
		for _, rec := range identities {
			rec := rec
			g.Go(func() error {
				pv, err := s.identities.VerifyProfile(gctx, rec.UserID)
				mu.Lock()
				defer mu.Unlock()
				summary.CheckedIdentities++
				switch {
				case err != nil:
					summary.Skipped++
				case pv.Status == identity.ProfileTampered:
					summary.TamperedCount++
					summary.Flagged = append(summary.Flagged, CheckItem{
						Kind:   "identity",
						ID:     rec.UserID.String(),
						Status: string(pv.Status),
					})
				case pv.Status == identity.ProfileNoProfileHash:
					summary.NoProfileHash++
				case pv.Status != identity.ProfileVerified:
					summary.Skipped++
				}
				return nil
			})
		}
	}

	// Workers never return errors; Wait only propagates context
	// cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.FinishedAt = time.Now().UTC()
	summary.Clean = summary.TamperedCount == 0 && summary.Skipped == 0

	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionIntegrityCheck,
		Metadata: map[string]any{
			"scope":              scope,
			"checked_content":    summary.CheckedContent,
			"checked_identities": summary.CheckedIdentities,
			"tampered":           summary.TamperedCount,
			"skipped":            summary.Skipped,
			"clean":              summary.Clean,
		},
	})
	if summary.TamperedCount > 0 {
		s.logger.WarnContext(ctx, "integrity sweep found mismatches",
			"scope", scope,
			"tampered", summary.TamperedCount,
		)
	}
	return summary, nil
}

// verifyPointer reconciles one pointer record without knowing the
// original ContentRef, reconstructing it from the stored subject id.
func (s *Service) verifyPointer(ctx context.Context, rec *Record) (*Verification, error) {
	ref, err := refFromSubject(rec.SubjectID, rec.Type)
	if err != nil {
		return nil, err
	}
	return s.Verify(ctx, ref, true)
}

// refFromSubject inverts SubjectID.
func refFromSubject(subjectID domain.ContentID, t domain.ContentType) (domain.ContentRef, error) {
	ref := domain.ContentRef{ID: subjectID, Type: t}
	if !t.IsVote() {
		return ref, nil
	}
	parts := strings.SplitN(subjectID.String(), "/", 2)
	if len(parts) != 2 {
		return domain.ContentRef{}, dErrors.New(dErrors.CodeInternal, "corrupt vote subject id")
	}
	userID, err := domain.ParseUserID(parts[1])
	if err != nil {
		return domain.ContentRef{}, err
	}
	ref.ID = domain.ContentID(parts[0])
	ref.UserID = userID
	return ref, nil
}
