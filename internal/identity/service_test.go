package identity_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicledger/internal/audit"
	"civicledger/internal/hashing"
	"civicledger/internal/identity"
	identityStore "civicledger/internal/identity/store"
	"civicledger/internal/ledger"
	"civicledger/internal/ledger/memory"
	"civicledger/internal/platform/metrics"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
	"civicledger/pkg/platform/sentinel"
)

// One metrics registration per test binary; promauto registers globally.
var (
	metricsOnce sync.Once
	testMetrics *metrics.Metrics
)

func sharedMetrics() *metrics.Metrics {
	metricsOnce.Do(func() { testMetrics = metrics.New() })
	return testMetrics
}

type fixture struct {
	service  *identity.Service
	store    *flakyStore
	profiles *profileSource
	backend  *memory.Backend
	trail    *audit.MemoryStore
}

// flakyStore wraps the memory store so tests can fail the pointer write
// after a successful chain write.
type flakyStore struct {
	identity.Store
	failSave bool
}

func (f *flakyStore) Save(ctx context.Context, rec *identity.Record) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.Store.Save(ctx, rec)
}

type profileSource struct {
	mu     sync.Mutex
	fields map[domain.UserID]hashing.ProfileFields
}

func (p *profileSource) set(f hashing.ProfileFields) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields[f.UserID] = f
}

func (p *profileSource) ProfileFields(_ context.Context, userID domain.UserID) (*hashing.ProfileFields, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.fields[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := f
	return &cp, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, err := memory.NewWithKey()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := ledger.NewClient(backend, hashing.New("test-salt"), 0, logger)

	store := &flakyStore{Store: identityStore.NewMemory()}
	profiles := &profileSource{fields: make(map[domain.UserID]hashing.ProfileFields)}
	trail := audit.NewMemoryStore()
	publisher := audit.NewPublisher(trail, nil, logger)

	return &fixture{
		service:  identity.NewService(store, profiles, client, publisher, sharedMetrics(), logger),
		store:    store,
		profiles: profiles,
		backend:  backend,
		trail:    trail,
	}
}

func params() identity.IssueParams {
	return identity.IssueParams{
		UserID:    domain.UserID(uuid.New()),
		Email:     "citizen@example.org",
		AttemptID: uuid.NewString(),
	}
}

func lastAction(t *testing.T, trail *audit.MemoryStore) audit.Action {
	t.Helper()
	entries := trail.All()
	require.NotEmpty(t, entries)
	return entries[len(entries)-1].Action
}

func TestIssue(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path anchors and stores the pointer", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		f.profiles.set(hashing.ProfileFields{UserID: p.UserID, FirstName: "Ada", Role: "citizen"})

		outcome, err := f.service.Issue(ctx, p)
		require.NoError(t, err)
		assert.False(t, outcome.IdentityHash.IsZero())
		assert.NotEmpty(t, outcome.Signature)
		assert.NotEmpty(t, outcome.TxHash)

		rec, err := f.service.Find(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, identity.StatusActive, rec.Status)
		require.NotNil(t, rec.ProfileHash, "profile fingerprint captured at issuance")
		assert.Equal(t, audit.ActionIssue, lastAction(t, f.trail))
	})

	t.Run("second active identity is rejected", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		_, err := f.service.Issue(ctx, p)
		require.NoError(t, err)

		p2 := p
		p2.AttemptID = uuid.NewString()
		_, err = f.service.Issue(ctx, p2)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("re-issuance after revocation succeeds with a new attempt", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		_, err := f.service.Issue(ctx, p)
		require.NoError(t, err)
		_, err = f.service.Revoke(ctx, p.UserID)
		require.NoError(t, err)

		p2 := p
		p2.AttemptID = uuid.NewString()
		outcome, err := f.service.Issue(ctx, p2)
		require.NoError(t, err)
		assert.False(t, outcome.IdentityHash.IsZero())
	})

	t.Run("validation failures carry the invalid_input code", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Issue(ctx, identity.IssueParams{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("transient ledger failure leaves a pending retry marker", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		f.backend.SetOffline(true)

		_, err := f.service.Issue(ctx, p)
		require.Error(t, err)
		assert.True(t, dErrors.Retryable(err))

		rec, err := f.service.Find(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, identity.StatusPendingRetry, rec.Status)
		assert.Equal(t, audit.ActionIssueFailed, lastAction(t, f.trail))
	})

	t.Run("pointer save failure after chain success is split brain", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		f.store.failSave = true

		outcome, err := f.service.Issue(ctx, p)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSplitBrain))
		require.NotNil(t, outcome, "the anchor landed; caller must see the outcome")

		// chain has it, pointer store does not
		state, verr := f.service.Verify(ctx, p.UserID)
		assert.Nil(t, state)
		assert.True(t, dErrors.HasCode(verr, dErrors.CodeNotFound))
	})
}

func TestRetryIssue(t *testing.T) {
	ctx := context.Background()

	t.Run("resubmits when the chain has nothing", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		f.backend.SetOffline(true)
		_, err := f.service.Issue(ctx, p)
		require.Error(t, err)

		f.backend.SetOffline(false)
		outcome, err := f.service.RetryIssue(ctx, p)
		require.NoError(t, err)
		assert.False(t, outcome.Backfilled)

		rec, err := f.service.Find(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, identity.StatusActive, rec.Status)
	})

	t.Run("backfills when the earlier transaction landed", func(t *testing.T) {
		f := newFixture(t)
		p := params()

		// Anchor on chain behind the service's back, then leave a
		// pending marker, simulating a crash after inclusion.
		client := ledger.NewClient(f.backend, hashing.New("test-salt"), 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
		res, err := client.IssueIdentity(ctx, p.UserID, p.Email, p.AttemptID)
		require.NoError(t, err)
		require.NoError(t, f.store.Save(ctx, &identity.Record{
			UserID:       p.UserID,
			IdentityHash: res.IdentityHash,
			Status:       identity.StatusPendingRetry,
		}))

		outcome, err := f.service.RetryIssue(ctx, p)
		require.NoError(t, err)
		assert.True(t, outcome.Backfilled)
		assert.Equal(t, res.IdentityHash, outcome.IdentityHash)

		rec, err := f.service.Find(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, identity.StatusActive, rec.Status)
		assert.Empty(t, rec.TxHash, "backfilled rows carry no transaction provenance")
	})

	t.Run("refuses to retry with different inputs", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		f.backend.SetOffline(true)
		_, err := f.service.Issue(ctx, p)
		require.Error(t, err)
		f.backend.SetOffline(false)

		changed := p
		changed.Email = "other@example.org"
		_, err = f.service.RetryIssue(ctx, changed)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("cannot confirm state while the node is down", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		f.backend.SetOffline(true)
		_, err := f.service.Issue(ctx, p)
		require.Error(t, err)

		_, err = f.service.RetryIssue(ctx, p)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()

	t.Run("revocation is one-way", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		_, err := f.service.Issue(ctx, p)
		require.NoError(t, err)

		tx, err := f.service.Revoke(ctx, p.UserID)
		require.NoError(t, err)
		assert.NotEmpty(t, tx.TxHash)

		state, err := f.service.Verify(ctx, p.UserID)
		require.NoError(t, err)
		assert.True(t, state.Revoked)

		_, err = f.service.Revoke(ctx, p.UserID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Revoke(ctx, domain.UserID(uuid.New()))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestVerifyProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("verified when fields are unchanged", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		f.profiles.set(hashing.ProfileFields{UserID: p.UserID, FirstName: "Ada", Role: "citizen"})
		_, err := f.service.Issue(ctx, p)
		require.NoError(t, err)

		result, err := f.service.VerifyProfile(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, identity.ProfileVerified, result.Status)
		assert.True(t, result.Verified)
	})

	t.Run("tampered when a field changed", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		f.profiles.set(hashing.ProfileFields{UserID: p.UserID, FirstName: "Ada", Role: "citizen"})
		_, err := f.service.Issue(ctx, p)
		require.NoError(t, err)

		f.profiles.set(hashing.ProfileFields{UserID: p.UserID, FirstName: "Ada", Role: "moderator"})
		result, err := f.service.VerifyProfile(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, identity.ProfileTampered, result.Status)
		assert.True(t, result.Tampered)
		assert.NotEqual(t, result.StoredHash.Hex(), result.CurrentHash.Hex())
		assert.Equal(t, audit.ActionProfileTamper, lastAction(t, f.trail))
	})

	t.Run("no identity is a finding, not an error", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.service.VerifyProfile(ctx, domain.UserID(uuid.New()))
		require.NoError(t, err)
		assert.Equal(t, identity.ProfileNoIdentity, result.Status)
	})

	t.Run("identities without a profile hash are a distinct permanent state", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		// No profile at issuance time: the record carries no hash.
		_, err := f.service.Issue(ctx, p)
		require.NoError(t, err)

		f.profiles.set(hashing.ProfileFields{UserID: p.UserID, FirstName: "Ada"})
		result, err := f.service.VerifyProfile(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, identity.ProfileNoProfileHash, result.Status)
		assert.False(t, result.Tampered, "missing hash must never read as tampering")
	})
}

func TestBackfillProfileHash(t *testing.T) {
	ctx := context.Background()

	t.Run("heals a no_profile_hash identity", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		// No profile at issuance time: the record carries no hash.
		_, err := f.service.Issue(ctx, p)
		require.NoError(t, err)
		rec, err := f.service.Find(ctx, p.UserID)
		require.NoError(t, err)
		require.Nil(t, rec.ProfileHash)

		f.profiles.set(hashing.ProfileFields{UserID: p.UserID, FirstName: "Ada", Role: "citizen"})
		healed, err := f.service.BackfillProfileHash(ctx, rec.IdentityHash)
		require.NoError(t, err)
		require.NotNil(t, healed.ProfileHash)
		assert.Equal(t, audit.ActionProfileBackfill, lastAction(t, f.trail))

		result, err := f.service.VerifyProfile(ctx, p.UserID)
		require.NoError(t, err)
		assert.Equal(t, identity.ProfileVerified, result.Status)
	})

	t.Run("never overwrites an existing fingerprint", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		f.profiles.set(hashing.ProfileFields{UserID: p.UserID, FirstName: "Ada", Role: "citizen"})
		outcome, err := f.service.Issue(ctx, p)
		require.NoError(t, err)

		_, err = f.service.BackfillProfileHash(ctx, outcome.IdentityHash)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("unknown hash is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.BackfillProfileHash(ctx, domain.Hash32{7})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("requires a profile row", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		_, err := f.service.Issue(ctx, p)
		require.NoError(t, err)
		rec, err := f.service.Find(ctx, p.UserID)
		require.NoError(t, err)

		_, err = f.service.BackfillProfileHash(ctx, rec.IdentityHash)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("revoked identities are rejected", func(t *testing.T) {
		f := newFixture(t)
		p := params()
		_, err := f.service.Issue(ctx, p)
		require.NoError(t, err)
		rec, err := f.service.Find(ctx, p.UserID)
		require.NoError(t, err)
		_, err = f.service.Revoke(ctx, p.UserID)
		require.NoError(t, err)

		f.profiles.set(hashing.ProfileFields{UserID: p.UserID, FirstName: "Ada"})
		_, err = f.service.BackfillProfileHash(ctx, rec.IdentityHash)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
