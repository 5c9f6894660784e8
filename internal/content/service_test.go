package content_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicledger/internal/audit"
	"civicledger/internal/content"
	contentStore "civicledger/internal/content/store"
	"civicledger/internal/forum"
	"civicledger/internal/hashing"
	"civicledger/internal/identity"
	identityStore "civicledger/internal/identity/store"
	"civicledger/internal/ledger"
	"civicledger/internal/ledger/memory"
	"civicledger/internal/platform/metrics"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
)

var (
	metricsOnce sync.Once
	testMetrics *metrics.Metrics
)

func sharedMetrics() *metrics.Metrics {
	metricsOnce.Do(func() { testMetrics = metrics.New() })
	return testMetrics
}

type fixture struct {
	contents   *content.Service
	identities *identity.Service
	source     *forum.MemorySource
	backend    *memory.Backend
	trail      *audit.MemoryStore
}

// failingPointers fails pointer updates after the chain write, for the
// split-brain paths.
type failingPointers struct {
	content.PointerStore
	failMarkDeleted bool
}

func (f *failingPointers) MarkDeleted(ctx context.Context, key domain.RecordKey) error {
	if f.failMarkDeleted {
		return errors.New("disk full")
	}
	return f.PointerStore.MarkDeleted(ctx, key)
}

func countActions(t *testing.T, trail *audit.MemoryStore, action audit.Action) int {
	t.Helper()
	n := 0
	for _, e := range trail.All() {
		if e.Action == action {
			n++
		}
	}
	return n
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithPointers(t, contentStore.NewMemory())
}

func newFixtureWithPointers(t *testing.T, pointers content.PointerStore) *fixture {
	t.Helper()
	backend, err := memory.NewWithKey()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := ledger.NewClient(backend, hashing.New("test-salt"), 0, logger)

	source := forum.NewMemorySource()
	trail := audit.NewMemoryStore()
	publisher := audit.NewPublisher(trail, nil, logger)
	m := sharedMetrics()

	identities := identity.NewService(identityStore.NewMemory(), source, client, publisher, m, logger)
	contents := content.NewService(pointers, source, identities, client, nil, publisher, m, logger)

	return &fixture{
		contents:   contents,
		identities: identities,
		source:     source,
		backend:    backend,
		trail:      trail,
	}
}

// seedAuthor creates a user with an active identity and one issue row.
func (f *fixture) seedAuthor(t *testing.T) (domain.UserID, domain.ContentRef) {
	t.Helper()
	userID := domain.UserID(uuid.New())
	_, err := f.identities.Issue(context.Background(), identity.IssueParams{
		UserID:    userID,
		Email:     fmt.Sprintf("%s@example.org", userID.String()[:8]),
		AttemptID: uuid.NewString(),
	})
	require.NoError(t, err)

	issueID := domain.ContentID(uuid.NewString())
	f.source.PutIssue(hashing.IssueFields{
		ID:        issueID,
		Title:     "Pothole on Main",
		Narrative: "Deep pothole near the crosswalk.",
		IssueType: "infrastructure",
		Topic:     "roads",
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	})
	return userID, domain.ContentRef{ID: issueID, Type: domain.ContentTypeIssue}
}

func TestRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("anchors current content state", func(t *testing.T) {
		f := newFixture(t)
		_, ref := f.seedAuthor(t)

		outcome, err := f.contents.Record(ctx, ref)
		require.NoError(t, err)
		assert.False(t, outcome.ContentHash.IsZero())
		assert.False(t, outcome.Key.IsNil())
		assert.NotEmpty(t, outcome.TxHash)
	})

	t.Run("re-anchoring mints a fresh key", func(t *testing.T) {
		f := newFixture(t)
		_, ref := f.seedAuthor(t)

		first, err := f.contents.Record(ctx, ref)
		require.NoError(t, err)
		second, err := f.contents.Record(ctx, ref)
		require.NoError(t, err)
		assert.NotEqual(t, first.Key, second.Key, "content id must never be the on-chain key")
	})

	t.Run("owner without an identity cannot anchor", func(t *testing.T) {
		f := newFixture(t)
		issueID := domain.ContentID(uuid.NewString())
		f.source.PutIssue(hashing.IssueFields{
			ID:     issueID,
			Title:  "No identity",
			UserID: domain.UserID(uuid.New()),
		})
		_, err := f.contents.Record(ctx, domain.ContentRef{ID: issueID, Type: domain.ContentTypeIssue})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})

	t.Run("missing row is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.contents.Record(ctx, domain.ContentRef{ID: "nope", Type: domain.ContentTypeIssue})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("vote is addressed by parent and voter", func(t *testing.T) {
		f := newFixture(t)
		voterID, ref := f.seedAuthor(t)
		f.source.PutVote(hashing.VoteFields{
			IssueID:   ref.ID,
			UserID:    voterID,
			Value:     1,
			UpdatedAt: time.Now().UTC(),
		})

		voteRef := domain.ContentRef{ID: ref.ID, Type: domain.ContentTypeVote, UserID: voterID}
		outcome, err := f.contents.Record(ctx, voteRef)
		require.NoError(t, err)
		assert.False(t, outcome.ContentHash.IsZero())

		v, err := f.contents.Verify(ctx, voteRef, false)
		require.NoError(t, err)
		assert.Equal(t, content.StatusVerified, v.Status)
	})

	t.Run("vote without user id is invalid", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.contents.Record(ctx, domain.ContentRef{ID: "issue-1", Type: domain.ContentTypeVote})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("verified when content is unchanged", func(t *testing.T) {
		f := newFixture(t)
		_, ref := f.seedAuthor(t)
		_, err := f.contents.Record(ctx, ref)
		require.NoError(t, err)

		v, err := f.contents.Verify(ctx, ref, false)
		require.NoError(t, err)
		assert.Equal(t, content.StatusVerified, v.Status)
		assert.True(t, v.Verified)
		assert.True(t, v.LedgerChecked)
		assert.True(t, v.OnChain)
		assert.False(t, v.Tampered)
	})

	t.Run("tampered after a silent edit", func(t *testing.T) {
		f := newFixture(t)
		userID, ref := f.seedAuthor(t)
		_, err := f.contents.Record(ctx, ref)
		require.NoError(t, err)

		f.source.PutIssue(hashing.IssueFields{
			ID:        ref.ID,
			Title:     "Pothole on Main",
			Narrative: "Nothing to see here.",
			IssueType: "infrastructure",
			Topic:     "roads",
			UserID:    userID,
			CreatedAt: time.Now().UTC(),
		})

		v, err := f.contents.Verify(ctx, ref, false)
		require.NoError(t, err)
		assert.Equal(t, content.StatusTampered, v.Status)
		assert.True(t, v.Tampered)
		assert.False(t, v.Verified)
		assert.NotEqual(t, v.CurrentHash.Hex(), v.RecordedHash.Hex())
	})

	t.Run("never anchored is not_recorded, not tampered", func(t *testing.T) {
		f := newFixture(t)
		_, ref := f.seedAuthor(t)

		v, err := f.contents.Verify(ctx, ref, false)
		require.NoError(t, err)
		assert.Equal(t, content.StatusNotRecorded, v.Status)
		assert.False(t, v.Tampered)
	})

	t.Run("missing row is not_found", func(t *testing.T) {
		f := newFixture(t)
		v, err := f.contents.Verify(ctx, domain.ContentRef{ID: "ghost", Type: domain.ContentTypeIssue}, false)
		require.NoError(t, err)
		assert.Equal(t, content.StatusNotFound, v.Status)
	})

	t.Run("unreachable ledger is unconfirmed, never tampered", func(t *testing.T) {
		f := newFixture(t)
		_, ref := f.seedAuthor(t)
		_, err := f.contents.Record(ctx, ref)
		require.NoError(t, err)

		f.backend.SetOffline(true)
		v, err := f.contents.Verify(ctx, ref, false)
		require.NoError(t, err, "connectivity failure is a soft failure, not an error")
		assert.Equal(t, content.StatusUnconfirmed, v.Status)
		assert.False(t, v.LedgerChecked)
		assert.False(t, v.Tampered)
		assert.False(t, v.Verified)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("tombstones the anchor", func(t *testing.T) {
		f := newFixture(t)
		_, ref := f.seedAuthor(t)
		_, err := f.contents.Record(ctx, ref)
		require.NoError(t, err)

		tx, err := f.contents.Delete(ctx, ref)
		require.NoError(t, err)
		assert.NotEmpty(t, tx.TxHash)

		v, err := f.contents.Verify(ctx, ref, true)
		require.NoError(t, err)
		assert.True(t, v.IsDeleted)

		_, err = f.contents.Delete(ctx, ref)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyDeleted))
	})

	t.Run("never anchored cannot be tombstoned", func(t *testing.T) {
		f := newFixture(t)
		_, ref := f.seedAuthor(t)
		_, err := f.contents.Delete(ctx, ref)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("failed tombstone attempt leaves an audit entry", func(t *testing.T) {
		f := newFixture(t)
		_, ref := f.seedAuthor(t)
		_, err := f.contents.Record(ctx, ref)
		require.NoError(t, err)

		f.backend.SetOffline(true)
		_, err = f.contents.Delete(ctx, ref)
		require.Error(t, err)
		assert.Equal(t, 1, countActions(t, f.trail, audit.ActionDeleteContentFailed))
	})

	t.Run("split brain tombstone is audited with the tx hash", func(t *testing.T) {
		pointers := &failingPointers{PointerStore: contentStore.NewMemory()}
		f := newFixtureWithPointers(t, pointers)
		_, ref := f.seedAuthor(t)
		_, err := f.contents.Record(ctx, ref)
		require.NoError(t, err)

		pointers.failMarkDeleted = true
		tx, err := f.contents.Delete(ctx, ref)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSplitBrain))
		require.NotNil(t, tx, "the tombstone landed; caller must see the transaction")

		entries := f.trail.All()
		require.NotEmpty(t, entries)
		last := entries[len(entries)-1]
		assert.Equal(t, audit.ActionDeleteContent, last.Action)
		assert.Equal(t, tx.TxHash, last.TxHash)
		assert.Equal(t, true, last.Metadata["split_brain"])
	})
}

func TestIntegrityCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("clean sweep over untouched content", func(t *testing.T) {
		f := newFixture(t)
		for i := 0; i < 5; i++ {
			_, ref := f.seedAuthor(t)
			_, err := f.contents.Record(ctx, ref)
			require.NoError(t, err)
		}

		summary, err := f.contents.IntegrityCheck(ctx, "content", 0)
		require.NoError(t, err)
		assert.Equal(t, 5, summary.CheckedContent)
		assert.Zero(t, summary.TamperedCount)
		assert.True(t, summary.Clean)
	})

	t.Run("flags exactly the tampered subset", func(t *testing.T) {
		f := newFixture(t)
		refs := make([]domain.ContentRef, 0, 10)
		owners := make([]domain.UserID, 0, 10)
		for i := 0; i < 10; i++ {
			userID, ref := f.seedAuthor(t)
			_, err := f.contents.Record(ctx, ref)
			require.NoError(t, err)
			refs = append(refs, ref)
			owners = append(owners, userID)
		}

		// silently edit three rows
		for i := 0; i < 3; i++ {
			f.source.PutIssue(hashing.IssueFields{
				ID:        refs[i].ID,
				Title:     "rewritten",
				UserID:    owners[i],
				CreatedAt: time.Now().UTC(),
			})
		}

		summary, err := f.contents.IntegrityCheck(ctx, "content", 0)
		require.NoError(t, err)
		assert.Equal(t, 10, summary.CheckedContent)
		assert.Equal(t, 3, summary.TamperedCount)
		assert.False(t, summary.Clean)
		assert.Len(t, summary.Flagged, 3)
		for _, item := range summary.Flagged {
			assert.Equal(t, "content", item.Kind)
			assert.Equal(t, string(content.StatusTampered), item.Status)
		}
	})

	t.Run("identity scope reports profile tampering", func(t *testing.T) {
		f := newFixture(t)
		userID := domain.UserID(uuid.New())
		f.source.PutProfile(hashing.ProfileFields{UserID: userID, FirstName: "Ada", Role: "citizen"})
		_, err := f.identities.Issue(ctx, identity.IssueParams{
			UserID:    userID,
			Email:     "ada@example.org",
			AttemptID: uuid.NewString(),
		})
		require.NoError(t, err)

		f.source.PutProfile(hashing.ProfileFields{UserID: userID, FirstName: "Ada", Role: "admin"})

		summary, err := f.contents.IntegrityCheck(ctx, "identities", 0)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.CheckedIdentities)
		assert.Equal(t, 1, summary.TamperedCount)
		assert.False(t, summary.Clean)
	})

	t.Run("unknown scope is invalid input", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.contents.IntegrityCheck(ctx, "everything", 0)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
