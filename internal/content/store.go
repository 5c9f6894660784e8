package content

import (
	"context"

	"civicledger/internal/hashing"
	"civicledger/internal/identity"
	"civicledger/pkg/domain"
)

// PointerStore persists anchor pointer records. Implementations return
// sentinel.ErrNotFound for missing rows.
type PointerStore interface {
	Save(ctx context.Context, rec *Record) error
	Latest(ctx context.Context, subjectID domain.ContentID, t domain.ContentType) (*Record, error)
	MarkDeleted(ctx context.Context, key domain.RecordKey) error
	// ListLatest returns the newest pointer per subject, for integrity
	// sweeps.
	ListLatest(ctx context.Context, limit int) ([]*Record, error)
}

// Snapshot is the current state of one application row, resolved and
// canonicalized for hashing. OwnerID is the acting user whose identity
// the anchor is bound to.
type Snapshot struct {
	Ref     domain.ContentRef
	OwnerID domain.UserID
	Fields  hashing.ContentFields
}

// Source reads current application rows. It owns the vote indirection:
// given a vote reference (parent id + voter), it locates the underlying
// vote row. Implementations return sentinel.ErrNotFound when the row
// does not exist.
type Source interface {
	Snapshot(ctx context.Context, ref domain.ContentRef) (*Snapshot, error)
}

// IdentityDirectory is the slice of the identity service the content
// service needs. *identity.Service satisfies it.
type IdentityDirectory interface {
	Find(ctx context.Context, userID domain.UserID) (*identity.Record, error)
	VerifyProfile(ctx context.Context, userID domain.UserID) (*identity.ProfileVerification, error)
	ListActive(ctx context.Context, limit int) ([]*identity.Record, error)
}
