package identity

import (
	"context"

	"civicledger/internal/hashing"
	"civicledger/pkg/domain"
)

// Store persists identity pointer records. Implementations return
// sentinel.ErrNotFound for missing rows and sentinel.ErrConflict when a
// save would violate the one-active-identity-per-user invariant.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	FindByUser(ctx context.Context, userID domain.UserID) (*Record, error)
	FindByHash(ctx context.Context, hash domain.Hash32) (*Record, error)
	UpdateStatus(ctx context.Context, hash domain.Hash32, status Status) error
	SetProfileHash(ctx context.Context, hash domain.Hash32, profileHash domain.Hash32) error
	ListActive(ctx context.Context, limit int) ([]*Record, error)
}

// ProfileSource reads the current mutable profile fields from the
// application store. The schema belongs to the application layer; the
// core only needs this one lookup.
type ProfileSource interface {
	ProfileFields(ctx context.Context, userID domain.UserID) (*hashing.ProfileFields, error)
}
