// Package forum reads the current state of the civic forum's own
// database. It is the bridge between the mutable application rows and
// the integrity core: the core never writes here and never assumes the
// schema beyond the queries in this file.
package forum

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicledger/internal/content"
	"civicledger/internal/hashing"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
	"civicledger/pkg/platform/sentinel"
)

// Source resolves content references against the forum database. For
// vote types, the reference carries the parent id plus the voter; the
// vote row's own id never leaves this package.
type Source struct {
	pool *pgxpool.Pool
}

func NewSource(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool}
}

func (s *Source) Snapshot(ctx context.Context, ref domain.ContentRef) (*content.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	switch ref.Type {
	case domain.ContentTypeIssue:
		return s.issueSnapshot(ctx, ref)
	case domain.ContentTypeComment:
		return s.commentSnapshot(ctx, ref)
	case domain.ContentTypeVote:
		return s.voteSnapshot(ctx, ref)
	case domain.ContentTypeCommentVote:
		return s.commentVoteSnapshot(ctx, ref)
	}
	return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown content type: "+ref.Type.String())
}

func (s *Source) issueSnapshot(ctx context.Context, ref domain.ContentRef) (*content.Snapshot, error) {
	var f hashing.IssueFields
	var userID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, narrative, issue_type, topic, user_id, created_at FROM issues WHERE id = $1`,
		ref.ID.String(),
	).Scan(&f.ID, &f.Title, &f.Narrative, &f.IssueType, &f.Topic, &userID, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load issue: %w", err)
	}
	f.UserID = domain.UserID(userID)
	return &content.Snapshot{Ref: ref, OwnerID: f.UserID, Fields: f}, nil
}

func (s *Source) commentSnapshot(ctx context.Context, ref domain.ContentRef) (*content.Snapshot, error) {
	var f hashing.CommentFields
	var userID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT id, content, issue_id, user_id, created_at FROM comments WHERE id = $1`,
		ref.ID.String(),
	).Scan(&f.ID, &f.Content, &f.IssueID, &userID, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load comment: %w", err)
	}
	f.UserID = domain.UserID(userID)
	return &content.Snapshot{Ref: ref, OwnerID: f.UserID, Fields: f}, nil
}

func (s *Source) voteSnapshot(ctx context.Context, ref domain.ContentRef) (*content.Snapshot, error) {
	f := hashing.VoteFields{IssueID: ref.ID, UserID: ref.UserID}
	err := s.pool.QueryRow(ctx,
		`SELECT value, updated_at FROM votes WHERE issue_id = $1 AND user_id = $2`,
		ref.ID.String(), uuid.UUID(ref.UserID),
	).Scan(&f.Value, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load vote: %w", err)
	}
	return &content.Snapshot{Ref: ref, OwnerID: ref.UserID, Fields: f}, nil
}

func (s *Source) commentVoteSnapshot(ctx context.Context, ref domain.ContentRef) (*content.Snapshot, error) {
	f := hashing.CommentVoteFields{CommentID: ref.ID, UserID: ref.UserID}
	err := s.pool.QueryRow(ctx,
		`SELECT value, updated_at FROM comment_votes WHERE comment_id = $1 AND user_id = $2`,
		ref.ID.String(), uuid.UUID(ref.UserID),
	).Scan(&f.Value, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load comment vote: %w", err)
	}
	return &content.Snapshot{Ref: ref, OwnerID: ref.UserID, Fields: f}, nil
}

// ProfileFields loads the mutable profile attributes covered by the
// profile fingerprint.
func (s *Source) ProfileFields(ctx context.Context, userID domain.UserID) (*hashing.ProfileFields, error) {
	f := hashing.ProfileFields{UserID: userID}
	var lat, lng *float64
	err := s.pool.QueryRow(ctx,
		`SELECT first_name, last_name, latitude, longitude, role, verified FROM profiles WHERE user_id = $1`,
		uuid.UUID(userID),
	).Scan(&f.FirstName, &f.LastName, &lat, &lng, &f.Role, &f.Verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if lat != nil && lng != nil {
		f.Coordinates = &hashing.Coordinates{Lat: *lat, Lng: *lng}
	}
	return &f, nil
}
