package forum

import (
	"context"
	"sync"

	"civicledger/internal/content"
	"civicledger/internal/hashing"
	"civicledger/pkg/domain"
	dErrors "civicledger/pkg/domain-errors"
	"civicledger/pkg/platform/sentinel"
)

type voteKey struct {
	parent domain.ContentID
	user   domain.UserID
}

// MemorySource is an in-memory stand-in for the forum database, used in
// tests and single-process development. Mutating a stored row between an
// anchor and a verify is how tests simulate tampering.
type MemorySource struct {
	mu           sync.RWMutex
	issues       map[domain.ContentID]hashing.IssueFields
	comments     map[domain.ContentID]hashing.CommentFields
	votes        map[voteKey]hashing.VoteFields
	commentVotes map[voteKey]hashing.CommentVoteFields
	profiles     map[domain.UserID]hashing.ProfileFields
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		issues:       make(map[domain.ContentID]hashing.IssueFields),
		comments:     make(map[domain.ContentID]hashing.CommentFields),
		votes:        make(map[voteKey]hashing.VoteFields),
		commentVotes: make(map[voteKey]hashing.CommentVoteFields),
		profiles:     make(map[domain.UserID]hashing.ProfileFields),
	}
}

func (s *MemorySource) PutIssue(f hashing.IssueFields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[f.ID] = f
}

func (s *MemorySource) PutComment(f hashing.CommentFields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[f.ID] = f
}

func (s *MemorySource) PutVote(f hashing.VoteFields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[voteKey{parent: f.IssueID, user: f.UserID}] = f
}

func (s *MemorySource) PutCommentVote(f hashing.CommentVoteFields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commentVotes[voteKey{parent: f.CommentID, user: f.UserID}] = f
}

func (s *MemorySource) PutProfile(f hashing.ProfileFields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[f.UserID] = f
}

func (s *MemorySource) DeleteIssue(id domain.ContentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.issues, id)
}

func (s *MemorySource) Snapshot(_ context.Context, ref domain.ContentRef) (*content.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch ref.Type {
	case domain.ContentTypeIssue:
		f, ok := s.issues[ref.ID]
		if !ok {
			return nil, sentinel.ErrNotFound
		}
		return &content.Snapshot{Ref: ref, OwnerID: f.UserID, Fields: f}, nil
	case domain.ContentTypeComment:
		f, ok := s.comments[ref.ID]
		if !ok {
			return nil, sentinel.ErrNotFound
		}
		return &content.Snapshot{Ref: ref, OwnerID: f.UserID, Fields: f}, nil
	case domain.ContentTypeVote:
		f, ok := s.votes[voteKey{parent: ref.ID, user: ref.UserID}]
		if !ok {
			return nil, sentinel.ErrNotFound
		}
		return &content.Snapshot{Ref: ref, OwnerID: ref.UserID, Fields: f}, nil
	case domain.ContentTypeCommentVote:
		f, ok := s.commentVotes[voteKey{parent: ref.ID, user: ref.UserID}]
		if !ok {
			return nil, sentinel.ErrNotFound
		}
		return &content.Snapshot{Ref: ref, OwnerID: ref.UserID, Fields: f}, nil
	}
	return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown content type: "+ref.Type.String())
}

func (s *MemorySource) ProfileFields(_ context.Context, userID domain.UserID) (*hashing.ProfileFields, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.profiles[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := f
	return &cp, nil
}
