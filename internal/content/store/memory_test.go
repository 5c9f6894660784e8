package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civicledger/internal/content"
	"civicledger/pkg/domain"
	"civicledger/pkg/platform/sentinel"
)

type PointerStoreSuite struct {
	suite.Suite
	store *Memory
	ctx   context.Context
}

func (s *PointerStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func TestPointerStoreSuite(t *testing.T) {
	suite.Run(t, new(PointerStoreSuite))
}

func (s *PointerStoreSuite) newRecord(subjectID domain.ContentID, hash byte, at time.Time) *content.Record {
	return &content.Record{
		Key:         domain.NewRecordKey(),
		SubjectID:   subjectID,
		Type:        domain.ContentTypeIssue,
		ContentHash: domain.Hash32{hash},
		CreatedAt:   at,
	}
}

func (s *PointerStoreSuite) TestLatestWins() {
	now := time.Now().UTC()
	older := s.newRecord("issue-1", 1, now.Add(-time.Hour))
	newer := s.newRecord("issue-1", 2, now)

	s.Require().NoError(s.store.Save(s.ctx, older))
	s.Require().NoError(s.store.Save(s.ctx, newer))

	latest, err := s.store.Latest(s.ctx, "issue-1", domain.ContentTypeIssue)
	s.Require().NoError(err)
	s.Equal(newer.Key, latest.Key)
	s.Equal(domain.Hash32{2}, latest.ContentHash)
}

func (s *PointerStoreSuite) TestLookupMisses() {
	s.Run("unknown subject", func() {
		_, err := s.store.Latest(s.ctx, "nope", domain.ContentTypeIssue)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("same subject, different type", func() {
		rec := s.newRecord("issue-1", 1, time.Now().UTC())
		s.Require().NoError(s.store.Save(s.ctx, rec))
		_, err := s.store.Latest(s.ctx, "issue-1", domain.ContentTypeComment)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PointerStoreSuite) TestDuplicateKeyRejected() {
	rec := s.newRecord("issue-1", 1, time.Now().UTC())
	s.Require().NoError(s.store.Save(s.ctx, rec))

	dup := s.newRecord("issue-2", 2, time.Now().UTC())
	dup.Key = rec.Key
	s.Require().ErrorIs(s.store.Save(s.ctx, dup), sentinel.ErrConflict)
}

func (s *PointerStoreSuite) TestMarkDeleted() {
	rec := s.newRecord("issue-1", 1, time.Now().UTC())
	s.Require().NoError(s.store.Save(s.ctx, rec))
	s.Require().NoError(s.store.MarkDeleted(s.ctx, rec.Key))

	latest, err := s.store.Latest(s.ctx, "issue-1", domain.ContentTypeIssue)
	s.Require().NoError(err)
	s.True(latest.IsDeleted)

	s.Require().ErrorIs(s.store.MarkDeleted(s.ctx, domain.NewRecordKey()), sentinel.ErrNotFound)
}

func (s *PointerStoreSuite) TestListLatest() {
	now := time.Now().UTC()
	s.Require().NoError(s.store.Save(s.ctx, s.newRecord("issue-1", 1, now.Add(-time.Hour))))
	s.Require().NoError(s.store.Save(s.ctx, s.newRecord("issue-1", 2, now)))
	s.Require().NoError(s.store.Save(s.ctx, s.newRecord("issue-2", 3, now)))

	records, err := s.store.ListLatest(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(records, 2, "one latest pointer per subject")
}
