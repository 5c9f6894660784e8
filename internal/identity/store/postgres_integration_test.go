//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"civicledger/internal/identity"
	"civicledger/pkg/domain"
	"civicledger/pkg/platform/sentinel"
	"civicledger/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	pool  *pgxpool.Pool
	store *Postgres
	ctx   context.Context
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	pg := containers.NewPostgresContainer(s.T())
	pool, err := pgxpool.New(s.ctx, pg.URL)
	require.NoError(s.T(), err)
	_, err = pool.Exec(s.ctx, Schema)
	require.NoError(s.T(), err)
	s.pool = pool
	s.store = NewPostgres(pool)
}

func (s *PostgresSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE identity_records`)
	require.NoError(s.T(), err)
}

func (s *PostgresSuite) newRecord(status identity.Status) *identity.Record {
	var hash domain.Hash32
	copy(hash[:], uuid.NewString())
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &identity.Record{
		UserID:          domain.UserID(uuid.New()),
		IdentityHash:    hash,
		IssuerSignature: []byte{1, 2, 3},
		Status:          status,
		TxHash:          "0xabc",
		BlockNumber:     12,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *PostgresSuite) TestRoundTrip() {
	rec := s.newRecord(identity.StatusActive)
	profileHash := domain.Hash32{5}
	rec.ProfileHash = &profileHash
	s.Require().NoError(s.store.Save(s.ctx, rec))

	found, err := s.store.FindByUser(s.ctx, rec.UserID)
	s.Require().NoError(err)
	s.Equal(rec.IdentityHash, found.IdentityHash)
	s.Equal(rec.IssuerSignature, found.IssuerSignature)
	s.Require().NotNil(found.ProfileHash)
	s.Equal(profileHash, *found.ProfileHash)
	s.Equal(rec.BlockNumber, found.BlockNumber)
}

func (s *PostgresSuite) TestOneActiveIndexEnforced() {
	first := s.newRecord(identity.StatusActive)
	s.Require().NoError(s.store.Save(s.ctx, first))

	second := s.newRecord(identity.StatusActive)
	second.UserID = first.UserID
	s.Require().ErrorIs(s.store.Save(s.ctx, second), sentinel.ErrConflict)

	s.Require().NoError(s.store.UpdateStatus(s.ctx, first.IdentityHash, identity.StatusRevoked))
	s.Require().NoError(s.store.Save(s.ctx, second))
}

func (s *PostgresSuite) TestUpdateStatusMisses() {
	s.Require().ErrorIs(
		s.store.UpdateStatus(s.ctx, domain.Hash32{99}, identity.StatusRevoked),
		sentinel.ErrNotFound,
	)
}

func (s *PostgresSuite) TestListActive() {
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.store.Save(s.ctx, s.newRecord(identity.StatusActive)))
	}
	s.Require().NoError(s.store.Save(s.ctx, s.newRecord(identity.StatusPendingRetry)))

	active, err := s.store.ListActive(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(active, 3)
}
