//go:build integration

package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/service"
	"reconciler/internal/contact/store"
	id "reconciler/pkg/domain"
	"reconciler/pkg/platform/sentinel"
	"reconciler/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	service  *service.Service
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))

	svc, err := service.New(store.NewPostgresTx(s.postgres.DB, 0), service.WithMaxAttempts(20))
	s.Require().NoError(err)
	s.service = svc
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "contacts"))
}

func (s *PostgresStoreSuite) TestCreateOrdersByCreationTime() {
	ctx := context.Background()
	first, err := s.store.Create(ctx, models.NewPrimary(models.Observation{Email: "a"}))
	s.Require().NoError(err)
	second, err := s.store.Create(ctx, models.NewPrimary(models.Observation{Email: "b"}))
	s.Require().NoError(err)

	s.Equal(id.ContactID(1), first.ID)
	s.True(first.OlderThan(second))

	_, err = s.store.FindByID(ctx, 99)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestScenarioMergeTwoGroups() {
	ctx := context.Background()
	p1, err := s.service.Identify(ctx, models.Observation{Email: "a", Phone: "1"})
	s.Require().NoError(err)
	p2, err := s.service.Identify(ctx, models.Observation{Email: "b", Phone: "2"})
	s.Require().NoError(err)

	res, err := s.service.Identify(ctx, models.Observation{Email: "a", Phone: "2"})
	s.Require().NoError(err)
	s.Equal(models.OutcomeMerge, res.Outcome)
	s.Equal(p1.View.PrimaryID, res.View.PrimaryID)
	s.Equal([]id.ContactID{p2.View.PrimaryID}, res.View.SecondaryIDs)
	s.Equal([]string{"a", "b"}, res.View.Emails)
	s.Equal([]string{"1", "2"}, res.View.Phones)
}

func (s *PostgresStoreSuite) TestConcurrentIdenticalObservations() {
	ctx := context.Background()
	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			_, err := s.service.Identify(ctx, models.Observation{Email: "same@x.com", Phone: "42"})
			return err
		})
	}
	s.Require().NoError(g.Wait())

	found, err := s.store.FindByEmailOrPhone(ctx, "same@x.com", "42")
	s.Require().NoError(err)
	s.Len(found, 1, "the advisory locks admit exactly one creator")
}

func (s *PostgresStoreSuite) TestConcurrentChainedMerges() {
	ctx := context.Background()
	const n = 8
	for i := range n {
		_, err := s.service.Identify(ctx, models.Observation{Email: fmt.Sprintf("e%d", i), Phone: fmt.Sprintf("p%d", i)})
		s.Require().NoError(err)
	}

	var g errgroup.Group
	for i := range n - 1 {
		g.Go(func() error {
			_, err := s.service.Identify(ctx, models.Observation{Email: fmt.Sprintf("e%d", i), Phone: fmt.Sprintf("p%d", i+1)})
			return err
		})
	}
	s.Require().NoError(g.Wait())

	view, err := s.service.Lookup(ctx, 1)
	s.Require().NoError(err)
	s.Equal(id.ContactID(1), view.PrimaryID)
	s.Len(view.SecondaryIDs, n-1)

	for _, secondaryID := range view.SecondaryIDs {
		c, err := s.store.FindByID(ctx, secondaryID)
		s.Require().NoError(err)
		s.Equal(id.ContactID(1), *c.LinkedID, "contact %s is not one hop from the survivor", secondaryID)
	}
}
