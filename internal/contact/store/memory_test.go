package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"reconciler/internal/contact/models"
	id "reconciler/pkg/domain"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func (s *InMemorySuite) SetupTest() {
	s.now = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	s.store = NewInMemory(WithClock(func() time.Time {
		s.now = s.now.Add(time.Minute)
		return s.now
	}))
	s.ctx = context.Background()
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) createPrimary(email, phone string) *models.Contact {
	c, err := s.store.Create(s.ctx, models.NewPrimary(models.Observation{Email: email, Phone: phone}))
	s.Require().NoError(err)
	return c
}

func (s *InMemorySuite) TestCreateAssignsIdentity() {
	first := s.createPrimary("a", "")
	second := s.createPrimary("", "1")

	s.Equal(id.ContactID(1), first.ID)
	s.Equal(id.ContactID(2), second.ID)
	s.True(first.CreatedAt.Before(second.CreatedAt))
	s.Equal(first.CreatedAt, first.UpdatedAt)

	s.Run("rejects preassigned ids", func() {
		_, err := s.store.Create(s.ctx, &models.Contact{ID: 9, Email: "x", Precedence: models.PrecedencePrimary})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects secondaries of secondaries", func() {
		sec, err := models.NewSecondary(models.Observation{Email: "b"}, first)
		s.Require().NoError(err)
		sec, err = s.store.Create(s.ctx, sec)
		s.Require().NoError(err)

		parent := sec.ID
		_, err = s.store.Create(s.ctx, &models.Contact{Email: "c", Precedence: models.PrecedenceSecondary, LinkedID: &parent})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *InMemorySuite) TestFindByEmailOrPhone() {
	a := s.createPrimary("a", "1")
	b := s.createPrimary("b", "2")
	s.createPrimary("c", "3")

	found, err := s.store.FindByEmailOrPhone(s.ctx, "a", "2")
	s.Require().NoError(err)
	s.Require().Len(found, 2)
	s.Equal(a.ID, found[0].ID)
	s.Equal(b.ID, found[1].ID)

	found, err = s.store.FindByEmailOrPhone(s.ctx, "a", "1")
	s.Require().NoError(err)
	s.Len(found, 1, "a record matching on both fields is returned once")

	found, err = s.store.FindByEmailOrPhone(s.ctx, "", "")
	s.Require().NoError(err)
	s.Empty(found)
}

func (s *InMemorySuite) TestFindByID() {
	a := s.createPrimary("a", "")

	got, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a, got)

	got.Email = "mutated"
	again, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal("a", again.Email, "callers receive copies")

	_, err = s.store.FindByID(s.ctx, 404)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestUpdateMaintainsChildIndex() {
	older := s.createPrimary("a", "")
	newer := s.createPrimary("b", "")
	sec, err := models.NewSecondary(models.Observation{Email: "b", Phone: "2"}, newer)
	s.Require().NoError(err)
	child, err := s.store.Create(s.ctx, sec)
	s.Require().NoError(err)

	s.Require().NoError(newer.DemoteTo(older))
	updated, err := s.store.Update(s.ctx, newer)
	s.Require().NoError(err)
	s.True(updated.UpdatedAt.After(updated.CreatedAt))

	s.Require().NoError(child.RelinkTo(older))
	_, err = s.store.Update(s.ctx, child)
	s.Require().NoError(err)

	kids, err := s.store.ChildrenOf(s.ctx, older.ID)
	s.Require().NoError(err)
	s.Len(kids, 2)
	kids, err = s.store.ChildrenOf(s.ctx, newer.ID)
	s.Require().NoError(err)
	s.Empty(kids)
}

func (s *InMemorySuite) TestUpdateRejectsValueChanges() {
	a := s.createPrimary("a", "")
	a.Email = "changed"
	_, err := s.store.Update(s.ctx, a)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = s.store.Update(s.ctx, &models.Contact{ID: 77, Precedence: models.PrecedencePrimary})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestStagedWritesAreInvisibleUntilCommit() {
	a := s.createPrimary("a", "")
	st := s.store.Stage()

	sec, err := models.NewSecondary(models.Observation{Email: "a", Phone: "1"}, a)
	s.Require().NoError(err)
	created, err := st.Create(s.ctx, sec)
	s.Require().NoError(err)

	inView, err := st.FindByEmailOrPhone(s.ctx, "", "1")
	s.Require().NoError(err)
	s.Len(inView, 1, "the staged view reads its own writes")
	kids, err := st.ChildrenOf(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Len(kids, 1)

	outside, err := s.store.FindByEmailOrPhone(s.ctx, "", "1")
	s.Require().NoError(err)
	s.Empty(outside)

	s.Require().NoError(st.Commit())
	got, err := s.store.FindByID(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(a.ID, *got.LinkedID)

	s.ErrorIs(st.Commit(), sentinel.ErrInvalidState)
	_, err = st.Create(s.ctx, models.NewPrimary(models.Observation{Email: "z"}))
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *InMemorySuite) TestAbandonedStageLeavesStoreUntouched() {
	st := s.store.Stage()
	_, err := st.Create(s.ctx, models.NewPrimary(models.Observation{Email: "a"}))
	s.Require().NoError(err)

	all, err := s.store.All(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)

	next := s.createPrimary("b", "")
	s.Equal(id.ContactID(2), next.ID, "abandoned ids are not reused")
}
