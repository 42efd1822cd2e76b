package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/ports"
	id "reconciler/pkg/domain"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
)

// InMemory keeps contacts in an arena keyed by id with secondary indexes on
// email, phone and primary id.
//
// Calling the Store methods directly commits each write on its own. Stage
// opens a view that buffers writes until Commit, which is how the sharded
// transaction runner gets atomic rollback.
type InMemory struct {
	mu       sync.RWMutex
	contacts map[id.ContactID]*models.Contact
	byEmail  map[string][]id.ContactID
	byPhone  map[string][]id.ContactID
	children map[id.ContactID]map[id.ContactID]struct{}
	lastID   id.ContactID
	clock    func() time.Time
}

// InMemoryOption configures an InMemory store.
type InMemoryOption func(*InMemory)

// WithClock sets the clock used for CreatedAt and UpdatedAt.
func WithClock(clock func() time.Time) InMemoryOption {
	return func(s *InMemory) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemory {
	s := &InMemory{
		contacts: make(map[id.ContactID]*models.Contact),
		byEmail:  make(map[string][]id.ContactID),
		byPhone:  make(map[string][]id.ContactID),
		children: make(map[id.ContactID]map[id.ContactID]struct{}),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stage opens a buffered view over the store.
func (s *InMemory) Stage() ports.StagedStore {
	return &staged{base: s, writes: make(map[id.ContactID]*models.Contact)}
}

func (s *InMemory) Ping(context.Context) error {
	return nil
}

func (s *InMemory) FindByEmailOrPhone(ctx context.Context, email, phone string) ([]*models.Contact, error) {
	return s.Stage().FindByEmailOrPhone(ctx, email, phone)
}

func (s *InMemory) FindByID(ctx context.Context, contactID id.ContactID) (*models.Contact, error) {
	return s.Stage().FindByID(ctx, contactID)
}

func (s *InMemory) ChildrenOf(ctx context.Context, primaryID id.ContactID) ([]*models.Contact, error) {
	return s.Stage().ChildrenOf(ctx, primaryID)
}

func (s *InMemory) Create(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	st := s.Stage()
	created, err := st.Create(ctx, contact)
	if err != nil {
		return nil, err
	}
	return created, st.Commit()
}

func (s *InMemory) Update(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	st := s.Stage()
	updated, err := st.Update(ctx, contact)
	if err != nil {
		return nil, err
	}
	return updated, st.Commit()
}

// All returns every contact ordered by id.
func (s *InMemory) All(context.Context) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c.Clone())
	}
	sortByID(out)
	return out, nil
}

func (s *InMemory) nextID() id.ContactID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID
}

// apply writes committed records and maintains the indexes. Callers hold mu.
func (s *InMemory) apply(c *models.Contact) {
	if old, ok := s.contacts[c.ID]; ok {
		if old.LinkedID != nil {
			delete(s.children[*old.LinkedID], c.ID)
		}
	} else {
		if c.Email != "" {
			s.byEmail[c.Email] = append(s.byEmail[c.Email], c.ID)
		}
		if c.Phone != "" {
			s.byPhone[c.Phone] = append(s.byPhone[c.Phone], c.ID)
		}
	}
	if c.LinkedID != nil {
		kids, ok := s.children[*c.LinkedID]
		if !ok {
			kids = make(map[id.ContactID]struct{})
			s.children[*c.LinkedID] = kids
		}
		kids[c.ID] = struct{}{}
	}
	s.contacts[c.ID] = c
}

// staged reads through to the base store and keeps its own writes until
// Commit. Ids are drawn from the base when created, so an abandoned view
// leaves a gap in the sequence and nothing else.
type staged struct {
	base      *InMemory
	writes    map[id.ContactID]*models.Contact
	order     []id.ContactID
	committed bool
}

func (st *staged) get(contactID id.ContactID) (*models.Contact, bool) {
	if c, ok := st.writes[contactID]; ok {
		return c, true
	}
	st.base.mu.RLock()
	defer st.base.mu.RUnlock()
	c, ok := st.base.contacts[contactID]
	return c, ok
}

func (st *staged) put(c *models.Contact) {
	if _, ok := st.writes[c.ID]; !ok {
		st.order = append(st.order, c.ID)
	}
	st.writes[c.ID] = c
}

func (st *staged) FindByEmailOrPhone(_ context.Context, email, phone string) ([]*models.Contact, error) {
	var ids []id.ContactID
	st.base.mu.RLock()
	if email != "" {
		ids = append(ids, st.base.byEmail[email]...)
	}
	if phone != "" {
		ids = append(ids, st.base.byPhone[phone]...)
	}
	st.base.mu.RUnlock()
	for _, c := range st.writes {
		if (email != "" && c.Email == email) || (phone != "" && c.Phone == phone) {
			ids = append(ids, c.ID)
		}
	}
	return st.resolve(ids), nil
}

func (st *staged) FindByID(_ context.Context, contactID id.ContactID) (*models.Contact, error) {
	c, ok := st.get(contactID)
	if !ok {
		return nil, fmt.Errorf("contact %s: %w", contactID, sentinel.ErrNotFound)
	}
	return c.Clone(), nil
}

func (st *staged) ChildrenOf(_ context.Context, primaryID id.ContactID) ([]*models.Contact, error) {
	var ids []id.ContactID
	st.base.mu.RLock()
	for childID := range st.base.children[primaryID] {
		ids = append(ids, childID)
	}
	st.base.mu.RUnlock()
	for _, c := range st.writes {
		ids = append(ids, c.ID)
	}

	var out []*models.Contact
	for _, c := range st.resolve(ids) {
		if !c.IsPrimary() && c.LinkedID != nil && *c.LinkedID == primaryID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (st *staged) Create(_ context.Context, contact *models.Contact) (*models.Contact, error) {
	if st.committed {
		return nil, fmt.Errorf("create contact: %w", sentinel.ErrInvalidState)
	}
	if err := checkInsert(contact); err != nil {
		return nil, err
	}
	c := contact.Clone()
	c.ID = st.base.nextID()
	if c.LinkedID != nil {
		parent, ok := st.get(*c.LinkedID)
		if !ok || !parent.IsPrimary() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "secondary must link to an existing primary")
		}
	}
	now := st.base.clock()
	c.CreatedAt = now
	c.UpdatedAt = now
	st.put(c)
	return c.Clone(), nil
}

func (st *staged) Update(_ context.Context, contact *models.Contact) (*models.Contact, error) {
	if st.committed {
		return nil, fmt.Errorf("update contact: %w", sentinel.ErrInvalidState)
	}
	old, ok := st.get(contact.ID)
	if !ok {
		return nil, fmt.Errorf("update contact %s: %w", contact.ID, sentinel.ErrNotFound)
	}
	if old.Email != contact.Email || old.Phone != contact.Phone || !old.CreatedAt.Equal(contact.CreatedAt) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "contact values and creation time are immutable")
	}
	if err := contact.CheckShape(); err != nil {
		return nil, err
	}
	c := contact.Clone()
	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = st.base.clock()
	st.put(c)
	return c.Clone(), nil
}

// Commit applies the buffered writes atomically. A view commits once.
func (st *staged) Commit() error {
	if st.committed {
		return fmt.Errorf("commit: %w", sentinel.ErrInvalidState)
	}
	st.committed = true
	if len(st.order) == 0 {
		return nil
	}
	st.base.mu.Lock()
	defer st.base.mu.Unlock()
	for _, contactID := range st.order {
		st.base.apply(st.writes[contactID])
	}
	return nil
}

// resolve returns the current version of each distinct id, ordered by id.
func (st *staged) resolve(ids []id.ContactID) []*models.Contact {
	seen := make(map[id.ContactID]struct{}, len(ids))
	out := make([]*models.Contact, 0, len(ids))
	for _, contactID := range ids {
		if _, ok := seen[contactID]; ok {
			continue
		}
		seen[contactID] = struct{}{}
		if c, ok := st.get(contactID); ok {
			out = append(out, c.Clone())
		}
	}
	sortByID(out)
	return out
}

func sortByID(contacts []*models.Contact) {
	slices.SortFunc(contacts, func(a, b *models.Contact) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
