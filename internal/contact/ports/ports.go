// Package ports defines the interfaces the contact service depends on.
// Interfaces live here because stores, runners and the service all refer to
// them.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks EventPublisher,ViewCache

import (
	"context"
	"errors"

	"reconciler/internal/contact/models"
	id "reconciler/pkg/domain"
)

// Store is the identity store as seen from inside one transaction.
//
// Reads reflect every write already made through the same Store value.
// Returned contacts are copies; callers persist changes through Update.
type Store interface {
	// FindByEmailOrPhone returns the distinct contacts whose email equals email
	// or whose phone equals phone. Empty arguments match nothing.
	FindByEmailOrPhone(ctx context.Context, email, phone string) ([]*models.Contact, error)

	// FindByID returns sentinel.ErrNotFound when no contact has id.
	FindByID(ctx context.Context, contactID id.ContactID) (*models.Contact, error)

	// ChildrenOf returns the secondaries linked to primaryID.
	ChildrenOf(ctx context.Context, primaryID id.ContactID) ([]*models.Contact, error)

	// Create assigns ID, CreatedAt and UpdatedAt and returns the stored record.
	Create(ctx context.Context, contact *models.Contact) (*models.Contact, error)

	// Update persists precedence and link changes and bumps UpdatedAt.
	Update(ctx context.Context, contact *models.Contact) (*models.Contact, error)
}

// ContactStoreTx runs fn as one serializable unit holding the given lock keys.
// Writes made through the Store handed to fn commit only if fn returns nil.
type ContactStoreTx interface {
	RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store Store) error) error
}

// StagedStore buffers writes until Commit.
type StagedStore interface {
	Store
	Commit() error
}

// Stager opens staged views over a store that has no native transactions.
type Stager interface {
	Stage() StagedStore
}

// EventPublisher emits identity events after reconciliation changed the store.
type EventPublisher interface {
	Publish(ctx context.Context, event models.IdentityEvent) error
}

// ErrCacheBypassed marks a cache call skipped on purpose. Callers treat it
// as a miss.
var ErrCacheBypassed = errors.New("view cache bypassed")

// ViewCache caches consolidated views by primary id.
type ViewCache interface {
	Get(ctx context.Context, primaryID id.ContactID) (*models.IdentityView, bool, error)
	Put(ctx context.Context, view *models.IdentityView) error
	Invalidate(ctx context.Context, primaryIDs ...id.ContactID) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
