package models

import (
	"time"

	id "reconciler/pkg/domain"
	dErrors "reconciler/pkg/domain-errors"
)

// Precedence marks a Contact as the canonical record of its identity group or
// as a record superseded by an older primary.
type Precedence string

const (
	PrecedencePrimary   Precedence = "primary"
	PrecedenceSecondary Precedence = "secondary"
)

func (p Precedence) IsValid() bool {
	return p == PrecedencePrimary || p == PrecedenceSecondary
}

// Contact is one observed fragment of contact information.
//
// Invariants:
//   - a primary never has a LinkedID
//   - a secondary's LinkedID names a primary (link depth is exactly one)
//   - ID, Email, Phone and CreatedAt never change once persisted
//   - Precedence changes at most once, primary to secondary, via DemoteTo
//
// Empty Email or Phone means the field is absent.
type Contact struct {
	ID         id.ContactID
	Email      string
	Phone      string
	LinkedID   *id.ContactID
	Precedence Precedence
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewPrimary builds an unsaved primary carrying the observation. The store
// assigns ID and timestamps on create.
func NewPrimary(obs Observation) *Contact {
	return &Contact{
		Email:      obs.Email,
		Phone:      obs.Phone,
		Precedence: PrecedencePrimary,
	}
}

// NewSecondary builds an unsaved secondary carrying the full observation,
// linked to primary.
func NewSecondary(obs Observation, primary *Contact) (*Contact, error) {
	if primary == nil || !primary.IsPrimary() || primary.ID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "secondary must link to a persisted primary")
	}
	parent := primary.ID
	return &Contact{
		Email:      obs.Email,
		Phone:      obs.Phone,
		LinkedID:   &parent,
		Precedence: PrecedenceSecondary,
	}, nil
}

func (c *Contact) IsPrimary() bool {
	return c.Precedence == PrecedencePrimary
}

// PrimaryID returns the id of the primary owning c's identity group.
func (c *Contact) PrimaryID() id.ContactID {
	if c.IsPrimary() || c.LinkedID == nil {
		return c.ID
	}
	return *c.LinkedID
}

// OlderThan orders contacts by CreatedAt, breaking ties by the smaller id.
func (c *Contact) OlderThan(other *Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// DemoteTo turns a primary into a secondary of the older survivor.
func (c *Contact) DemoteTo(survivor *Contact) error {
	if !c.IsPrimary() {
		return dErrors.New(dErrors.CodeInvariantViolation, "only a primary can be absorbed")
	}
	if survivor == nil || !survivor.IsPrimary() {
		return dErrors.New(dErrors.CodeInvariantViolation, "absorbing record must be a primary")
	}
	if survivor.ID == c.ID {
		return dErrors.New(dErrors.CodeInvariantViolation, "a primary cannot absorb itself")
	}
	if !survivor.OlderThan(c) {
		return dErrors.New(dErrors.CodeInvariantViolation, "only an older primary can absorb another")
	}
	parent := survivor.ID
	c.Precedence = PrecedenceSecondary
	c.LinkedID = &parent
	return nil
}

// RelinkTo re-points a secondary directly at survivor so no chain ever grows
// past one hop.
func (c *Contact) RelinkTo(survivor *Contact) error {
	if c.IsPrimary() {
		return dErrors.New(dErrors.CodeInvariantViolation, "only a secondary can be re-linked")
	}
	if survivor == nil || !survivor.IsPrimary() {
		return dErrors.New(dErrors.CodeInvariantViolation, "secondary must link to a primary")
	}
	parent := survivor.ID
	c.LinkedID = &parent
	return nil
}

// Clone returns a deep copy, so stores never hand out aliases of their records.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	cp := *c
	if c.LinkedID != nil {
		parent := *c.LinkedID
		cp.LinkedID = &parent
	}
	return &cp
}

// CheckShape reports whether c's precedence and link agree.
func (c *Contact) CheckShape() error {
	switch c.Precedence {
	case PrecedencePrimary:
		if c.LinkedID != nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "primary contact has a linked id")
		}
	case PrecedenceSecondary:
		if c.LinkedID == nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "secondary contact has no linked id")
		}
		if *c.LinkedID == c.ID {
			return dErrors.New(dErrors.CodeInvariantViolation, "secondary contact links to itself")
		}
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown link precedence "+string(c.Precedence))
	}
	return nil
}
