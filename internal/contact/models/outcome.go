package models

import (
	"time"

	id "reconciler/pkg/domain"
)

// Outcome names which branch of the merge decision a request took.
type Outcome string

const (
	OutcomeCreatePrimary Outcome = "create_primary"
	OutcomeAttach        Outcome = "attach"
	OutcomeNoop          Outcome = "noop"
	OutcomeMerge         Outcome = "merge"
)

// IdentifyResult is the outcome of reconciling one observation.
type IdentifyResult struct {
	View    *IdentityView
	Outcome Outcome
	// Created is the record inserted by this request, if any.
	Created *Contact
	// Absorbed lists primaries demoted into View.PrimaryID, oldest first.
	Absorbed []id.ContactID
}

// EventType classifies identity events published after a commit.
type EventType string

const (
	EventContactCreated  EventType = "contact.created"
	EventContactAttached EventType = "contact.attached"
	EventIdentityMerged  EventType = "identity.merged"
)

// IdentityEvent describes a committed change to the identity graph.
type IdentityEvent struct {
	Type        EventType
	PrimaryID   id.ContactID
	ContactID   id.ContactID
	AbsorbedIDs []id.ContactID
	RequestID   string
	OccurredAt  time.Time
}

// Events lists what a result committed: at most one merge plus at most one
// created record.
func (r *IdentifyResult) Events(requestID string, now time.Time) []IdentityEvent {
	var events []IdentityEvent
	if len(r.Absorbed) > 0 {
		events = append(events, IdentityEvent{
			Type:        EventIdentityMerged,
			PrimaryID:   r.View.PrimaryID,
			AbsorbedIDs: r.Absorbed,
			RequestID:   requestID,
			OccurredAt:  now,
		})
	}
	if r.Created != nil {
		typ := EventContactAttached
		if r.Created.IsPrimary() {
			typ = EventContactCreated
		}
		events = append(events, IdentityEvent{
			Type:       typ,
			PrimaryID:  r.View.PrimaryID,
			ContactID:  r.Created.ID,
			RequestID:  requestID,
			OccurredAt: now,
		})
	}
	return events
}
