package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/ports"
	id "reconciler/pkg/domain"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
)

// match returns the distinct contacts sharing the observation's email or phone.
func match(ctx context.Context, store ports.Store, obs models.Observation) ([]*models.Contact, error) {
	found, err := store.FindByEmailOrPhone(ctx, obs.Email, obs.Phone)
	if err != nil {
		return nil, err
	}
	seen := make(map[id.ContactID]struct{}, len(found))
	matched := make([]*models.Contact, 0, len(found))
	for _, c := range found {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		matched = append(matched, c)
	}
	return matched, nil
}

// resolvePrimaries maps matched contacts to the distinct primaries owning them,
// oldest first. Primaries that were not matched themselves are loaded by id.
func resolvePrimaries(ctx context.Context, store ports.Store, matched []*models.Contact) ([]*models.Contact, error) {
	byID := make(map[id.ContactID]*models.Contact, len(matched))
	for _, c := range matched {
		if c.IsPrimary() {
			byID[c.ID] = c
		}
	}
	for _, c := range matched {
		if c.IsPrimary() {
			continue
		}
		if err := c.CheckShape(); err != nil {
			return nil, err
		}
		pid := c.PrimaryID()
		if _, ok := byID[pid]; ok {
			continue
		}
		p, err := store.FindByID(ctx, pid)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeInvariantViolation,
					fmt.Sprintf("contact %s links to missing contact %s", c.ID, pid))
			}
			return nil, err
		}
		if !p.IsPrimary() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("contact %s links to secondary contact %s", c.ID, pid))
		}
		byID[pid] = p
	}

	primaries := make([]*models.Contact, 0, len(byID))
	for _, p := range byID {
		primaries = append(primaries, p)
	}
	slices.SortFunc(primaries, compareAge)
	return primaries, nil
}

func compareAge(a, b *models.Contact) int {
	switch {
	case a.OlderThan(b):
		return -1
	case b.OlderThan(a):
		return 1
	}
	return 0
}

func primaryIDs(contacts []*models.Contact) []id.ContactID {
	ids := make([]id.ContactID, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID
	}
	return ids
}

// reconcile runs one read-decide-write pass. It fails with a lockScopeError,
// before writing anything, when scope does not cover every resolved group.
func reconcile(ctx context.Context, store ports.Store, obs models.Observation, scope lockScope) (*models.IdentifyResult, error) {
	matched, err := match(ctx, store, obs)
	if err != nil {
		return nil, err
	}
	primaries, err := resolvePrimaries(ctx, store, matched)
	if err != nil {
		return nil, err
	}
	if err := scope.requireGroups(primaryIDs(primaries)...); err != nil {
		return nil, err
	}

	if len(primaries) == 0 {
		created, err := store.Create(ctx, models.NewPrimary(obs))
		if err != nil {
			return nil, err
		}
		return &models.IdentifyResult{
			View:    models.AssembleView(created, nil),
			Outcome: models.OutcomeCreatePrimary,
			Created: created,
		}, nil
	}

	survivor := primaries[0]
	members, err := store.ChildrenOf(ctx, survivor.ID)
	if err != nil {
		return nil, err
	}
	members = append(members, survivor)

	outcome := models.OutcomeNoop
	var absorbed []id.ContactID
	for _, p := range primaries[1:] {
		children, err := absorb(ctx, store, survivor, p)
		if err != nil {
			return nil, err
		}
		members = append(members, p)
		members = append(members, children...)
		absorbed = append(absorbed, p.ID)
		outcome = models.OutcomeMerge
	}

	var created *models.Contact
	if obs.AddsInformation(members) {
		secondary, err := models.NewSecondary(obs, survivor)
		if err != nil {
			return nil, err
		}
		if created, err = store.Create(ctx, secondary); err != nil {
			return nil, err
		}
		if outcome == models.OutcomeNoop {
			outcome = models.OutcomeAttach
		}
	}

	secondaries, err := store.ChildrenOf(ctx, survivor.ID)
	if err != nil {
		return nil, err
	}
	return &models.IdentifyResult{
		View:     models.AssembleView(survivor, secondaries),
		Outcome:  outcome,
		Created:  created,
		Absorbed: absorbed,
	}, nil
}

// absorb demotes p under survivor and re-points p's secondaries at survivor.
// It returns those secondaries.
func absorb(ctx context.Context, store ports.Store, survivor, p *models.Contact) ([]*models.Contact, error) {
	children, err := store.ChildrenOf(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if err := p.DemoteTo(survivor); err != nil {
		return nil, err
	}
	if _, err := store.Update(ctx, p); err != nil {
		return nil, err
	}
	for _, child := range children {
		if err := child.RelinkTo(survivor); err != nil {
			return nil, err
		}
		if _, err := store.Update(ctx, child); err != nil {
			return nil, err
		}
	}
	return children, nil
}

// loadGroupPrimary loads the primary owning contactID. It fails
// with a lockScopeError when that group is not covered by scope.
func loadGroupPrimary(ctx context.Context, store ports.Store, contactID id.ContactID, scope lockScope) (*models.Contact, error) {
	c, err := store.FindByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if err := c.CheckShape(); err != nil {
		return nil, err
	}
	if err := scope.requireGroups(c.PrimaryID()); err != nil {
		return nil, err
	}
	if c.IsPrimary() {
		return c, nil
	}
	p, err := store.FindByID(ctx, c.PrimaryID())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("contact %s links to missing contact %s", c.ID, c.PrimaryID()))
		}
		return nil, err
	}
	if !p.IsPrimary() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("contact %s links to secondary contact %s", c.ID, p.ID))
	}
	return p, nil
}
