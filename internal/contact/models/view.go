package models

import (
	"slices"

	id "reconciler/pkg/domain"
	pstrings "reconciler/pkg/platform/strings"
)

// IdentityView is the consolidated identity of one group.
type IdentityView struct {
	PrimaryID    id.ContactID
	Emails       []string
	Phones       []string
	SecondaryIDs []id.ContactID
}

// AssembleView derives the consolidated view from a primary and its linked
// secondaries. The primary's values come first; the rest follow in the order
// first seen while scanning secondaries by ascending id.
func AssembleView(primary *Contact, secondaries []*Contact) *IdentityView {
	ordered := slices.Clone(secondaries)
	slices.SortFunc(ordered, func(a, b *Contact) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	emails := make([]string, 0, len(ordered)+1)
	phones := make([]string, 0, len(ordered)+1)
	ids := make([]id.ContactID, 0, len(ordered))
	emails = append(emails, primary.Email)
	phones = append(phones, primary.Phone)
	for _, s := range ordered {
		emails = append(emails, s.Email)
		phones = append(phones, s.Phone)
		if s.ID != primary.ID {
			ids = append(ids, s.ID)
		}
	}

	return &IdentityView{
		PrimaryID:    primary.ID,
		Emails:       pstrings.DedupeNonEmpty(emails),
		Phones:       pstrings.DedupeNonEmpty(phones),
		SecondaryIDs: pstrings.SortedUnique(ids),
	}
}
