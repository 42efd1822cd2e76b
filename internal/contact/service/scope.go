package service

import (
	"strings"

	"reconciler/internal/contact/models"
	id "reconciler/pkg/domain"
	pstrings "reconciler/pkg/platform/strings"
)

// lockScope is the set of lock keys a transaction attempt holds.
type lockScope map[string]struct{}

func newLockScope(keys ...string) lockScope {
	s := make(lockScope, len(keys))
	s.add(keys...)
	return s
}

func (s lockScope) add(keys ...string) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

// keys returns the held keys in acquisition order.
func (s lockScope) keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return pstrings.SortedUnique(out)
}

// requireGroups fails with a lockScopeError naming every group key of
// primaryIDs the attempt does not hold.
func (s lockScope) requireGroups(primaryIDs ...id.ContactID) error {
	var missing []string
	for _, pid := range primaryIDs {
		key := models.GroupKey(pid)
		if _, ok := s[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &lockScopeError{missing: missing}
	}
	return nil
}

// lockScopeError aborts an attempt whose resolved groups were not locked.
// Nothing has been written when it is returned.
type lockScopeError struct {
	missing []string
}

func (e *lockScopeError) Error() string {
	return "lock scope missing " + strings.Join(e.missing, ", ")
}
