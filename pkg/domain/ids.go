package domain

import (
	"strconv"
	"strings"

	dErrors "reconciler/pkg/domain-errors"
)

// ContactID identifies a Contact record. Ids are assigned by the store,
// strictly positive and monotonically increasing, so they double as the
// creation-order tie-break.
type ContactID int64

// ParseContactID parses a decimal contact id at a trust boundary.
func ParseContactID(s string) (ContactID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "contact id is required")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, "contact id must be an integer")
	}
	if v <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "contact id must be positive")
	}
	return ContactID(v), nil
}

// Int64 returns the raw id for persistence and wire formats.
func (id ContactID) Int64() int64 {
	return int64(id)
}

func (id ContactID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// IsZero reports whether the id is unassigned.
func (id ContactID) IsZero() bool {
	return id == 0
}
