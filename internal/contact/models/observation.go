package models

import (
	"strings"

	id "reconciler/pkg/domain"
	dErrors "reconciler/pkg/domain-errors"
)

// Observation is one submitted (email?, phone?) pair. Empty means absent.
type Observation struct {
	Email string
	Phone string
}

// Normalize treats whitespace-only values as absent. Non-blank values are kept
// verbatim because matching is exact.
func (o Observation) Normalize() Observation {
	if strings.TrimSpace(o.Email) == "" {
		o.Email = ""
	}
	if strings.TrimSpace(o.Phone) == "" {
		o.Phone = ""
	}
	return o
}

func (o Observation) Validate() error {
	if o.Email == "" && o.Phone == "" {
		return dErrors.New(dErrors.CodeValidation, "either email or phoneNumber must be provided")
	}
	return nil
}

// AddsInformation reports whether the observation holds an email or phone not
// present anywhere among members.
func (o Observation) AddsInformation(members []*Contact) bool {
	emailKnown := o.Email == ""
	phoneKnown := o.Phone == ""
	for _, m := range members {
		if !emailKnown && m.Email == o.Email {
			emailKnown = true
		}
		if !phoneKnown && m.Phone == o.Phone {
			phoneKnown = true
		}
		if emailKnown && phoneKnown {
			return false
		}
	}
	return !emailKnown || !phoneKnown
}

// Matches reports whether c would be returned by an exact lookup on o.
func (o Observation) Matches(c *Contact) bool {
	return (o.Email != "" && c.Email == o.Email) || (o.Phone != "" && c.Phone == o.Phone)
}

// LockKeys are the keys any transaction creating a record for o must hold.
func (o Observation) LockKeys() []string {
	keys := make([]string, 0, 2)
	if o.Email != "" {
		keys = append(keys, EmailKey(o.Email))
	}
	if o.Phone != "" {
		keys = append(keys, PhoneKey(o.Phone))
	}
	return keys
}

// EmailKey, PhoneKey and GroupKey name the lock scopes used to serialize
// reconciliation: field keys guard record creation for a value, group keys
// guard every mutation inside an identity group.
func EmailKey(email string) string { return "email:" + email }

func PhoneKey(phone string) string { return "phone:" + phone }

func GroupKey(primaryID id.ContactID) string { return "contact:" + primaryID.String() }
