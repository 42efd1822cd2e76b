package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"reconciler/internal/contact/models"
	dErrors "reconciler/pkg/domain-errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// PhoneNumber accepts a JSON string or an integer literal. Numbers keep their
// decimal text.
type PhoneNumber string

func (p *PhoneNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PhoneNumber(s)
		return nil
	}
	if len(data) == 0 {
		return errors.New("phoneNumber is empty")
	}
	for _, c := range data {
		if c < '0' || c > '9' {
			return fmt.Errorf("phoneNumber must be a string or an integer, got %s", data)
		}
	}
	*p = PhoneNumber(data)
	return nil
}

// IdentifyRequest is the body of POST /identify.
type IdentifyRequest struct {
	Email       string      `json:"email" validate:"omitempty,email,max=254"`
	PhoneNumber PhoneNumber `json:"phoneNumber" validate:"max=32"`
}

// Validate clears blank fields and checks the remaining values.
func (r *IdentifyRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		r.Email = ""
	}
	if strings.TrimSpace(string(r.PhoneNumber)) == "" {
		r.PhoneNumber = ""
	}
	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return dErrors.New(dErrors.CodeValidation, fieldMessage(fieldErrs[0]))
		}
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request")
	}
	return r.Observation().Validate()
}

// Observation converts the request into the domain input.
func (r *IdentifyRequest) Observation() models.Observation {
	return models.Observation{
		Email: r.Email,
		Phone: string(r.PhoneNumber),
	}
}

func fieldMessage(fe validator.FieldError) string {
	name := "email"
	if fe.StructField() == "PhoneNumber" {
		name = "phoneNumber"
	}
	switch fe.Tag() {
	case "email":
		return name + " must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	default:
		return name + " is invalid"
	}
}
