package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"reconciler/internal/contact/models"
	dErrors "reconciler/pkg/domain-errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess    = 0
	ExitFailure    = 1
	ExitValidation = 2
)

// ExitError carries the exit code a command failed with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors without one exit
// with ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func fromServiceError(err error) error {
	code := ExitFailure
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		code = ExitValidation
	}
	if msg := dErrors.Message(err); msg != "" {
		return WrapExitError(code, msg, errors.Unwrap(err))
	}
	return WrapExitError(code, "reconcile", err)
}

type viewJSON struct {
	Contact struct {
		PrimaryContactID    int64    `json:"primaryContatctId"`
		Emails              []string `json:"emails"`
		PhoneNumbers        []string `json:"phoneNumbers"`
		SecondaryContactIDs []int64  `json:"secondaryContactIds"`
	} `json:"contact"`
}

func writeView(w io.Writer, format string, view *models.IdentityView) error {
	secondaries := make([]string, len(view.SecondaryIDs))
	for i, sid := range view.SecondaryIDs {
		secondaries[i] = sid.String()
	}

	if format == "text" {
		_, err := fmt.Fprintf(w, "primary contact:    %d\nemails:             %s\nphone numbers:      %s\nsecondary contacts: %s\n",
			view.PrimaryID.Int64(),
			joinOrDash(view.Emails),
			joinOrDash(view.Phones),
			joinOrDash(secondaries),
		)
		return err
	}

	var out viewJSON
	out.Contact.PrimaryContactID = view.PrimaryID.Int64()
	out.Contact.Emails = append([]string{}, view.Emails...)
	out.Contact.PhoneNumbers = append([]string{}, view.Phones...)
	out.Contact.SecondaryContactIDs = make([]int64, 0, len(view.SecondaryIDs))
	for _, sid := range view.SecondaryIDs {
		out.Contact.SecondaryContactIDs = append(out.Contact.SecondaryContactIDs, sid.Int64())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
