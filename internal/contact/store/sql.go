package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"reconciler/internal/contact/models"
	id "reconciler/pkg/domain"
	dErrors "reconciler/pkg/domain-errors"
)

var (
	//go:embed schema/postgres.sql
	postgresSchema string

	//go:embed schema/sqlite.sql
	sqliteSchema string
)

// defaultTxTimeout bounds transactions whose context has no deadline.
const defaultTxTimeout = 5 * time.Second

const contactColumns = `id, email, phone_number, linked_id, link_precedence, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		c          models.Contact
		rawID      int64
		email      sql.NullString
		phone      sql.NullString
		linkedID   sql.NullInt64
		precedence string
	)
	if err := row.Scan(&rawID, &email, &phone, &linkedID, &precedence, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = id.ContactID(rawID)
	c.Email = email.String
	c.Phone = phone.String
	c.Precedence = models.Precedence(precedence)
	if linkedID.Valid {
		parent := id.ContactID(linkedID.Int64)
		c.LinkedID = &parent
	}
	return &c, nil
}

func scanContacts(rows *sql.Rows) ([]*models.Contact, error) {
	defer rows.Close()
	var out []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// nullString maps the absent value to NULL so it never matches in lookups.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullLink(linkedID *id.ContactID) sql.NullInt64 {
	if linkedID == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: linkedID.Int64(), Valid: true}
}

// checkInsert validates a record before it reaches the database.
func checkInsert(c *models.Contact) error {
	if !c.ID.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "contact already has an id")
	}
	if c.Email == "" && c.Phone == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "contact needs an email or a phone")
	}
	if c.LinkedID != nil && *c.LinkedID <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "secondary must link to a persisted primary")
	}
	return c.CheckShape()
}
