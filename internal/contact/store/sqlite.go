package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/ports"
	id "reconciler/pkg/domain"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
	txcontext "reconciler/pkg/platform/tx"
)

// SQLite persists contacts in a single SQLite file. It is meant for the CLI
// and single-node deployments: the database handle must be limited to one
// connection, which serializes every transaction.
type SQLite struct {
	db    *sql.DB
	clock func() time.Time
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, clock: time.Now}
}

// Migrate creates the contacts table and its indexes if missing.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return classifySQLite("migrate contacts schema", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return classifySQLite("ping sqlite", s.db.PingContext(ctx))
}

func (s *SQLite) FindByEmailOrPhone(ctx context.Context, email, phone string) ([]*models.Contact, error) {
	if email == "" && phone == "" {
		return nil, nil
	}
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE email = ? OR phone_number = ?
		ORDER BY id`
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, query, nullString(email), nullString(phone))
	if err != nil {
		return nil, classifySQLite("find contacts by email or phone", err)
	}
	contacts, err := scanContacts(rows)
	if err != nil {
		return nil, classifySQLite("find contacts by email or phone", err)
	}
	return contacts, nil
}

func (s *SQLite) FindByID(ctx context.Context, contactID id.ContactID) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = ?`
	c, err := scanContact(txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query, contactID.Int64()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contact %s: %w", contactID, sentinel.ErrNotFound)
		}
		return nil, classifySQLite("find contact by id", err)
	}
	return c, nil
}

func (s *SQLite) ChildrenOf(ctx context.Context, primaryID id.ContactID) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE linked_id = ? AND link_precedence = 'secondary'
		ORDER BY id`
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, query, primaryID.Int64())
	if err != nil {
		return nil, classifySQLite("list linked contacts", err)
	}
	contacts, err := scanContacts(rows)
	if err != nil {
		return nil, classifySQLite("list linked contacts", err)
	}
	return contacts, nil
}

func (s *SQLite) Create(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	if err := checkInsert(contact); err != nil {
		return nil, err
	}
	c := contact.Clone()
	now := s.clock().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	res, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO contacts (email, phone_number, linked_id, link_precedence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(c.Email),
		nullString(c.Phone),
		nullLink(c.LinkedID),
		string(c.Precedence),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return nil, classifySQLite("insert contact", err)
	}
	rawID, err := res.LastInsertId()
	if err != nil {
		return nil, classifySQLite("insert contact", err)
	}
	c.ID = id.ContactID(rawID)
	return c, nil
}

func (s *SQLite) Update(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	if err := contact.CheckShape(); err != nil {
		return nil, err
	}
	c := contact.Clone()
	c.UpdatedAt = s.clock().UTC()
	res, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE contacts SET linked_id = ?, link_precedence = ?, updated_at = ?
		WHERE id = ?`,
		nullLink(c.LinkedID),
		string(c.Precedence),
		c.UpdatedAt,
		c.ID.Int64(),
	)
	if err != nil {
		return nil, classifySQLite("update contact", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, classifySQLite("update contact", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("update contact %s: %w", c.ID, sentinel.ErrNotFound)
	}
	return c, nil
}

// SQLiteTx runs transactions on a single-connection SQLite handle. The
// connection itself is the lock, so lock keys are not needed.
type SQLiteTx struct {
	db      *sql.DB
	store   *SQLite
	timeout time.Duration
}

func NewSQLiteTx(db *sql.DB, timeout time.Duration) *SQLiteTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &SQLiteTx{db: db, store: NewSQLite(db), timeout: timeout}
}

func (t *SQLiteTx) RunInTx(ctx context.Context, _ []string, fn func(ctx context.Context, store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return classifySQLite("begin transaction", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, sqlTx), t.store); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classifySQLite("commit transaction", err)
	}
	return nil
}

func classifySQLite(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrFull:
			return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
		case sqlite3.ErrConstraint:
			return dErrors.Wrap(err, dErrors.CodeInvariantViolation, op+": integrity constraint violated")
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
