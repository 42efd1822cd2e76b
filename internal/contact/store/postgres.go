package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/ports"
	id "reconciler/pkg/domain"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
	pstrings "reconciler/pkg/platform/strings"
	txcontext "reconciler/pkg/platform/tx"
)

// Postgres persists contacts in PostgreSQL. Methods run inside the
// transaction carried by ctx when there is one.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the contacts table and its indexes if missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return classifyPostgres("migrate contacts schema", err)
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return classifyPostgres("ping postgres", s.db.PingContext(ctx))
}

func (s *Postgres) FindByEmailOrPhone(ctx context.Context, email, phone string) ([]*models.Contact, error) {
	if email == "" && phone == "" {
		return nil, nil
	}
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE email = $1 OR phone_number = $2
		ORDER BY id`
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, query, nullString(email), nullString(phone))
	if err != nil {
		return nil, classifyPostgres("find contacts by email or phone", err)
	}
	contacts, err := scanContacts(rows)
	if err != nil {
		return nil, classifyPostgres("find contacts by email or phone", err)
	}
	return contacts, nil
}

func (s *Postgres) FindByID(ctx context.Context, contactID id.ContactID) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	c, err := scanContact(txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query, contactID.Int64()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contact %s: %w", contactID, sentinel.ErrNotFound)
		}
		return nil, classifyPostgres("find contact by id", err)
	}
	return c, nil
}

func (s *Postgres) ChildrenOf(ctx context.Context, primaryID id.ContactID) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE linked_id = $1 AND link_precedence = 'secondary'
		ORDER BY id`
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, query, primaryID.Int64())
	if err != nil {
		return nil, classifyPostgres("list linked contacts", err)
	}
	contacts, err := scanContacts(rows)
	if err != nil {
		return nil, classifyPostgres("list linked contacts", err)
	}
	return contacts, nil
}

// Create inserts contact. Timestamps come from clock_timestamp() so records
// created later in the same transaction are strictly younger.
func (s *Postgres) Create(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	if err := checkInsert(contact); err != nil {
		return nil, err
	}
	query := `
		WITH clock AS (SELECT clock_timestamp() AS ts)
		INSERT INTO contacts (email, phone_number, linked_id, link_precedence, created_at, updated_at)
		SELECT $1, $2, $3, $4, clock.ts, clock.ts FROM clock
		RETURNING id, created_at, updated_at
	`
	c := contact.Clone()
	var rawID int64
	err := txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query,
		nullString(c.Email),
		nullString(c.Phone),
		nullLink(c.LinkedID),
		string(c.Precedence),
	).Scan(&rawID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, classifyPostgres("insert contact", err)
	}
	c.ID = id.ContactID(rawID)
	return c, nil
}

// Update persists precedence and link. Values and creation time never change.
func (s *Postgres) Update(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	if err := contact.CheckShape(); err != nil {
		return nil, err
	}
	query := `
		UPDATE contacts
		SET linked_id = $2, link_precedence = $3, updated_at = clock_timestamp()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	c := contact.Clone()
	err := txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query,
		c.ID.Int64(),
		nullLink(c.LinkedID),
		string(c.Precedence),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("update contact %s: %w", c.ID, sentinel.ErrNotFound)
		}
		return nil, classifyPostgres("update contact", err)
	}
	return c, nil
}

// PostgresTx runs transactions holding transaction-scoped advisory locks,
// one per lock key, taken in sorted order.
type PostgresTx struct {
	db      *sql.DB
	store   *Postgres
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB, timeout time.Duration) *PostgresTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &PostgresTx{db: db, store: NewPostgres(db), timeout: timeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classifyPostgres("begin transaction", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	for _, key := range pstrings.SortedUnique(keys) {
		if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return classifyPostgres("acquire lock "+key, err)
		}
	}

	if err := fn(txcontext.WithTx(ctx, sqlTx), t.store); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classifyPostgres("commit transaction", err)
	}
	return nil
}

// classifyPostgres marks connection-level failures as sentinel.ErrUnavailable
// and wraps everything else with op. Both the lib/pq and the pgx driver
// error types are understood.
func classifyPostgres(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	switch code := sqlState(err); {
	case code == "" || code == "57014":
		// not a server error, or a cancelled statement
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"), strings.HasPrefix(code, "57"):
		// connection exception, insufficient resources, operator intervention
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	case strings.HasPrefix(code, "23"):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, op+": integrity constraint violated")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// sqlState extracts the SQLSTATE code of a server error.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isUnavailable reports driver-independent signs of a lost connection.
func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
