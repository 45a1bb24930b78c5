package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// DB wraps the database connection and provides methods for data access.
// Balance and stock are only ever mutated inside the unit-of-work methods
// (Redeem, RegisterForEvent, CancelRegistration, CreateAccount); everything
// else is a pure read or a catalog/event write that never touches either.
type DB struct {
	conn *sql.DB
}

// Domain errors surfaced by the storage layer. The handler maps these to
// HTTP statuses; everything else is treated as unexpected.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrItemNotFound         = errors.New("item not found")
	ErrItemUnavailable      = errors.New("item not available or out of stock")
	ErrEventNotFound        = errors.New("event not found")
	ErrEventNotOpen         = errors.New("registration is only available for upcoming events")
	ErrEventFull            = errors.New("event is already full")
	ErrAlreadyRegistered    = errors.New("already registered for this event")
	ErrRegistrationNotFound = errors.New("registration not found")

	// ErrConflict marks a commit that could not be applied due to store
	// contention. Callers may retry the whole operation from validation.
	ErrConflict = errors.New("storage conflict, please retry")
)

// InsufficientPointsError reports a balance below the item's cost. Both
// numbers are part of the caller-facing message.
type InsufficientPointsError struct {
	Required int64
	Balance  int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("Insufficient points. You need %d points but have %d", e.Required, e.Balance)
}

// NewDB creates a new database connection and initializes the schema.
// The DSN requests immediate transactions so every unit of work takes the
// write lock up front; concurrent units of work serialize on it and the
// balance/stock checks always see committed state.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			is_admin INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			delta INTEGER NOT NULL,
			kind TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reward_items (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			points_cost INTEGER NOT NULL,
			stock INTEGER NOT NULL,
			status TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS redemption_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			item_id TEXT NOT NULL,
			item_name TEXT NOT NULL,
			points_spent INTEGER NOT NULL,
			shipping_address TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL,
			location TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			capacity INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS event_registrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			status TEXT NOT NULL,
			points_awarded INTEGER NOT NULL DEFAULT 0,
			registered_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_redemptions_account ON redemption_records(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_registrations_event ON event_registrations(event_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_registrations_account ON event_registrations(account_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_registration
			ON event_registrations(event_id, account_id) WHERE status = 'confirmed'`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// isBusy reports whether err is sqlite lock contention, the only storage
// failure eligible for caller-initiated retry.
func isBusy(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

// wrapBusy converts lock contention into ErrConflict, leaving other errors
// untouched.
func wrapBusy(err error) error {
	if isBusy(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
