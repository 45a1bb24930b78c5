package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"climate-rewards-api/internal/models"
)

const eventColumns = `id, title, description, date, location, type, capacity, status, created_by, created_at, updated_at`

// CreateEvent inserts a new calendar event.
func (db *DB) CreateEvent(ctx context.Context, event models.Event) (models.Event, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	if event.Status == "" {
		event.Status = models.EventUpcoming
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Title, event.Description, event.Date.UTC().Format(time.RFC3339),
		event.Location, event.Type, event.Capacity, event.Status, event.CreatedBy, now, now,
	)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to insert event: %w", err)
	}

	return db.GetEvent(ctx, event.ID)
}

// UpdateEvent replaces the editable fields of an event.
func (db *DB) UpdateEvent(ctx context.Context, event models.Event) (models.Event, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE events
		SET title = ?, description = ?, date = ?, location = ?, type = ?,
			capacity = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		event.Title, event.Description, event.Date.UTC().Format(time.RFC3339),
		event.Location, event.Type, event.Capacity, event.Status,
		time.Now().UTC().Format(time.RFC3339), event.ID,
	)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to update event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return models.Event{}, ErrEventNotFound
	}

	return db.GetEvent(ctx, event.ID)
}

// DeleteEvent removes an event. Registrations and their ledger entries are
// kept; the ledger is append-only and receipts outlive their event.
func (db *DB) DeleteEvent(ctx context.Context, eventID string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEventNotFound
	}

	return nil
}

// GetEvent returns a single event.
func (db *DB) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID)
	return scanEvent(row)
}

// ListEvents returns all events, newest date first.
func (db *DB) ListEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// RegisterForEvent records a registration and its point award in one
// transaction. The status, capacity and duplicate checks read committed
// state under the same write lock as the inserts, so a full event can never
// oversell its capacity.
func (db *DB) RegisterForEvent(ctx context.Context, eventID, accountID string, award int64) (models.EventRegistration, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.EventRegistration{}, wrapBusy(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := db.requireAccount(ctx, tx, accountID); err != nil {
		return models.EventRegistration{}, err
	}

	var (
		title    string
		capacity int64
		status   string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT title, capacity, status FROM events WHERE id = ?`, eventID,
	).Scan(&title, &capacity, &status)
	if err == sql.ErrNoRows {
		return models.EventRegistration{}, ErrEventNotFound
	}
	if err != nil {
		return models.EventRegistration{}, fmt.Errorf("failed to query event: %w", err)
	}

	if status != models.EventUpcoming {
		return models.EventRegistration{}, ErrEventNotOpen
	}

	var registered int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE event_id = ? AND status = ?`,
		eventID, models.RegistrationConfirmed,
	).Scan(&registered)
	if err != nil {
		return models.EventRegistration{}, fmt.Errorf("failed to count registrations: %w", err)
	}
	if registered >= capacity {
		return models.EventRegistration{}, ErrEventFull
	}

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE event_id = ? AND account_id = ? AND status = ?`,
		eventID, accountID, models.RegistrationConfirmed,
	).Scan(&existing)
	if err != nil {
		return models.EventRegistration{}, fmt.Errorf("failed to check registration: %w", err)
	}
	if existing > 0 {
		return models.EventRegistration{}, ErrAlreadyRegistered
	}

	now := time.Now().UTC().Format(time.RFC3339)

	result, err := tx.ExecContext(ctx,
		`INSERT INTO event_registrations (event_id, account_id, status, points_awarded, registered_at)
		VALUES (?, ?, ?, ?, ?)`,
		eventID, accountID, models.RegistrationConfirmed, award, now,
	)
	if err != nil {
		return models.EventRegistration{}, fmt.Errorf("failed to insert registration: %w", err)
	}

	if award > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (account_id, delta, kind, description, created_at) VALUES (?, ?, ?, ?, ?)`,
			accountID, award, models.KindEarned, "Registered for "+title, now,
		)
		if err != nil {
			return models.EventRegistration{}, fmt.Errorf("failed to insert award entry: %w", err)
		}
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.EventRegistration{}, fmt.Errorf("failed to read registration id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.EventRegistration{}, wrapBusy(fmt.Errorf("failed to commit transaction: %w", err))
	}

	registeredAt, _ := time.Parse(time.RFC3339, now)
	return models.EventRegistration{
		ID:            id,
		EventID:       eventID,
		AccountID:     accountID,
		Status:        models.RegistrationConfirmed,
		PointsAwarded: award,
		RegisteredAt:  registeredAt,
	}, nil
}

// CancelRegistration marks the registration cancelled and claws back exactly
// the points it awarded, in one transaction. Cancelling twice claws back once.
func (db *DB) CancelRegistration(ctx context.Context, eventID, accountID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapBusy(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var (
		registrationID int64
		awarded        int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, points_awarded FROM event_registrations
		WHERE event_id = ? AND account_id = ? AND status = ?`,
		eventID, accountID, models.RegistrationConfirmed,
	).Scan(&registrationID, &awarded)
	if err == sql.ErrNoRows {
		return ErrRegistrationNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query registration: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	_, err = tx.ExecContext(ctx,
		`UPDATE event_registrations SET status = ? WHERE id = ?`,
		models.RegistrationCancelled, registrationID,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel registration: %w", err)
	}

	if awarded > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (account_id, delta, kind, description, created_at) VALUES (?, ?, ?, ?, ?)`,
			accountID, -awarded, models.KindAdjustment, "Registration cancelled", now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert claw-back entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapBusy(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// GetRegisteredEvents returns the events the account is registered for,
// newest date first.
func (db *DB) GetRegisteredEvents(ctx context.Context, accountID string) ([]models.RegisteredEvent, error) {
	if err := db.requireAccount(ctx, db.conn, accountID); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT e.id, e.title, e.description, e.date, e.location, e.type,
			e.capacity, e.status, e.created_by, e.created_at, e.updated_at,
			er.status, er.registered_at
		FROM events e
		JOIN event_registrations er ON e.id = er.event_id
		WHERE er.account_id = ?
		ORDER BY e.date DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query registered events: %w", err)
	}
	defer rows.Close()

	var results []models.RegisteredEvent
	for rows.Next() {
		var re models.RegisteredEvent
		var date, createdAt, updatedAt, registeredAt string

		err := rows.Scan(
			&re.ID, &re.Title, &re.Description, &date, &re.Location, &re.Type,
			&re.Capacity, &re.Status, &re.CreatedBy, &createdAt, &updatedAt,
			&re.RegistrationStatus, &registeredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registered event: %w", err)
		}

		if re.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}
		if re.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if re.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		if re.RegisteredAt, err = time.Parse(time.RFC3339, registeredAt); err != nil {
			return nil, fmt.Errorf("failed to parse registered_at: %w", err)
		}

		results = append(results, re)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registered events: %w", err)
	}

	return results, nil
}

// GetStats aggregates platform-wide counts for the admin dashboard.
func (db *DB) GetStats(ctx context.Context) (models.AdminStats, error) {
	var stats models.AdminStats

	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_admin = 1 THEN 1 ELSE 0 END), 0) FROM accounts`,
	).Scan(&stats.TotalAccounts, &stats.AdminAccounts)
	if err != nil {
		return models.AdminStats{}, fmt.Errorf("failed to count accounts: %w", err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) FROM events`,
		models.EventUpcoming,
	).Scan(&stats.TotalEvents, &stats.UpcomingEvents)
	if err != nil {
		return models.AdminStats{}, fmt.Errorf("failed to count events: %w", err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) FROM event_registrations`,
		models.RegistrationConfirmed,
	).Scan(&stats.TotalRegistrations, &stats.ConfirmedRegistrations)
	if err != nil {
		return models.AdminStats{}, fmt.Errorf("failed to count registrations: %w", err)
	}

	err = db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM redemption_records`).Scan(&stats.TotalRedemptions)
	if err != nil {
		return models.AdminStats{}, fmt.Errorf("failed to count redemptions: %w", err)
	}

	return stats, nil
}

func scanEvent(row rowScanner) (models.Event, error) {
	var event models.Event
	var date, createdAt, updatedAt string

	err := row.Scan(
		&event.ID, &event.Title, &event.Description, &date, &event.Location,
		&event.Type, &event.Capacity, &event.Status, &event.CreatedBy,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Event{}, ErrEventNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to scan event: %w", err)
	}

	if event.Date, err = time.Parse(time.RFC3339, date); err != nil {
		return models.Event{}, fmt.Errorf("failed to parse date: %w", err)
	}
	if event.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return models.Event{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if event.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return models.Event{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return event, nil
}
