package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"climate-rewards-api/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx so balance reads can run
// standalone or inside a unit of work.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CreateAccount inserts the account and, when signupGrant > 0, its welcome
// ledger entry in one transaction.
func (db *DB) CreateAccount(ctx context.Context, account models.Account, signupGrant int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapBusy(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, is_admin, created_at) VALUES (?, ?, ?, ?, ?)`,
		account.ID, account.Username, account.Email, account.IsAdmin, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	if signupGrant > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (account_id, delta, kind, description, created_at) VALUES (?, ?, ?, ?, ?)`,
			account.ID, signupGrant, models.KindEarned, "Welcome bonus", now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert signup grant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapBusy(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// GetAccount returns the account with the given id.
func (db *DB) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	var account models.Account
	var isAdmin int
	var createdAt string

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, email, is_admin, created_at FROM accounts WHERE id = ?`,
		accountID,
	).Scan(&account.ID, &account.Username, &account.Email, &isAdmin, &createdAt)
	if err == sql.ErrNoRows {
		return models.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to query account: %w", err)
	}

	account.IsAdmin = isAdmin != 0
	account.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return account, nil
}

// GetBalance returns the sum of the account's ledger entry deltas. The value
// is a snapshot; the redemption unit of work re-reads it under its own
// transaction rather than trusting a prior read.
func (db *DB) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if err := db.requireAccount(ctx, db.conn, accountID); err != nil {
		return 0, err
	}
	return sumBalance(ctx, db.conn, accountID)
}

// GetLedger returns the account's ledger entries, newest first.
func (db *DB) GetLedger(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	if err := db.requireAccount(ctx, db.conn, accountID); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, account_id, delta, kind, description, created_at
		FROM ledger_entries
		WHERE account_id = ?
		ORDER BY id DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var createdAt string

		err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Delta, &entry.Kind, &entry.Description, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		entry.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

// requireAccount fails with ErrAccountNotFound when the account does not exist.
func (db *DB) requireAccount(ctx context.Context, q querier, accountID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, accountID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	return nil
}

// sumBalance aggregates the ledger for one account.
func sumBalance(ctx context.Context, q querier, accountID string) (int64, error) {
	var balance int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE account_id = ?`,
		accountID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return balance, nil
}
