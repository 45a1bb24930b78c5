package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"climate-rewards-api/internal/models"
)

// RedeemOutcome reports the committed result of a redemption.
type RedeemOutcome struct {
	ItemName    string
	PointsSpent int64
	NewBalance  int64
}

// Redeem exchanges points for a catalog item. The availability check, the
// balance check and the three writes (ledger debit, redemption record, stock
// decrement) run in a single immediate transaction: either all of them commit
// or none do, and two concurrent redemptions serialize on the database write
// lock so neither balance nor stock can go negative in a committed outcome.
//
// Redemption is deliberately not idempotent: two identical calls are two
// purchases when balance and stock allow.
func (db *DB) Redeem(ctx context.Context, accountID, itemID, shippingAddress string) (RedeemOutcome, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return RedeemOutcome{}, wrapBusy(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := db.requireAccount(ctx, tx, accountID); err != nil {
		return RedeemOutcome{}, err
	}

	var (
		itemName string
		cost     int64
		stock    int64
		status   string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT name, points_cost, stock, status FROM reward_items WHERE id = ?`,
		itemID,
	).Scan(&itemName, &cost, &stock, &status)
	if err == sql.ErrNoRows {
		return RedeemOutcome{}, ErrItemNotFound
	}
	if err != nil {
		return RedeemOutcome{}, fmt.Errorf("failed to query item: %w", err)
	}

	if status != models.ItemAvailable || stock <= 0 {
		return RedeemOutcome{}, ErrItemUnavailable
	}

	balance, err := sumBalance(ctx, tx, accountID)
	if err != nil {
		return RedeemOutcome{}, err
	}
	if balance < cost {
		return RedeemOutcome{}, &InsufficientPointsError{Required: cost, Balance: balance}
	}

	now := time.Now().UTC().Format(time.RFC3339)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (account_id, delta, kind, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		accountID, -cost, models.KindRedeemed, "Redeemed "+itemName, now,
	)
	if err != nil {
		return RedeemOutcome{}, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO redemption_records (account_id, item_id, item_name, points_spent, shipping_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		accountID, itemID, itemName, cost, shippingAddress, now,
	)
	if err != nil {
		return RedeemOutcome{}, fmt.Errorf("failed to insert redemption record: %w", err)
	}

	// Stock must never go negative; a zero row count means the last unit
	// was already taken.
	result, err := tx.ExecContext(ctx,
		`UPDATE reward_items
		SET stock = stock - 1,
			status = CASE WHEN stock - 1 <= 0 THEN ? ELSE status END,
			updated_at = ?
		WHERE id = ? AND stock > 0`,
		models.ItemOutOfStock, now, itemID,
	)
	if err != nil {
		return RedeemOutcome{}, fmt.Errorf("failed to decrement stock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return RedeemOutcome{}, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return RedeemOutcome{}, ErrItemUnavailable
	}

	if err := tx.Commit(); err != nil {
		return RedeemOutcome{}, wrapBusy(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return RedeemOutcome{
		ItemName:    itemName,
		PointsSpent: cost,
		NewBalance:  balance - cost,
	}, nil
}

// GetRedemptionHistory returns the account's redemption records, newest first.
func (db *DB) GetRedemptionHistory(ctx context.Context, accountID string) ([]models.RedemptionRecord, error) {
	if err := db.requireAccount(ctx, db.conn, accountID); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, account_id, item_id, item_name, points_spent, shipping_address, created_at
		FROM redemption_records
		WHERE account_id = ?
		ORDER BY id DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemption records: %w", err)
	}
	defer rows.Close()

	var records []models.RedemptionRecord
	for rows.Next() {
		var record models.RedemptionRecord
		var createdAt string

		err := rows.Scan(
			&record.ID, &record.AccountID, &record.ItemID, &record.ItemName,
			&record.PointsSpent, &record.ShippingAddress, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan redemption record: %w", err)
		}

		record.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating redemption records: %w", err)
	}

	return records, nil
}
