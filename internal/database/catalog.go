package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"climate-rewards-api/internal/models"
)

const itemColumns = `id, name, description, category, points_cost, stock, status, image_url, created_at, updated_at`

// CreateItem inserts a new catalog entry. Status is derived from stock so the
// invariant "out_of_stock whenever stock is zero" holds from the start.
func (db *DB) CreateItem(ctx context.Context, item models.RewardItem) (models.RewardItem, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	item.Category = strings.ToLower(strings.TrimSpace(item.Category))
	item.Status = statusForStock(item.Stock)

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO reward_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Description, item.Category,
		item.PointsCost, item.Stock, item.Status, item.ImageURL, now, now,
	)
	if err != nil {
		return models.RewardItem{}, fmt.Errorf("failed to insert item: %w", err)
	}

	return db.GetItem(ctx, item.ID)
}

// UpdateItem replaces the editable fields of a catalog entry.
func (db *DB) UpdateItem(ctx context.Context, item models.RewardItem) (models.RewardItem, error) {
	item.Category = strings.ToLower(strings.TrimSpace(item.Category))
	item.Status = statusForStock(item.Stock)

	result, err := db.conn.ExecContext(ctx,
		`UPDATE reward_items
		SET name = ?, description = ?, category = ?, points_cost = ?,
			stock = ?, status = ?, image_url = ?, updated_at = ?
		WHERE id = ?`,
		item.Name, item.Description, item.Category, item.PointsCost,
		item.Stock, item.Status, item.ImageURL,
		time.Now().UTC().Format(time.RFC3339), item.ID,
	)
	if err != nil {
		return models.RewardItem{}, fmt.Errorf("failed to update item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return models.RewardItem{}, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return models.RewardItem{}, ErrItemNotFound
	}

	return db.GetItem(ctx, item.ID)
}

// GetItem returns a single catalog entry regardless of availability.
func (db *DB) GetItem(ctx context.Context, itemID string) (models.RewardItem, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM reward_items WHERE id = ?`, itemID)
	return scanItem(row)
}

// ListAvailableItems returns redeemable items ordered by category then cost,
// matching the storefront's display order.
func (db *DB) ListAvailableItems(ctx context.Context) ([]models.RewardItem, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+itemColumns+`
		FROM reward_items
		WHERE status = ? AND stock > 0
		ORDER BY category ASC, points_cost ASC`,
		models.ItemAvailable,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []models.RewardItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (models.RewardItem, error) {
	var item models.RewardItem
	var createdAt, updatedAt string

	err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.Category,
		&item.PointsCost, &item.Stock, &item.Status, &item.ImageURL,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return models.RewardItem{}, ErrItemNotFound
	}
	if err != nil {
		return models.RewardItem{}, fmt.Errorf("failed to scan item: %w", err)
	}

	item.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return models.RewardItem{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	item.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return models.RewardItem{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return item, nil
}

func statusForStock(stock int64) string {
	if stock <= 0 {
		return models.ItemOutOfStock
	}
	return models.ItemAvailable
}
