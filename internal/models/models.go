package models

import "time"

// Ledger entry kinds. Entries are append-only; the set is closed.
const (
	KindEarned     = "earned"
	KindRedeemed   = "redeemed"
	KindAdjustment = "adjustment"
)

// Reward item availability states.
const (
	ItemAvailable  = "available"
	ItemOutOfStock = "out_of_stock"
)

// Event lifecycle states.
const (
	EventUpcoming  = "upcoming"
	EventOngoing   = "ongoing"
	EventCompleted = "completed"
	EventCancelled = "cancelled"
)

// Registration states.
const (
	RegistrationConfirmed = "confirmed"
	RegistrationCancelled = "cancelled"
)

// Account represents a platform user. Credentials live with the external
// auth service; only the identity and admin flag are kept here.
type Account struct {
	ID        string    `json:"id"` // uuid
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerEntry is an immutable record of a single balance change.
// An account's balance is the sum of its entry deltas.
type LedgerEntry struct {
	ID          int64     `json:"id"`
	AccountID   string    `json:"account_id"`
	Delta       int64     `json:"delta"`
	Kind        string    `json:"kind"` // earned | redeemed | adjustment
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// RewardItem is a catalog entry exchangeable for points.
type RewardItem struct {
	ID          string    `json:"id"` // uuid
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	PointsCost  int64     `json:"points_required"`
	Stock       int64     `json:"stock"`
	Status      string    `json:"status"` // available | out_of_stock
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RedemptionRecord is the receipt of a completed redemption. Item name and
// cost are snapshots taken at redemption time, not live references.
type RedemptionRecord struct {
	ID              int64     `json:"id"`
	AccountID       string    `json:"account_id"`
	ItemID          string    `json:"item_id"`
	ItemName        string    `json:"item_name"`
	PointsSpent     int64     `json:"points_spent"`
	ShippingAddress string    `json:"shipping_address"`
	CreatedAt       time.Time `json:"redemption_date"`
}

// Event is an admin-managed calendar entry.
type Event struct {
	ID          string    `json:"id"` // uuid
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Type        string    `json:"type"`
	Capacity    int64     `json:"capacity"`
	Status      string    `json:"status"` // upcoming | ongoing | completed | cancelled
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventRegistration links an account to an event. PointsAwarded snapshots
// the registration award so a later cancellation claws back exactly what
// was granted.
type EventRegistration struct {
	ID            int64     `json:"id"`
	EventID       string    `json:"event_id"`
	AccountID     string    `json:"account_id"`
	Status        string    `json:"status"` // confirmed | cancelled
	PointsAwarded int64     `json:"points_awarded"`
	RegisteredAt  time.Time `json:"registration_date"`
}

// RegisteredEvent is an event joined with the caller's registration.
type RegisteredEvent struct {
	Event
	RegistrationStatus string    `json:"registration_status"`
	RegisteredAt       time.Time `json:"registration_date"`
}

// BalanceResponse is the payload for the points endpoint.
type BalanceResponse struct {
	Points int64 `json:"points"`
}

// RedeemRequest is the request body for redeeming an item.
type RedeemRequest struct {
	ItemID          string `json:"itemId"`
	ShippingAddress string `json:"shippingAddress"`
}

// RedeemResponse is returned on a successful redemption.
type RedeemResponse struct {
	Message         string `json:"message"`
	RemainingPoints int64  `json:"remainingPoints"`
	ItemName        string `json:"itemName"`
}

// CreateAccountRequest provisions an account for a verified identity.
type CreateAccountRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

// AdminStats aggregates platform-wide counts for the admin dashboard.
type AdminStats struct {
	TotalAccounts          int64 `json:"total_accounts"`
	AdminAccounts          int64 `json:"admin_accounts"`
	TotalEvents            int64 `json:"total_events"`
	UpcomingEvents         int64 `json:"upcoming_events"`
	TotalRegistrations     int64 `json:"total_registrations"`
	ConfirmedRegistrations int64 `json:"confirmed_registrations"`
	TotalRedemptions       int64 `json:"total_redemptions"`
}

// ErrorResponse is the error payload shape for every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
}
