package service

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"climate-rewards-api/internal/cache"
	"climate-rewards-api/internal/database"
	"climate-rewards-api/internal/events"
	"climate-rewards-api/internal/features"
	"climate-rewards-api/internal/models"
	"climate-rewards-api/internal/tracing"
	"climate-rewards-api/internal/validation"
)

// Options tunes the point economy and the catalog cache.
type Options struct {
	// SignupGrant is credited to every new account (earned).
	SignupGrant int64
	// RegistrationAward is credited per event registration (earned) and
	// clawed back on cancellation (adjustment).
	RegistrationAward int64
	// CatalogCacheTTL bounds staleness of the cached catalog listing.
	CatalogCacheTTL time.Duration
}

// DefaultOptions returns the platform defaults.
func DefaultOptions() Options {
	return Options{
		SignupGrant:       1000,
		RegistrationAward: 100,
		CatalogCacheTTL:   time.Minute,
	}
}

// Service provides business logic for the climate rewards platform.
type Service struct {
	db     *database.DB
	cache  cache.Cache
	flags  *features.Manager
	events *events.Manager
	opts   Options
}

// NewService creates a new service instance.
func NewService(db *database.DB, c cache.Cache, flags *features.Manager, ev *events.Manager, opts Options) *Service {
	return &Service{
		db:     db,
		cache:  c,
		flags:  flags,
		events: ev,
		opts:   opts,
	}
}

// GetBalance returns the account's current point balance, the sum of its
// ledger entry deltas. The value is a snapshot and may be stale by the time
// the caller acts on it; Redeem re-validates under its own transaction.
func (s *Service) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if err := validation.ValidateUUID(accountID, "account_id"); err != nil {
		return 0, err
	}
	return s.db.GetBalance(ctx, accountID)
}

// GetLedger returns the account's ledger entries, newest first.
func (s *Service) GetLedger(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	if err := validation.ValidateUUID(accountID, "account_id"); err != nil {
		return nil, err
	}
	return s.db.GetLedger(ctx, accountID)
}

// Redeem exchanges points for a catalog item. Input validation never mutates
// state; all mutation happens inside the storage unit of work, which commits
// the ledger debit, the receipt and the stock decrement together or not at
// all.
func (s *Service) Redeem(ctx context.Context, accountID string, req models.RedeemRequest) (models.RedeemResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "Service.Redeem")
	defer span.End()

	req.ShippingAddress = validation.SanitizeString(req.ShippingAddress)
	req.ItemID = validation.SanitizeString(req.ItemID)

	if err := validation.ValidateRedeemRequest(req); err != nil {
		return models.RedeemResponse{}, err
	}
	if err := validation.ValidateUUID(accountID, "account_id"); err != nil {
		return models.RedeemResponse{}, err
	}

	span.SetAttributes(
		attribute.String("account_id", accountID),
		attribute.String("item_id", req.ItemID),
	)

	outcome, err := s.db.Redeem(ctx, accountID, req.ItemID, req.ShippingAddress)
	if err != nil {
		return models.RedeemResponse{}, err
	}

	s.invalidateCatalog(ctx)
	if s.flags.IsEnabled(features.FeatureEventHooksEnabled) {
		s.events.PublishItemRedeemed(ctx, events.ItemRedeemedData{
			AccountID:   accountID,
			ItemID:      req.ItemID,
			ItemName:    outcome.ItemName,
			PointsSpent: outcome.PointsSpent,
			NewBalance:  outcome.NewBalance,
		})
	}

	return models.RedeemResponse{
		Message:         "Item redeemed successfully",
		RemainingPoints: outcome.NewBalance,
		ItemName:        outcome.ItemName,
	}, nil
}

// ListCatalog returns the redeemable items, served from cache when enabled.
func (s *Service) ListCatalog(ctx context.Context) ([]models.RewardItem, error) {
	useCache := s.flags.IsEnabled(features.FeatureCacheEnabled)

	if useCache {
		var cached []models.RewardItem
		if err := cache.GetJSON(ctx, s.cache, cache.KeyCatalog, &cached); err == nil {
			return cached, nil
		}
	}

	items, err := s.db.ListAvailableItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}

	if s.flags.IsEnabled(features.FeaturePlaceholderImages) {
		for i := range items {
			if items[i].ImageURL == "" {
				items[i].ImageURL = "https://via.placeholder.com/300x200?text=" + url.QueryEscape(items[i].Category)
			}
		}
	}

	if useCache {
		if err := cache.SetJSON(ctx, s.cache, cache.KeyCatalog, items, s.opts.CatalogCacheTTL); err != nil {
			log.Printf("Failed to cache catalog: %v", err)
		}
	}

	return items, nil
}

// GetHistory returns the account's redemption records, newest first.
func (s *Service) GetHistory(ctx context.Context, accountID string) ([]models.RedemptionRecord, error) {
	if err := validation.ValidateUUID(accountID, "account_id"); err != nil {
		return nil, err
	}
	return s.db.GetRedemptionHistory(ctx, accountID)
}

// CreateAccount provisions an account and credits the signup grant.
func (s *Service) CreateAccount(ctx context.Context, req models.CreateAccountRequest) (models.Account, error) {
	account := models.Account{
		ID:       uuid.New().String(),
		Username: validation.SanitizeString(req.Username),
		Email:    validation.SanitizeString(req.Email),
		IsAdmin:  req.IsAdmin,
	}

	if err := validation.ValidateAccount(account); err != nil {
		return models.Account{}, err
	}

	if err := s.db.CreateAccount(ctx, account, s.opts.SignupGrant); err != nil {
		return models.Account{}, err
	}

	if s.opts.SignupGrant > 0 && s.flags.IsEnabled(features.FeatureEventHooksEnabled) {
		s.events.PublishPointsEarned(ctx, account.ID, s.opts.SignupGrant, "Welcome bonus")
	}

	return s.db.GetAccount(ctx, account.ID)
}

// CreateItem adds a catalog entry.
func (s *Service) CreateItem(ctx context.Context, item models.RewardItem) (models.RewardItem, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.Name = validation.SanitizeString(item.Name)
	item.Category = validation.SanitizeString(item.Category)

	if err := validation.ValidateItem(item); err != nil {
		return models.RewardItem{}, err
	}

	created, err := s.db.CreateItem(ctx, item)
	if err != nil {
		return models.RewardItem{}, err
	}

	s.invalidateCatalog(ctx)
	return created, nil
}

// UpdateItem edits a catalog entry.
func (s *Service) UpdateItem(ctx context.Context, item models.RewardItem) (models.RewardItem, error) {
	item.Name = validation.SanitizeString(item.Name)
	item.Category = validation.SanitizeString(item.Category)

	if err := validation.ValidateItem(item); err != nil {
		return models.RewardItem{}, err
	}

	updated, err := s.db.UpdateItem(ctx, item)
	if err != nil {
		return models.RewardItem{}, err
	}

	s.invalidateCatalog(ctx)
	return updated, nil
}

// ListEvents returns all events, newest date first.
func (s *Service) ListEvents(ctx context.Context) ([]models.Event, error) {
	return s.db.ListEvents(ctx)
}

// CreateEvent adds a calendar event on behalf of an admin.
func (s *Service) CreateEvent(ctx context.Context, event models.Event, creatorID string) (models.Event, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.Title = validation.SanitizeString(event.Title)
	event.Location = validation.SanitizeString(event.Location)
	event.CreatedBy = creatorID

	if err := validation.ValidateEvent(event); err != nil {
		return models.Event{}, err
	}

	return s.db.CreateEvent(ctx, event)
}

// UpdateEvent edits a calendar event.
func (s *Service) UpdateEvent(ctx context.Context, event models.Event) (models.Event, error) {
	event.Title = validation.SanitizeString(event.Title)
	event.Location = validation.SanitizeString(event.Location)

	if err := validation.ValidateEvent(event); err != nil {
		return models.Event{}, err
	}

	return s.db.UpdateEvent(ctx, event)
}

// DeleteEvent removes a calendar event.
func (s *Service) DeleteEvent(ctx context.Context, eventID string) error {
	if err := validation.ValidateUUID(eventID, "event_id"); err != nil {
		return err
	}
	return s.db.DeleteEvent(ctx, eventID)
}

// RegisterForEvent registers the account and credits the registration award
// in one unit of work.
func (s *Service) RegisterForEvent(ctx context.Context, eventID, accountID string) (models.EventRegistration, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "Service.RegisterForEvent")
	defer span.End()

	if err := validation.ValidateUUID(eventID, "event_id"); err != nil {
		return models.EventRegistration{}, err
	}
	if err := validation.ValidateUUID(accountID, "account_id"); err != nil {
		return models.EventRegistration{}, err
	}

	registration, err := s.db.RegisterForEvent(ctx, eventID, accountID, s.opts.RegistrationAward)
	if err != nil {
		return models.EventRegistration{}, err
	}

	if s.flags.IsEnabled(features.FeatureEventHooksEnabled) {
		s.events.PublishRegistrationCreated(ctx, registration)
	}

	return registration, nil
}

// CancelRegistration cancels the account's registration and claws back its
// award.
func (s *Service) CancelRegistration(ctx context.Context, eventID, accountID string) error {
	if err := validation.ValidateUUID(eventID, "event_id"); err != nil {
		return err
	}
	if err := validation.ValidateUUID(accountID, "account_id"); err != nil {
		return err
	}

	if err := s.db.CancelRegistration(ctx, eventID, accountID); err != nil {
		return err
	}

	if s.flags.IsEnabled(features.FeatureEventHooksEnabled) {
		s.events.PublishRegistrationCancelled(ctx, eventID, accountID)
	}

	return nil
}

// GetRegisteredEvents returns the events the account is registered for.
func (s *Service) GetRegisteredEvents(ctx context.Context, accountID string) ([]models.RegisteredEvent, error) {
	if err := validation.ValidateUUID(accountID, "account_id"); err != nil {
		return nil, err
	}
	return s.db.GetRegisteredEvents(ctx, accountID)
}

// GetStats aggregates platform-wide counts for the admin dashboard.
func (s *Service) GetStats(ctx context.Context) (models.AdminStats, error) {
	return s.db.GetStats(ctx)
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if !s.flags.IsEnabled(features.FeatureCacheEnabled) {
		return
	}
	if err := s.cache.Delete(ctx, cache.KeyCatalog); err != nil {
		log.Printf("Failed to invalidate catalog cache: %v", err)
	}
}
