package events

import (
	"context"
	"sync"
	"time"

	"climate-rewards-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventPointsEarned is emitted when a ledger entry credits an account
	EventPointsEarned EventType = "points.earned"
	// EventItemRedeemed is emitted when a redemption commits
	EventItemRedeemed EventType = "item.redeemed"
	// EventRegistrationCreated is emitted when an account registers for an event
	EventRegistrationCreated EventType = "registration.created"
	// EventRegistrationCancelled is emitted when a registration is cancelled
	EventRegistrationCancelled EventType = "registration.cancelled"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// PointsEarnedData contains data for points earned events.
type PointsEarnedData struct {
	AccountID   string
	Delta       int64
	Description string
}

// ItemRedeemedData contains data for item redeemed events.
type ItemRedeemedData struct {
	AccountID   string
	ItemID      string
	ItemName    string
	PointsSpent int64
	NewBalance  int64
}

// RegistrationData contains data for registration events.
type RegistrationData struct {
	EventID      string
	AccountID    string
	Registration models.EventRegistration
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Execute handlers asynchronously to avoid blocking
	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				// In production, you might want to log this or send to error tracking
				_ = err
			}
		}(handler)
	}
}

// PublishPointsEarned publishes a points earned event.
func (m *Manager) PublishPointsEarned(ctx context.Context, accountID string, delta int64, description string) {
	m.Publish(ctx, EventPointsEarned, PointsEarnedData{
		AccountID:   accountID,
		Delta:       delta,
		Description: description,
	})
}

// PublishItemRedeemed publishes an item redeemed event.
func (m *Manager) PublishItemRedeemed(ctx context.Context, data ItemRedeemedData) {
	m.Publish(ctx, EventItemRedeemed, data)
}

// PublishRegistrationCreated publishes a registration created event.
func (m *Manager) PublishRegistrationCreated(ctx context.Context, registration models.EventRegistration) {
	m.Publish(ctx, EventRegistrationCreated, RegistrationData{
		EventID:      registration.EventID,
		AccountID:    registration.AccountID,
		Registration: registration,
	})
}

// PublishRegistrationCancelled publishes a registration cancelled event.
func (m *Manager) PublishRegistrationCancelled(ctx context.Context, eventID, accountID string) {
	m.Publish(ctx, EventRegistrationCancelled, RegistrationData{
		EventID:   eventID,
		AccountID: accountID,
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
