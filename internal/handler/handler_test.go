package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"climate-rewards-api/internal/cache"
	"climate-rewards-api/internal/database"
	"climate-rewards-api/internal/events"
	"climate-rewards-api/internal/features"
	"climate-rewards-api/internal/middleware"
	"climate-rewards-api/internal/models"
	"climate-rewards-api/internal/service"
)

const (
	userToken  = "user-token"
	adminToken = "admin-token"
)

type testAPI struct {
	router  http.Handler
	db      *database.DB
	userID  string
	adminID string
	cleanup func()
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()

	dbPath := "./test_" + uuid.New().String() + ".db"
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	userID := uuid.New().String()
	adminID := uuid.New().String()
	seed := []models.Account{
		{ID: userID, Username: "user", Email: "user@example.org"},
		{ID: adminID, Username: "admin", Email: "admin@example.org", IsAdmin: true},
	}
	for _, account := range seed {
		if err := db.CreateAccount(context.Background(), account, 1000); err != nil {
			t.Fatalf("Failed to seed account: %v", err)
		}
	}

	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, false, "")
	flags.Register(features.FeatureEventHooksEnabled, false, "")
	flags.Register(features.FeaturePlaceholderImages, false, "")

	svc := service.NewService(db, cache.NewInMemoryCache(), flags, events.NewManager(false), service.DefaultOptions())
	h := NewHandler(svc)

	verifier := middleware.NewStaticVerifier()
	verifier.Add(userToken, middleware.Identity{AccountID: userID})
	verifier.Add(adminToken, middleware.Identity{AccountID: adminID, IsAdmin: true})

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(verifier))

		r.Get("/users/points", h.GetPoints)
		r.Get("/users/ledger", h.GetLedger)

		r.Get("/redemption/items", h.ListCatalog)
		r.Post("/redemption/redeem", h.Redeem)
		r.Get("/redemption/history", h.GetHistory)

		r.Get("/events", h.ListEvents)
		r.Get("/events/my-registrations", h.MyRegistrations)
		r.Post("/events/{id}/register", h.RegisterForEvent)
		r.Delete("/events/{id}/register", h.CancelRegistration)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/redemption/items", h.CreateItem)
			r.Put("/redemption/items/{id}", h.UpdateItem)
			r.Post("/events", h.CreateEvent)
			r.Post("/accounts", h.CreateAccount)
			r.Get("/admin/stats", h.GetStats)
		})
	})

	return &testAPI{
		router:  r,
		db:      db,
		userID:  userID,
		adminID: adminID,
		cleanup: func() {
			db.Close()
			os.Remove(dbPath)
		},
	}
}

func (api *testAPI) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func (api *testAPI) seedItem(t *testing.T, name string, cost, stock int64) string {
	t.Helper()
	item, err := api.db.CreateItem(context.Background(), models.RewardItem{
		ID:         uuid.New().String(),
		Name:       name,
		Category:   "merchandise",
		PointsCost: cost,
		Stock:      stock,
	})
	if err != nil {
		t.Fatalf("Failed to seed item: %v", err)
	}
	return item.ID
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestAuthentication(t *testing.T) {
	api := setupAPI(t)
	defer api.cleanup()

	rec := api.request(t, http.MethodGet, "/users/points", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}

	rec = api.request(t, http.MethodGet, "/users/points", "bogus", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for unknown token, got %d", rec.Code)
	}

	rec = api.request(t, http.MethodGet, "/users/points", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with valid token, got %d", rec.Code)
	}
}

func TestGetPoints(t *testing.T) {
	api := setupAPI(t)
	defer api.cleanup()

	rec := api.request(t, http.MethodGet, "/users/points", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var balance models.BalanceResponse
	decodeResponse(t, rec, &balance)
	if balance.Points != 1000 {
		t.Errorf("Expected 1000 points, got %d", balance.Points)
	}
}

func TestGetLedger(t *testing.T) {
	api := setupAPI(t)
	defer api.cleanup()

	rec := api.request(t, http.MethodGet, "/users/ledger", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var entries []models.LedgerEntry
	decodeResponse(t, rec, &entries)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 ledger entry, got %d", len(entries))
	}
	if entries[0].Delta != 1000 || entries[0].Kind != models.KindEarned {
		t.Errorf("Expected seed grant entry, got delta=%d kind=%q", entries[0].Delta, entries[0].Kind)
	}
}

func TestRedeemEndpoint(t *testing.T) {
	api := setupAPI(t)
	defer api.cleanup()

	itemID := api.seedItem(t, "Tote Bag", 200, 5)

	rec := api.request(t, http.MethodPost, "/redemption/redeem", userToken, models.RedeemRequest{
		ItemID:          itemID,
		ShippingAddress: "12 Ocean Drive",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result models.RedeemResponse
	decodeResponse(t, rec, &result)
	if result.RemainingPoints != 800 {
		t.Errorf("Expected remainingPoints 800, got %d", result.RemainingPoints)
	}
	if result.ItemName != "Tote Bag" {
		t.Errorf("Expected itemName 'Tote Bag', got %q", result.ItemName)
	}

	rec = api.request(t, http.MethodGet, "/redemption/history", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var records []models.RedemptionRecord
	decodeResponse(t, rec, &records)
	if len(records) != 1 || records[0].PointsSpent != 200 {
		t.Errorf("Expected a single 200-point record, got %+v", records)
	}
}

func TestRedeemEndpoint_InsufficientPoints(t *testing.T) {
	api := setupAPI(t)
	defer api.cleanup()

	itemID := api.seedItem(t, "E-Bike", 5000, 2)

	rec := api.request(t, http.MethodPost, "/redemption/redeem", userToken, models.RedeemRequest{
		ItemID:          itemID,
		ShippingAddress: "12 Ocean Drive",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	var errResp models.ErrorResponse
	decodeResponse(t, rec, &errResp)
	if !strings.Contains(errResp.Message, "5000") || !strings.Contains(errResp.Message, "1000") {
		t.Errorf("Expected message to carry required and current points, got %q", errResp.Message)
	}
}

func TestRedeemEndpoint_Errors(t *testing.T) {
	api := setupAPI(t)
	defer api.cleanup()

	outOfStock := api.seedItem(t, "Solar Charger", 100, 0)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{
			name: "unknown item",
			body: models.RedeemRequest{ItemID: uuid.New().String(), ShippingAddress: "12 Ocean Drive"},
			want: http.StatusNotFound,
		},
		{
			name: "out of stock",
			body: models.RedeemRequest{ItemID: outOfStock, ShippingAddress: "12 Ocean Drive"},
			want: http.StatusConflict,
		},
		{
			name: "missing shipping address",
			body: models.RedeemRequest{ItemID: outOfStock},
			want: http.StatusBadRequest,
		},
		{
			name: "malformed item id",
			body: models.RedeemRequest{ItemID: "not-a-uuid", ShippingAddress: "12 Ocean Drive"},
			want: http.StatusBadRequest,
		},
		{
			name: "empty body",
			body: nil,
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.request(t, http.MethodPost, "/redemption/redeem", userToken, tt.body)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListCatalog(t *testing.T) {
	api := setupAPI(t)
	defer api.cleanup()

	// Empty catalog is a 404, not an empty list
	rec := api.request(t, http.MethodGet, "/redemption/items", userToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for empty catalog, got %d", rec.Code)
	}

	api.seedItem(t, "Tote Bag", 200, 5)
	api.seedItem(t, "Bamboo Cup", 100, 3)

	rec = api.request(t, http.MethodGet, "/redemption/items", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var items []models.RewardItem
	decodeResponse(t, rec, &items)
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	// Same category, so ordered by ascending cost
	if items[0].PointsCost != 100 || items[1].PointsCost != 200 {
		t.Errorf("Expected items ordered by cost, got %d then %d", items[0].PointsCost, items[1].PointsCost)
	}
}

func TestCreateItem_AdminOnly(t *testing.T) {
	api := setupAPI(t)
	defer api.cleanup()

	item := models.RewardItem{
		Name:       "Tote Bag",
		Category:   "merchandise",
		PointsCost: 200,
		Stock:      5,
	}

	rec := api.request(t, http.MethodPost, "/redemption/items", userToken, item)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for non-admin, got %d", rec.Code)
	}

	rec = api.request(t, http.MethodPost, "/redemption/items", adminToken, item)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for admin, got %d: %s", rec.Code, rec.Body.String())
	}

	var created models.RewardItem
	decodeResponse(t, rec, &created)
	if created.ID == "" {
		t.Error("Expected a generated item id")
	}
	if created.Status != models.ItemAvailable {
		t.Errorf("Expected status available, got %q", created.Status)
	}
}

func TestEventRegistrationFlow(t *testing.T) {
	api := setupAPI(t)
	defer api.cleanup()

	rec := api.request(t, http.MethodPost, "/events", adminToken, models.Event{
		Title:    "Beach Cleanup",
		Date:     time.Now().Add(48 * time.Hour).UTC(),
		Location: "North Shore",
		Capacity: 20,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var event models.Event
	decodeResponse(t, rec, &event)

	rec = api.request(t, http.MethodPost, "/events/"+event.ID+"/register", userToken, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// The award lands on the balance
	rec = api.request(t, http.MethodGet, "/users/points", userToken, nil)
	var balance models.BalanceResponse
	decodeResponse(t, rec, &balance)
	if balance.Points != 1100 {
		t.Errorf("Expected 1100 points after registration, got %d", balance.Points)
	}

	// Duplicate registration conflicts
	rec = api.request(t, http.MethodPost, "/events/"+event.ID+"/register", userToken, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate registration, got %d", rec.Code)
	}

	rec = api.request(t, http.MethodGet, "/events/my-registrations", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var registered []models.RegisteredEvent
	decodeResponse(t, rec, &registered)
	if len(registered) != 1 || registered[0].ID != event.ID {
		t.Fatalf("Expected the registered event, got %+v", registered)
	}

	rec = api.request(t, http.MethodDelete, "/events/"+event.ID+"/register", userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 cancelling, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.request(t, http.MethodGet, "/users/points", userToken, nil)
	decodeResponse(t, rec, &balance)
	if balance.Points != 1000 {
		t.Errorf("Expected 1000 points after claw-back, got %d", balance.Points)
	}

	// Cancelling again finds nothing
	rec = api.request(t, http.MethodDelete, "/events/"+event.ID+"/register", userToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for second cancel, got %d", rec.Code)
	}
}

func TestCreateAccount_AdminOnly(t *testing.T) {
	api := setupAPI(t)
	defer api.cleanup()

	req := models.CreateAccountRequest{Username: "greta", Email: "greta@example.org"}

	rec := api.request(t, http.MethodPost, "/accounts", userToken, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for non-admin, got %d", rec.Code)
	}

	rec = api.request(t, http.MethodPost, "/accounts", adminToken, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var account models.Account
	decodeResponse(t, rec, &account)
	if account.Username != "greta" {
		t.Errorf("Expected username greta, got %q", account.Username)
	}
}

func TestGetStats(t *testing.T) {
	api := setupAPI(t)
	defer api.cleanup()

	rec := api.request(t, http.MethodGet, "/admin/stats", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var stats models.AdminStats
	decodeResponse(t, rec, &stats)
	if stats.TotalAccounts != 2 {
		t.Errorf("Expected 2 accounts, got %d", stats.TotalAccounts)
	}
	if stats.AdminAccounts != 1 {
		t.Errorf("Expected 1 admin account, got %d", stats.AdminAccounts)
	}
}
