package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"climate-rewards-api/internal/models"
)

func TestValidateRedeemRequest(t *testing.T) {
	validItem := uuid.New().String()

	tests := []struct {
		name      string
		req       models.RedeemRequest
		wantField string
	}{
		{
			name: "valid",
			req:  models.RedeemRequest{ItemID: validItem, ShippingAddress: "12 Ocean Drive"},
		},
		{
			name:      "missing shipping address",
			req:       models.RedeemRequest{ItemID: validItem},
			wantField: "shippingAddress",
		},
		{
			name:      "blank shipping address",
			req:       models.RedeemRequest{ItemID: validItem, ShippingAddress: "   "},
			wantField: "shippingAddress",
		},
		{
			name:      "missing item id",
			req:       models.RedeemRequest{ShippingAddress: "12 Ocean Drive"},
			wantField: "itemId",
		},
		{
			name:      "malformed item id",
			req:       models.RedeemRequest{ItemID: "not-a-uuid", ShippingAddress: "12 Ocean Drive"},
			wantField: "itemId",
		},
		{
			name:      "oversized shipping address",
			req:       models.RedeemRequest{ItemID: validItem, ShippingAddress: strings.Repeat("a", 501)},
			wantField: "shippingAddress",
		},
		{
			// The address check comes first even when both inputs are bad
			name:      "both missing",
			req:       models.RedeemRequest{},
			wantField: "shippingAddress",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRedeemRequest(tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Expected error on field %q, got %q", tt.wantField, vErr.Field)
			}
		})
	}
}

func TestValidateUUID(t *testing.T) {
	if err := ValidateUUID(uuid.New().String(), "id"); err != nil {
		t.Errorf("Expected generated UUID to validate, got %v", err)
	}
	if err := ValidateUUID("", "id"); err == nil {
		t.Error("Expected error for empty id")
	}
	if err := ValidateUUID("1234", "id"); err == nil {
		t.Error("Expected error for malformed id")
	}
	// Uppercase is accepted, comparison is case-insensitive
	if err := ValidateUUID(strings.ToUpper(uuid.New().String()), "id"); err != nil {
		t.Errorf("Expected uppercase UUID to validate, got %v", err)
	}
}

func TestValidateItem(t *testing.T) {
	valid := models.RewardItem{
		ID:         uuid.New().String(),
		Name:       "Tote Bag",
		Category:   "merchandise",
		PointsCost: 200,
		Stock:      5,
	}
	if err := ValidateItem(valid); err != nil {
		t.Errorf("Expected valid item to pass, got %v", err)
	}

	zeroCost := valid
	zeroCost.PointsCost = 0
	if err := ValidateItem(zeroCost); err == nil {
		t.Error("Expected error for zero cost")
	}

	negativeStock := valid
	negativeStock.Stock = -1
	if err := ValidateItem(negativeStock); err == nil {
		t.Error("Expected error for negative stock")
	}
}

func TestValidateEvent(t *testing.T) {
	valid := models.Event{
		ID:       uuid.New().String(),
		Title:    "Beach Cleanup",
		Date:     time.Now().Add(24 * time.Hour),
		Location: "North Shore",
		Capacity: 20,
	}
	if err := ValidateEvent(valid); err != nil {
		t.Errorf("Expected valid event to pass, got %v", err)
	}

	badStatus := valid
	badStatus.Status = "postponed"
	if err := ValidateEvent(badStatus); err == nil {
		t.Error("Expected error for unknown status")
	}

	noDate := valid
	noDate.Date = time.Time{}
	if err := ValidateEvent(noDate); err == nil {
		t.Error("Expected error for zero date")
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  hello  ", "hello"},
		{"hello\x00world", "helloworld"},
		{"line1\nline2", "line1\nline2"},
		{"tab\there", "tab\there"},
		{"\x1b[31mred\x1b[0m", "[31mred[0m"},
	}

	for _, tt := range tests {
		if got := SanitizeString(tt.input); got != tt.want {
			t.Errorf("SanitizeString(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
