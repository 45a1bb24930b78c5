package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"climate-rewards-api/internal/models"
)

var (
	uuidRegex  = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

var eventStatuses = map[string]bool{
	models.EventUpcoming:  true,
	models.EventOngoing:   true,
	models.EventCompleted: true,
	models.EventCancelled: true,
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateRedeemRequest checks the redemption inputs. The shipping address is
// checked first; its absence is an input error regardless of the item.
func ValidateRedeemRequest(req models.RedeemRequest) error {
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return &ValidationError{
			Field:   "shippingAddress",
			Message: "is required",
		}
	}

	if err := ValidateUUID(req.ItemID, "itemId"); err != nil {
		return err
	}

	if len(req.ShippingAddress) > 500 {
		return &ValidationError{
			Field:   "shippingAddress",
			Message: "cannot exceed 500 characters",
		}
	}

	return nil
}

func ValidateItem(item models.RewardItem) error {
	if err := ValidateUUID(item.ID, "id"); err != nil {
		return err
	}

	if strings.TrimSpace(item.Name) == "" {
		return &ValidationError{
			Field:   "name",
			Message: "is required",
		}
	}

	if strings.TrimSpace(item.Category) == "" {
		return &ValidationError{
			Field:   "category",
			Message: "is required",
		}
	}

	if item.PointsCost <= 0 {
		return &ValidationError{
			Field:   "points_required",
			Message: "must be positive",
		}
	}

	if item.Stock < 0 {
		return &ValidationError{
			Field:   "stock",
			Message: "must be non-negative",
		}
	}

	return nil
}

func ValidateEvent(event models.Event) error {
	if err := ValidateUUID(event.ID, "id"); err != nil {
		return err
	}

	if strings.TrimSpace(event.Title) == "" {
		return &ValidationError{
			Field:   "title",
			Message: "is required",
		}
	}

	if event.Date.IsZero() {
		return &ValidationError{
			Field:   "date",
			Message: "is required",
		}
	}

	if strings.TrimSpace(event.Location) == "" {
		return &ValidationError{
			Field:   "location",
			Message: "is required",
		}
	}

	if event.Capacity <= 0 {
		return &ValidationError{
			Field:   "capacity",
			Message: "must be positive",
		}
	}

	if event.Status != "" && !eventStatuses[event.Status] {
		return &ValidationError{
			Field:   "status",
			Message: "must be one of upcoming, ongoing, completed, cancelled",
		}
	}

	return nil
}

func ValidateAccount(account models.Account) error {
	if err := ValidateUUID(account.ID, "id"); err != nil {
		return err
	}

	if strings.TrimSpace(account.Username) == "" {
		return &ValidationError{
			Field:   "username",
			Message: "is required",
		}
	}

	if !emailRegex.MatchString(account.Email) {
		return &ValidationError{
			Field:   "email",
			Message: "must be a valid email address",
		}
	}

	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a valid UUID v4",
		}
	}

	return nil
}
