package patients

import (
	"strings"
	"time"
)

// Patient is a stable patient record keyed by email. Created on first
// booking attempt; profile fields merge non-destructively on later bookings.
type Patient struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Timezone       string    `json:"timezone"`
	Address        string    `json:"address,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Profile carries the fields supplied with a booking request. Empty fields
// are treated as "not supplied" and never overwrite existing values.
type Profile struct {
	Name     string
	Phone    string
	Timezone string
	Address  string
}

// NormalizeEmail lowercases and trims an email for use as the natural key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
