package store

import (
	"strings"
	"time"
)

type ProductRegistration struct {
	ID                  int64      `json:"id"`
	UserID              int64      `json:"user_id"`
	ProductModel        string     `json:"product_model"`
	PurchaseDate        *time.Time `json:"purchase_date"`         // Nullable
	NextMaintenanceDate *time.Time `json:"next_maintenance_date"` // Nullable
	CreatedAt           time.Time  `json:"created_at"`
}

// CustomerProfile is what a chat session needs to know about a returning
// customer: their name and the model of their latest registration.
type CustomerProfile struct {
	FirstName    string
	LastName     string
	ProductModel string // Empty when the user has no registrations
}

func (p CustomerProfile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
