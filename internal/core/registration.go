package core

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"fissler.com/cooker-assistant/internal/metrics"
	"fissler.com/cooker-assistant/internal/store"
)

const (
	// WarrantyDays is the fixed two-year warranty used for maintenance dates.
	WarrantyDays = 730
	DateLayout   = "2006-01-02"
)

// ParsePurchaseDate reads a YYYY-MM-DD date from the first ten characters of
// s, ignoring surrounding whitespace and anything after the date.
func ParsePurchaseDate(s string) (time.Time, error) {
	clean := strings.TrimSpace(s)
	if len(clean) > 10 {
		clean = clean[:10]
	}
	t, err := time.Parse(DateLayout, clean)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: purchase date %q is not in YYYY-MM-DD format", ErrInvalidInput, s)
	}
	return t, nil
}

func MaintenanceDate(purchase time.Time) time.Time {
	return purchase.AddDate(0, 0, WarrantyDays)
}

type RegistrationStore interface {
	CreateProductRegistration(ctx context.Context, reg *store.ProductRegistration) error
	RegisterCustomer(ctx context.Context, email, firstName, lastName string, reg *store.ProductRegistration) (int64, error)
}

// RegistrationService is the one code path for product registrations, used
// by both the registration API and the chat tool.
type RegistrationService struct {
	store RegistrationStore
}

func NewRegistrationService(s RegistrationStore) *RegistrationService {
	return &RegistrationService{store: s}
}

// newProductRegistration applies the warranty policy: a known purchase date
// gets a maintenance date, an unknown one leaves both dates empty.
func newProductRegistration(userID int64, model string, purchase *time.Time) *store.ProductRegistration {
	reg := &store.ProductRegistration{UserID: userID, ProductModel: model}
	if purchase != nil {
		p := *purchase
		m := MaintenanceDate(p)
		reg.PurchaseDate = &p
		reg.NextMaintenanceDate = &m
	}
	return reg
}

func (s *RegistrationService) RegisterProduct(ctx context.Context, userID int64, model string, purchase *time.Time) (*store.ProductRegistration, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("%w: product model is required", ErrInvalidInput)
	}
	reg := newProductRegistration(userID, model, purchase)
	if err := s.store.CreateProductRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

type CustomerRegistration struct {
	FullName     string
	Email        string
	ProductModel string
	PurchaseDate string // Optional, YYYY-MM-DD
}

// RegisterCustomer creates or updates the customer identified by email and
// records their product. It returns the customer's user ID.
func (s *RegistrationService) RegisterCustomer(ctx context.Context, req CustomerRegistration) (int64, error) {
	firstName, lastName := SplitFullName(req.FullName)
	if firstName == "" {
		return 0, fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return 0, fmt.Errorf("%w: email %q is not valid", ErrInvalidInput, req.Email)
	}
	email := addr.Address
	model := strings.TrimSpace(req.ProductModel)
	if model == "" {
		return 0, fmt.Errorf("%w: product model is required", ErrInvalidInput)
	}

	var purchase *time.Time
	if strings.TrimSpace(req.PurchaseDate) != "" {
		p, err := ParsePurchaseDate(req.PurchaseDate)
		if err != nil {
			return 0, err
		}
		purchase = &p
	}

	userID, err := s.store.RegisterCustomer(ctx, email, firstName, lastName, newProductRegistration(0, model, purchase))
	if err != nil {
		return 0, err
	}
	metrics.Registrations.WithLabelValues("api").Inc()
	return userID, nil
}

// RegisterFromChat is the register_product tool. It always answers with text
// for the assistant.
func (s *RegistrationService) RegisterFromChat(ctx context.Context, sc SessionContext, productModel, purchaseDate string) string {
	if !sc.HasUser() {
		return "Registration failed: the customer could not be identified, so no record was created."
	}

	purchase, err := ParsePurchaseDate(purchaseDate)
	if err != nil {
		return fmt.Sprintf("Registration failed: the purchase date %q must be in YYYY-MM-DD format.", purchaseDate)
	}

	reg, err := s.RegisterProduct(ctx, sc.UserID, productModel, &purchase)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return "Registration failed: the product model is missing."
		}
		log.WithError(err).WithField("user_id", sc.UserID).Error("failed to register product from chat")
		return "Registration failed: the record could not be saved because of a database error."
	}

	metrics.Registrations.WithLabelValues("chat").Inc()
	return fmt.Sprintf("Registration successful! The maintenance date for your %s is set to %s.",
		reg.ProductModel, reg.NextMaintenanceDate.Format(DateLayout))
}

// SplitFullName splits on the first space: "Ali Can Yilmaz" becomes
// "Ali" and "Can Yilmaz".
func SplitFullName(fullName string) (first, last string) {
	parts := strings.SplitN(strings.TrimSpace(fullName), " ", 2)
	first = parts[0]
	if len(parts) > 1 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}
