package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLStore(filepath.Join(t.TempDir(), "customers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func userByEmail(t *testing.T, s *SQLStore, email string) (first, last string) {
	t.Helper()
	err := s.db.QueryRow(s.rebind("SELECT first_name, last_name FROM users WHERE email = ?"), email).Scan(&first, &last)
	require.NoError(t, err)
	return first, last
}

// registrationsOf returns the user's registrations, newest first.
func registrationsOf(t *testing.T, s *SQLStore, userID int64) []ProductRegistration {
	t.Helper()
	rows, err := s.db.Query(s.rebind(`
        SELECT id, user_id, product_model, purchase_date, next_maintenance_date, created_at
        FROM user_products
        WHERE user_id = ?
        ORDER BY created_at DESC, id DESC
    `), userID)
	require.NoError(t, err)
	defer rows.Close()

	var regs []ProductRegistration
	for rows.Next() {
		var reg ProductRegistration
		var purchase, maintenance sql.NullTime
		require.NoError(t, rows.Scan(&reg.ID, &reg.UserID, &reg.ProductModel, &purchase, &maintenance, &reg.CreatedAt))
		if purchase.Valid {
			reg.PurchaseDate = &purchase.Time
		}
		if maintenance.Valid {
			reg.NextMaintenanceDate = &maintenance.Time
		}
		regs = append(regs, reg)
	}
	require.NoError(t, rows.Err())
	return regs
}

func TestRegisterCustomerCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	firstID, err := s.RegisterCustomer(ctx, "ayse@example.com", "Ayse", "Yilmaz", &ProductRegistration{ProductModel: "Vitavit Premium"})
	require.NoError(t, err)
	assert.NotZero(t, firstID)

	secondID, err := s.RegisterCustomer(ctx, "ayse@example.com", "Ayse", "Kaya", &ProductRegistration{ProductModel: "Vitaquick Green"})
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID)

	first, last := userByEmail(t, s, "ayse@example.com")
	assert.Equal(t, "Ayse", first)
	assert.Equal(t, "Kaya", last)
	assert.Len(t, registrationsOf(t, s, firstID), 2)
}

func TestGetCustomerProfileUsesLatestRegistration(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	userID, err := s.RegisterCustomer(ctx, "can@example.com", "Can", "Demir", &ProductRegistration{ProductModel: "Adamant Classic", CreatedAt: base})
	require.NoError(t, err)

	purchase := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	maintenance := purchase.AddDate(0, 0, 730)
	require.NoError(t, s.CreateProductRegistration(ctx, &ProductRegistration{
		UserID:              userID,
		ProductModel:        "Vitaquick Premium",
		PurchaseDate:        &purchase,
		NextMaintenanceDate: &maintenance,
		CreatedAt:           base.Add(time.Hour),
	}))

	profile, err := s.GetCustomerProfile(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Can Demir", profile.FullName())
	assert.Equal(t, "Vitaquick Premium", profile.ProductModel)

	regs := registrationsOf(t, s, userID)
	require.Len(t, regs, 2)
	require.NotNil(t, regs[0].NextMaintenanceDate)
	assert.Equal(t, "2026-01-14", regs[0].NextMaintenanceDate.Format("2006-01-02"))
	assert.Nil(t, regs[1].PurchaseDate)
}

func TestGetCustomerProfileUnknownUser(t *testing.T) {
	profile, err := newTestStore(t).GetCustomerProfile(context.Background(), 4242)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: "postgres"}
	assert.Equal(t, "SELECT * FROM users WHERE id = $1 AND email = $2", pg.rebind("SELECT * FROM users WHERE id = ? AND email = ?"))

	lite := &SQLStore{driver: "sqlite3"}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestDriverFor(t *testing.T) {
	assert.Equal(t, "postgres", driverFor("postgres://user@localhost/db"))
	assert.Equal(t, "postgres", driverFor("postgresql://user@localhost/db"))
	assert.Equal(t, "sqlite3", driverFor("customers.db"))
}
