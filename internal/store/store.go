package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLStore is the customer directory. It runs on SQLite for local use and on
// Postgres when DATABASE_URL is a postgres:// URL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(dataSourceName string) (*SQLStore, error) {
	driver := driverFor(dataSourceName)
	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{db: db, driver: driver}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func driverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "sqlite3"
}

const sqliteSchema = `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        email TEXT UNIQUE NOT NULL,
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS user_products (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER NOT NULL,
        product_model TEXT NOT NULL,
        purchase_date DATE,
        next_maintenance_date DATE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    `

const postgresSchema = `
    CREATE TABLE IF NOT EXISTS users (
        id BIGSERIAL PRIMARY KEY,
        email TEXT UNIQUE NOT NULL,
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ DEFAULT NOW()
    );

    CREATE TABLE IF NOT EXISTS user_products (
        id BIGSERIAL PRIMARY KEY,
        user_id BIGINT NOT NULL REFERENCES users (id),
        product_model TEXT NOT NULL,
        purchase_date DATE,
        next_maintenance_date DATE,
        created_at TIMESTAMPTZ DEFAULT NOW()
    );
    `

func (s *SQLStore) initSchema() error {
	schema := sqliteSchema
	if s.driver == "postgres" {
		schema = postgresSchema
	}
	_, err := s.db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetCustomerProfile returns the user's name and the product model of their
// most recent registration. It returns nil, nil for an unknown user.
func (s *SQLStore) GetCustomerProfile(ctx context.Context, userID int64) (*CustomerProfile, error) {
	query := s.rebind(`
        SELECT u.first_name, u.last_name, p.product_model
        FROM users u
        LEFT JOIN user_products p ON u.id = p.user_id
        WHERE u.id = ?
        ORDER BY p.created_at DESC NULLS LAST, p.id DESC
        LIMIT 1
    `)

	var profile CustomerProfile
	var model sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&profile.FirstName, &profile.LastName, &model)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query customer profile: %w", err)
	}
	if model.Valid {
		profile.ProductModel = model.String
	}
	return &profile, nil
}

// CreateProductRegistration inserts reg and fills in its ID and CreatedAt.
func (s *SQLStore) CreateProductRegistration(ctx context.Context, reg *ProductRegistration) error {
	return s.insertProductRegistration(ctx, s.db, reg)
}

func (s *SQLStore) insertProductRegistration(ctx context.Context, q rowQuerier, reg *ProductRegistration) error {
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	query := s.rebind("INSERT INTO user_products (user_id, product_model, purchase_date, next_maintenance_date, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id")
	err := q.QueryRowContext(ctx, query, reg.UserID, reg.ProductModel, nullTime(reg.PurchaseDate), nullTime(reg.NextMaintenanceDate), reg.CreatedAt).Scan(&reg.ID)
	if err != nil {
		return fmt.Errorf("failed to insert product registration: %w", err)
	}
	return nil
}

// RegisterCustomer upserts the user identified by email and logs reg against
// them in one transaction. It returns the user's ID.
func (s *SQLStore) RegisterCustomer(ctx context.Context, email, firstName, lastName string, reg *ProductRegistration) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	err = tx.QueryRowContext(ctx, s.rebind("SELECT id FROM users WHERE email = ?"), email).Scan(&userID)
	switch {
	case err == sql.ErrNoRows:
		err = tx.QueryRowContext(ctx,
			s.rebind("INSERT INTO users (email, first_name, last_name) VALUES (?, ?, ?) RETURNING id"),
			email, firstName, lastName,
		).Scan(&userID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert user: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to look up user by email: %w", err)
	default:
		_, err = tx.ExecContext(ctx, s.rebind("UPDATE users SET first_name = ?, last_name = ? WHERE id = ?"), firstName, lastName, userID)
		if err != nil {
			return 0, fmt.Errorf("failed to update user %d: %w", userID, err)
		}
	}

	reg.UserID = userID
	if err := s.insertProductRegistration(ctx, tx, reg); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit registration: %w", err)
	}
	return userID, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
