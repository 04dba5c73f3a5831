package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/tavros-checkout/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository is the single-node backend, meant for local runs and
// small deployments. All writes go through one connection.
type SQLiteRepository struct {
	db             *sql.DB
	migrationsPath string
}

// ConnectSQLite opens the database file at path, creating it if needed.
func ConnectSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite has one writer; a single connection turns lock contention into queueing
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func NewSQLiteRepository(db *sql.DB, migrationsPath string) *SQLiteRepository {
	return &SQLiteRepository{db: db, migrationsPath: migrationsPath}
}

func (r *SQLiteRepository) Setup(context.Context) error {
	return r.RunMigrations()
}

func (r *SQLiteRepository) RunMigrations() error {
	driver, err := sqlitemigrate.WithInstance(r.db, &sqlitemigrate.Config{
		MigrationsTable: "tavros_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Increment(ctx context.Context, name string) (int64, error) {
	query := `INSERT INTO order_counters (name, seq) VALUES (?, 1)
	          ON CONFLICT (name) DO UPDATE SET seq = seq + 1
	          RETURNING seq`

	var seq int64
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to increment counter %q: %w", name, err)
	}
	return seq, nil
}

func (r *SQLiteRepository) GetOrderForUser(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	if orderID == "" || userID == "" {
		return nil, ErrOrderNotFound
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ? AND user_id = ?`
	return r.queryOrder(ctx, query, orderID, userID)
}

func (r *SQLiteRepository) FindByCheckoutKey(ctx context.Context, checkoutKey string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE checkout_key = ? AND payment_status = 'pending'`
	return r.queryOrder(ctx, query, checkoutKey)
}

func (r *SQLiteRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, customerArg, err := encodeOrderJSON(order)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.OrderNumber,
		order.CheckoutKey,
		order.PaymentStatus,
		order.StripeSessionID,
		order.Email,
		customerArg,
		order.ShippingMethod,
		order.ShippingCost,
		order.Currency,
		string(itemsJSON),
		order.TotalAmount,
		formatTime(order.CreatedAt),
		formatTime(order.UpdatedAt))

	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && isSQLiteCheckoutKeyConflict(sqliteErr) {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdatePaymentStatus(ctx context.Context, sessionID string, from, to domain.PaymentStatus) (*domain.Order, error) {
	if !domain.CanTransitionTo(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrStatusConflict, from, to)
	}

	query := `UPDATE orders SET payment_status = ?, updated_at = ?
	          WHERE stripe_session_id = ? AND payment_status = ?
	          RETURNING ` + orderColumns

	order, err := r.queryOrder(ctx, query, to, formatTime(time.Now().UTC()), sessionID, from)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return nil, err
	}

	var exists bool
	existsQuery := `SELECT EXISTS (SELECT 1 FROM orders WHERE stripe_session_id = ?)`
	if err := r.db.QueryRowContext(ctx, existsQuery, sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("query order by session: %w", err)
	}
	if !exists {
		return nil, ErrOrderNotFound
	}
	return nil, ErrStatusConflict
}

func (r *SQLiteRepository) queryOrder(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	var (
		row                  orderRow
		createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(row.dest(&createdAt, &updatedAt)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if row.order.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if row.order.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return row.decode()
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close(context.Context) error {
	return r.db.Close()
}

// isSQLiteCheckoutKeyConflict matches only the pending checkout key index. sqlite
// names the columns, not the index, in the message.
func isSQLiteCheckoutKeyConflict(err *sqlite.Error) bool {
	return err.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		strings.Contains(err.Error(), "orders.checkout_key")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
