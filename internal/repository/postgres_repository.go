package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/tavros-checkout/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

const (
	uniqueViolation = "23505"
	// partial unique index over pending orders, see migration 000002
	checkoutKeyConstraint = "orders_checkout_key_pending_idx"
)

type PostgresRepository struct {
	db             *sql.DB
	migrationsPath string
}

func NewPostgresRepository(db *sql.DB, migrationsPath string) *PostgresRepository {
	return &PostgresRepository{db: db, migrationsPath: migrationsPath}
}

func (r *PostgresRepository) Setup(context.Context) error {
	return r.RunMigrations()
}

func (r *PostgresRepository) RunMigrations() error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "tavros_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.migrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// Increment relies on INSERT .. ON CONFLICT taking the row lock, so concurrent
// callers are serialized by postgres and each sees its own value.
func (r *PostgresRepository) Increment(ctx context.Context, name string) (int64, error) {
	query := `INSERT INTO order_counters (name, seq) VALUES ($1, 1)
	          ON CONFLICT (name) DO UPDATE SET seq = order_counters.seq + 1
	          RETURNING seq`

	var seq int64
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to increment counter %q: %w", name, err)
	}
	return seq, nil
}

func (r *PostgresRepository) GetOrderForUser(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	if orderID == "" || userID == "" {
		return nil, ErrOrderNotFound
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`
	return r.queryOrder(ctx, query, orderID, userID)
}

func (r *PostgresRepository) FindByCheckoutKey(ctx context.Context, checkoutKey string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE checkout_key = $1 AND payment_status = 'pending'`
	return r.queryOrder(ctx, query, checkoutKey)
}

func (r *PostgresRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
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
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, insertErr := r.db.ExecContext(ctx, query,
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
		itemsJSON,
		order.TotalAmount,
		order.CreatedAt,
		order.UpdatedAt)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == checkoutKeyConstraint {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, sessionID string, from, to domain.PaymentStatus) (*domain.Order, error) {
	if !domain.CanTransitionTo(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrStatusConflict, from, to)
	}

	query := `UPDATE orders SET payment_status = $1, updated_at = NOW()
	          WHERE stripe_session_id = $2 AND payment_status = $3
	          RETURNING ` + orderColumns

	order, err := r.queryOrder(ctx, query, to, sessionID, from)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return nil, err
	}

	var exists bool
	existsQuery := `SELECT EXISTS (SELECT 1 FROM orders WHERE stripe_session_id = $1)`
	if err := r.db.QueryRowContext(ctx, existsQuery, sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("query order by session: %w", err)
	}
	if !exists {
		return nil, ErrOrderNotFound
	}
	return nil, ErrStatusConflict
}

func (r *PostgresRepository) queryOrder(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	var row orderRow
	err := r.db.QueryRowContext(ctx, query, args...).Scan(row.dest(&row.order.CreatedAt, &row.order.UpdatedAt)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return row.decode()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) Close(context.Context) error {
	return r.db.Close()
}
