package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KretovDmitry/ordergate/internal/models/errs"
	"github.com/KretovDmitry/ordergate/internal/models/order"
	"github.com/KretovDmitry/ordergate/pkg/logger"
	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Schema of the order store. Applied on startup by Migrate.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id           BIGSERIAL PRIMARY KEY,
	user_id      INTEGER NOT NULL,
	items        JSONB NOT NULL,
	total_amount NUMERIC(10, 2) NOT NULL,
	status       VARCHAR(50) NOT NULL DEFAULT 'pending',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS orders_user_id_created_at_idx
	ON orders (user_id, created_at DESC);
`

const orderColumns = "id, user_id, items, total_amount, status, created_at, updated_at"

// Repository is the order store. Every read and update is scoped by the owner.
type Repository interface {
	CreateOrder(ctx context.Context, userID int, items json.RawMessage, total decimal.Decimal) (*order.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int) ([]*order.Order, error)
	GetOrderForUser(ctx context.Context, orderID int64, userID int) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, userID int, status order.Status) (*order.Order, error)
	Ping(ctx context.Context) error
}

type Repo struct {
	db      *sql.DB
	getter  *trmsql.CtxGetter
	logger  logger.Logger
	timeout time.Duration
}

func NewRepository(
	db *sql.DB,
	getter *trmsql.CtxGetter,
	logger logger.Logger,
	timeout time.Duration,
) (*Repo, error) {
	if db == nil {
		return nil, errors.New("nil dependency: database")
	}
	if getter == nil {
		return nil, errors.New("nil dependency: transaction getter")
	}
	if logger == nil {
		return nil, errors.New("nil dependency: logger")
	}
	if timeout <= 0 {
		return nil, errors.New("query timeout must be positive")
	}

	return &Repo{db: db, getter: getter, logger: logger, timeout: timeout}, nil
}

var _ Repository = (*Repo)(nil)

// Migrate creates the orders table and its index if they do not exist.
func (r *Repo) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *Repo) CreateOrder(
	ctx context.Context, userID int, items json.RawMessage, total decimal.Decimal,
) (*order.Order, error) {
	const query = `
		INSERT INTO orders (user_id, items, total_amount, status)
		VALUES ($1, $2::jsonb, $3, $4)
		RETURNING ` + orderColumns

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	o, err := scanOrder(r.getter.DefaultTrOrDB(ctx, r.db).
		QueryRowContext(ctx, query, userID, string(items), total, string(order.Pending)))
	if err != nil {
		return nil, mapError("create order", err)
	}

	return o, nil
}

func (r *Repo) GetOrdersByUserID(ctx context.Context, userID int) ([]*order.Order, error) {
	const query = "SELECT " + orderColumns + " FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC"

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.getter.DefaultTrOrDB(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError("get orders", err)
	}

	defer func() {
		if err = rows.Close(); err != nil {
			r.logger.Errorf("close rows: %s", err)
		}
	}()

	orders := make([]*order.Order, 0)

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mapError("scan order", err)
		}

		orders = append(orders, o)
	}

	// Rows.Err will report the last error encountered by Rows.Scan.
	if err = rows.Err(); err != nil {
		return nil, mapError("get orders", err)
	}

	return orders, nil
}

func (r *Repo) GetOrderForUser(ctx context.Context, orderID int64, userID int) (*order.Order, error) {
	const query = "SELECT " + orderColumns + " FROM orders WHERE id = $1 AND user_id = $2"

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	o, err := scanOrder(r.getter.DefaultTrOrDB(ctx, r.db).QueryRowContext(ctx, query, orderID, userID))
	if err != nil {
		return nil, mapError("get order", err)
	}

	return o, nil
}

// UpdateStatus is a single conditional update scoped by id and owner.
// updated_at is forced forward even when the clock has not moved.
func (r *Repo) UpdateStatus(
	ctx context.Context, orderID int64, userID int, status order.Status,
) (*order.Order, error) {
	const query = `
		UPDATE orders SET
			status = $1,
			updated_at = GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')
		WHERE id = $2 AND user_id = $3
		RETURNING ` + orderColumns

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	o, err := scanOrder(r.getter.DefaultTrOrDB(ctx, r.db).
		QueryRowContext(ctx, query, string(status), orderID, userID))
	if err != nil {
		return nil, mapError("update order status", err)
	}

	return o, nil
}

func (r *Repo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*order.Order, error) {
	o := new(order.Order)

	var items []byte

	err := row.Scan(
		&o.ID,
		&o.UserID,
		&items,
		&o.TotalAmount,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Items = json.RawMessage(items)

	return o, nil
}

// mapError translates driver errors into the error taxonomy. Ownership
// mismatches and missing rows are indistinguishable by construction.
func mapError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrOrderNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.StringDataRightTruncationDataException:
			return fmt.Errorf("%w: status must not exceed 50 characters", errs.ErrInvalidRequest)
		case pgerrcode.NumericValueOutOfRange:
			return fmt.Errorf("%w: totalAmount is out of range", errs.ErrInvalidRequest)
		}
	}

	return fmt.Errorf("%s: %w: %w", op, errs.ErrUnavailable, err)
}
