package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	"github.com/poc/grpc-services/internal/errs"
)

// PostgresRepository stores orders in the orders table; items travel as a
// jsonb column since they are only read back whole.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const orderColumns = `id, user_id, status, saga_state, items, total_cents,
	shipping_address, payment_method, version, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errs.Wrap(errs.KindUnexpected, "encode order items failed", err)
	}
	const q = `INSERT INTO orders (id, user_id, status, saga_state, items, total_cents,
		shipping_address, payment_method, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1,now(),now())
		RETURNING version, created_at, updated_at`
	err = r.db.QueryRowContext(ctx, q,
		o.ID, o.UserID, string(o.Status), string(o.SagaState), items, o.TotalCents,
		o.ShippingAddress, o.PaymentMethod,
	).Scan(&o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errs.New(errs.KindAlreadyExists, "order id already exists")
		}
		return errs.Wrap(errs.KindUnexpected, "create order failed", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.KindNotFound, "order not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "load order failed", err)
	}
	return o, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, pageSize, pageNumber int32) ([]*Order, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM orders WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, errs.Wrap(errs.KindUnexpected, "count orders failed", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, pageSize, int64(pageNumber)*int64(pageSize),
	)
	if err != nil {
		return nil, 0, errs.Wrap(errs.KindUnexpected, "list orders failed", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, errs.Wrap(errs.KindUnexpected, "scan order failed", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errs.Wrap(errs.KindUnexpected, "list orders failed", err)
	}
	return out, total, nil
}

func (r *PostgresRepository) Save(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errs.Wrap(errs.KindUnexpected, "encode order items failed", err)
	}
	const q = `UPDATE orders SET status=$1, saga_state=$2, items=$3, total_cents=$4,
		shipping_address=$5, payment_method=$6, version=version+1, updated_at=now()
		WHERE id=$7 AND version=$8
		RETURNING version, updated_at`
	err = r.db.QueryRowContext(ctx, q,
		string(o.Status), string(o.SagaState), items, o.TotalCents,
		o.ShippingAddress, o.PaymentMethod, o.ID, o.Version,
	).Scan(&o.Version, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		if _, lookupErr := r.GetByID(ctx, o.ID); errs.Is(lookupErr, errs.KindNotFound) {
			return lookupErr
		}
		return errs.New(errs.KindVersionConflict, "order was modified concurrently")
	}
	if err != nil {
		return errs.Wrap(errs.KindUnexpected, "save order failed", err)
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	o := &Order{}
	var status, sagaState string
	var items []byte
	if err := row.Scan(
		&o.ID, &o.UserID, &status, &sagaState, &items, &o.TotalCents,
		&o.ShippingAddress, &o.PaymentMethod, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.Status = Status(status)
	o.SagaState = SagaState(sagaState)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	return o, nil
}
