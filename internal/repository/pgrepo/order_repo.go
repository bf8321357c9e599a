package pgrepo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/pkg/uow"
)

const orderColumns = `id, created_at, updated_at, user_id, service_id, qty, remains,
	charge, charge_usd, currency, status`

type OrderRepository struct {
	db uow.DBTX
}

func NewOrderRepository(db uow.DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, args repoargs.CreateOrder) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO orders (user_id, service_id, qty, remains, charge, charge_usd, currency, status)
		VALUES ($1, $2, $3, $3, $4, $5, $6, $7)
		RETURNING `+orderColumns,
		args.UserID, args.ServiceID, args.Qty, args.Charge, args.ChargeUSD, args.Currency,
		domain.OrderStatusPending,
	)
	order, err := scanOrder(row)
	if err != nil {
		return nil, convertErr(err, "creating order for user %d", args.UserID)
	}
	return order, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, convertErr(err, "getting order by id %d", id)
	}
	return order, nil
}

// GetByIDForUpdate читает заказ с блокировкой строки. Второй конкурентный
// возврат по тому же заказу увидит уже терминальный статус и будет отклонен.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, convertErr(err, "locking order by id %d", id)
	}
	return order, nil
}

// GetByIDsForUpdate блокирует пачку заказов. Сортировка по id дает стабильный
// порядок взятия блокировок и исключает взаимные дедлоки конкурентных пачек.
func (r *OrderRepository) GetByIDsForUpdate(ctx context.Context, ids []int64) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, convertErr(err, "locking orders batch")
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, scanErr := scanOrder(rows)
		if scanErr != nil {
			return nil, convertErr(scanErr, "locking orders batch")
		}
		orders = append(orders, *order)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, convertErr(rowsErr, "locking orders batch")
	}
	return orders, nil
}

func (r *OrderRepository) GetByUserID(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, convertErr(err, "getting orders by userID %d", userID)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, scanErr := scanOrder(rows)
		if scanErr != nil {
			return nil, convertErr(scanErr, "getting orders by userID %d", userID)
		}
		orders = append(orders, *order)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, convertErr(rowsErr, "getting orders by userID %d", userID)
	}
	return orders, nil
}

// UpdateSettlement записывает результат расчета: новый статус, количества и суммы.
func (r *OrderRepository) UpdateSettlement(
	ctx context.Context,
	update repoargs.SettlementUpdate,
) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE orders SET status = $2, qty = $3, remains = $4, charge = $5, charge_usd = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		update.ID, update.Status, update.Qty, update.Remains, update.Charge, update.ChargeUSD,
	)
	order, err := scanOrder(row)
	if err != nil {
		return nil, convertErr(err, "updating settlement for order %d", update.ID)
	}
	return order, nil
}

// BatchUpdateStatus массово переводит заказы в статус status. Для статуса
// completed remains принудительно сбрасывается в 0 независимо от прежнего
// значения.
func (r *OrderRepository) BatchUpdateStatus(
	ctx context.Context,
	ids []int64,
	status domain.OrderStatus,
) error {
	forceRemainsZero := status == domain.OrderStatusCompleted
	_, err := r.db.Exec(ctx, `
		UPDATE orders SET
			status = $2,
			remains = CASE WHEN $3 THEN 0 ELSE remains END,
			updated_at = now()
		WHERE id = ANY($1)`,
		ids, status, forceRemainsZero,
	)
	if err != nil {
		return convertErr(err, "batch updating orders status to %s", status)
	}
	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.CreatedAt, &o.UpdatedAt, &o.UserID, &o.ServiceID, &o.Qty, &o.Remains,
		&o.Charge, &o.ChargeUSD, &o.Currency, &o.Status,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return &o, nil
}
