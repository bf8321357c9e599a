package pgrepo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/pkg/uow"
)

const userColumns = `id, created_at, updated_at, username, currency, dollar_rate,
	balance, balance_usd, total_deposit, total_spent, referred_by`

type UserRepository struct {
	db uow.DBTX
}

func NewUserRepository(db uow.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, convertErr(err, "getting user by id %d", id)
	}
	return user, nil
}

// GetByIDForUpdate читает юзера с блокировкой строки (SELECT ... FOR UPDATE).
// Вызывается только внутри uow-транзакции: конкурентные операции над одним
// леджером сериализуются на уровне строки.
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, convertErr(err, "locking user by id %d", id)
	}
	return user, nil
}

// ApplyLedgerDeltas применяет знаковые приращения денежных полей одним UPDATE.
// В обычном режиме уход balance в минус отклоняется прямо в WHERE: проверка и
// мутация - один атомарный стейтмент, а не read-then-write. Ни одна строка не
// обновлена - значит баланса не хватило, возвращается
// domain.ErrInsufficientBalance и состояние не меняется.
//
// Существование юзера вызывающая сторона обязана проверить заранее
// (GetByIDForUpdate), иначе "нет такого юзера" неотличимо от "нет денег".
func (r *UserRepository) ApplyLedgerDeltas(ctx context.Context, deltas repoargs.LedgerDeltas) error {
	var query string
	if deltas.ClampToZero {
		query = `UPDATE users SET
			balance = GREATEST(balance + $2, 0),
			balance_usd = GREATEST(balance_usd + $3, 0),
			total_deposit = total_deposit + $4,
			total_spent = GREATEST(total_spent + $5, 0),
			updated_at = now()
		WHERE id = $1`
	} else {
		query = `UPDATE users SET
			balance = balance + $2,
			balance_usd = balance_usd + $3,
			total_deposit = total_deposit + $4,
			total_spent = total_spent + $5,
			updated_at = now()
		WHERE id = $1 AND balance + $2 >= 0`
	}

	tag, err := r.db.Exec(ctx, query,
		deltas.UserID, deltas.Balance, deltas.BalanceUSD, deltas.TotalDeposit, deltas.TotalSpent)
	if err != nil {
		return convertErr(err, "applying ledger deltas for user %d", deltas.UserID)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.Username, &u.Currency, &u.DollarRate,
		&u.Balance, &u.BalanceUSD, &u.TotalDeposit, &u.TotalSpent, &u.ReferredBy,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return &u, nil
}
