package pgrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/pkg/uow"
)

const affiliateColumns = `id, created_at, updated_at, user_id, referral_code,
	commission_rate, total_earnings, available_earnings`

const commissionColumns = `id, created_at, updated_at, affiliate_id, order_id,
	order_amount, commission_amount, status`

type AffiliateRepository struct {
	db uow.DBTX
}

func NewAffiliateRepository(db uow.DBTX) *AffiliateRepository {
	return &AffiliateRepository{db: db}
}

func (r *AffiliateRepository) GetByID(ctx context.Context, id int64) (*domain.Affiliate, error) {
	row := r.db.QueryRow(ctx, `SELECT `+affiliateColumns+` FROM affiliates WHERE id = $1`, id)
	affiliate, err := scanAffiliate(row)
	if err != nil {
		return nil, convertErr(err, "getting affiliate by id %d", id)
	}
	return affiliate, nil
}

func (r *AffiliateRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Affiliate, error) {
	row := r.db.QueryRow(ctx, `SELECT `+affiliateColumns+` FROM affiliates WHERE id = $1 FOR UPDATE`, id)
	affiliate, err := scanAffiliate(row)
	if err != nil {
		return nil, convertErr(err, "locking affiliate by id %d", id)
	}
	return affiliate, nil
}

func (r *AffiliateRepository) GetByUserID(ctx context.Context, userID int64) (*domain.Affiliate, error) {
	row := r.db.QueryRow(ctx, `SELECT `+affiliateColumns+` FROM affiliates WHERE user_id = $1`, userID)
	affiliate, err := scanAffiliate(row)
	if err != nil {
		return nil, convertErr(err, "getting affiliate by userID %d", userID)
	}
	return affiliate, nil
}

func (r *AffiliateRepository) CreateCommission(
	ctx context.Context,
	args repoargs.CreateCommission,
) (*domain.Commission, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO commissions (affiliate_id, order_id, order_amount, commission_amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+commissionColumns,
		args.AffiliateID, args.OrderID, args.OrderAmount, args.CommissionAmount,
		domain.CommissionStatusPending,
	)
	commission, err := scanCommission(row)
	if err != nil {
		return nil, convertErr(err, "creating commission for affiliate %d", args.AffiliateID)
	}
	return commission, nil
}

func (r *AffiliateRepository) GetCommissionByIDForUpdate(ctx context.Context, id int64) (*domain.Commission, error) {
	row := r.db.QueryRow(ctx, `SELECT `+commissionColumns+` FROM commissions WHERE id = $1 FOR UPDATE`, id)
	commission, err := scanCommission(row)
	if err != nil {
		return nil, convertErr(err, "locking commission by id %d", id)
	}
	return commission, nil
}

func (r *AffiliateRepository) UpdateCommissionStatus(
	ctx context.Context,
	id int64,
	status domain.CommissionStatus,
) (*domain.Commission, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE commissions SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+commissionColumns,
		id, status,
	)
	commission, err := scanCommission(row)
	if err != nil {
		return nil, convertErr(err, "updating commission %d status", id)
	}
	return commission, nil
}

// ApplyEarningsDeltas применяет приращения заработка одним атомарным UPDATE.
// Уход available_earnings в минус отклоняется в WHERE: ни одной обновленной
// строки - значит запрошено больше, чем доступно, возвращается
// domain.ErrInsufficientEarnings.
func (r *AffiliateRepository) ApplyEarningsDeltas(ctx context.Context, deltas repoargs.EarningsDeltas) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE affiliates SET
			total_earnings = total_earnings + $2,
			available_earnings = available_earnings + $3,
			updated_at = now()
		WHERE id = $1 AND available_earnings + $3 >= 0`,
		deltas.AffiliateID, deltas.TotalEarnings, deltas.AvailableEarnings,
	)
	if err != nil {
		return convertErr(err, "applying earnings deltas for affiliate %d", deltas.AffiliateID)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientEarnings
	}
	return nil
}

func (r *AffiliateRepository) CreatePayout(
	ctx context.Context,
	affiliateID int64,
	amount decimal.Decimal,
) (*domain.Payout, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO payouts (affiliate_id, amount, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at, affiliate_id, amount, status`,
		affiliateID, amount, domain.PayoutStatusPending,
	)
	var p domain.Payout
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt, &p.AffiliateID, &p.Amount, &p.Status); err != nil {
		return nil, convertErr(err, "creating payout for affiliate %d", affiliateID)
	}
	return &p, nil
}

func scanAffiliate(row pgx.Row) (*domain.Affiliate, error) {
	var a domain.Affiliate
	err := row.Scan(
		&a.ID, &a.CreatedAt, &a.UpdatedAt, &a.UserID, &a.ReferralCode,
		&a.CommissionRate, &a.TotalEarnings, &a.AvailableEarnings,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return &a, nil
}

func scanCommission(row pgx.Row) (*domain.Commission, error) {
	var c domain.Commission
	err := row.Scan(
		&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.AffiliateID, &c.OrderID,
		&c.OrderAmount, &c.CommissionAmount, &c.Status,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return &c, nil
}
