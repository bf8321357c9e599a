package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/pkg/uow"
)

// AffiliateService управляет заработком аффилиатов: одобрение комиссий и
// выплаты. Начислением комиссий по завершенным заказам занимается движок
// расчетов, здесь только движение уже начисленного.
type AffiliateService struct {
	uow           uow.UOW
	affiliateRepo AffiliateRepository
	l             *logrus.Entry
}

func NewAffiliateService(u uow.UOW, l *logrus.Logger) (*AffiliateService, error) {
	affiliateRepo, err := uow.GetRepositoryAs[AffiliateRepository](
		u, uow.RepositoryName(repoargs.AffiliateRepoName))
	if err != nil {
		return nil, err
	}
	return &AffiliateService{
		uow:           u,
		affiliateRepo: affiliateRepo,
		l:             l.WithField("component", "affiliate"),
	}, nil
}

// ApproveCommission переводит комиссию из pending в approved и зачисляет ее
// сумму в total_earnings и available_earnings одним атомарным обновлением.
// Комиссия не в статусе pending повторно не одобряется.
func (s *AffiliateService) ApproveCommission(ctx context.Context, commissionID int64) (*domain.Commission, error) {
	var approved *domain.Commission

	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		affiliateRepo, repoErr := uow.GetAs[AffiliateRepository](
			tx, uow.RepositoryName(repoargs.AffiliateRepoName))
		if repoErr != nil {
			return repoErr //nolint:wrapcheck
		}

		commission, commErr := affiliateRepo.GetCommissionByIDForUpdate(c, commissionID)
		if commErr != nil {
			return commErr //nolint:wrapcheck
		}
		if commission.Status != domain.CommissionStatusPending {
			return fmt.Errorf("commission %d has status %s: %w",
				commission.ID, commission.Status, domain.ErrAlreadyFinalized)
		}

		deltasErr := affiliateRepo.ApplyEarningsDeltas(c, repoargs.EarningsDeltas{
			AffiliateID:       commission.AffiliateID,
			TotalEarnings:     commission.CommissionAmount,
			AvailableEarnings: commission.CommissionAmount,
		})
		if deltasErr != nil {
			return deltasErr //nolint:wrapcheck
		}

		var updErr error
		approved, updErr = affiliateRepo.UpdateCommissionStatus(c, commission.ID, domain.CommissionStatusApproved)
		return updErr //nolint:wrapcheck
	})

	if txErr != nil {
		if errors.Is(txErr, domain.ErrAlreadyFinalized) || errors.Is(txErr, domain.ErrRecordNotFound) {
			return nil, txErr
		}
		return nil, fmt.Errorf("approving commission %d: %w", commissionID, txErr)
	}
	return approved, nil
}

// RejectCommission помечает комиссию отклоненной. Заработок не трогается -
// отклонить можно только еще не одобренную комиссию.
func (s *AffiliateService) RejectCommission(ctx context.Context, commissionID int64) (*domain.Commission, error) {
	var rejected *domain.Commission

	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		affiliateRepo, repoErr := uow.GetAs[AffiliateRepository](
			tx, uow.RepositoryName(repoargs.AffiliateRepoName))
		if repoErr != nil {
			return repoErr //nolint:wrapcheck
		}

		commission, commErr := affiliateRepo.GetCommissionByIDForUpdate(c, commissionID)
		if commErr != nil {
			return commErr //nolint:wrapcheck
		}
		if commission.Status != domain.CommissionStatusPending {
			return fmt.Errorf("commission %d has status %s: %w",
				commission.ID, commission.Status, domain.ErrAlreadyFinalized)
		}

		var updErr error
		rejected, updErr = affiliateRepo.UpdateCommissionStatus(c, commission.ID, domain.CommissionStatusRejected)
		return updErr //nolint:wrapcheck
	})

	if txErr != nil {
		if errors.Is(txErr, domain.ErrAlreadyFinalized) || errors.Is(txErr, domain.ErrRecordNotFound) {
			return nil, txErr
		}
		return nil, fmt.Errorf("rejecting commission %d: %w", commissionID, txErr)
	}
	return rejected, nil
}

// RequestPayout списывает amount из available_earnings и создает заявку на
// выплату. Запрос сверх доступного отклоняется на уровне SQL и возвращает
// domain.ErrInsufficientEarnings - двойная выплата одной и той же суммы
// невозможна даже при конкурентных запросах.
func (s *AffiliateService) RequestPayout(
	ctx context.Context,
	affiliateID int64,
	amount decimal.Decimal,
) (*domain.Payout, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	amount = domain.RoundMoney(amount)

	var payout *domain.Payout
	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		affiliateRepo, repoErr := uow.GetAs[AffiliateRepository](
			tx, uow.RepositoryName(repoargs.AffiliateRepoName))
		if repoErr != nil {
			return repoErr //nolint:wrapcheck
		}

		affiliate, affErr := affiliateRepo.GetByIDForUpdate(c, affiliateID)
		if affErr != nil {
			return affErr //nolint:wrapcheck
		}

		deltasErr := affiliateRepo.ApplyEarningsDeltas(c, repoargs.EarningsDeltas{
			AffiliateID:       affiliate.ID,
			AvailableEarnings: amount.Neg(),
		})
		if deltasErr != nil {
			return deltasErr //nolint:wrapcheck
		}

		var createErr error
		payout, createErr = affiliateRepo.CreatePayout(c, affiliate.ID, amount)
		return createErr //nolint:wrapcheck
	})

	if txErr != nil {
		if errors.Is(txErr, domain.ErrInsufficientEarnings) || errors.Is(txErr, domain.ErrRecordNotFound) {
			return nil, txErr
		}
		return nil, fmt.Errorf("requesting payout for affiliate %d: %w", affiliateID, txErr)
	}

	s.l.WithFields(logrus.Fields{
		"affiliateID": affiliateID,
		"amount":      amount,
	}).Info("payout requested")
	return payout, nil
}

// GetEarnings возвращает текущее состояние заработка аффилиата юзера.
func (s *AffiliateService) GetEarnings(ctx context.Context, userID int64) (*domain.Affiliate, error) {
	affiliate, err := s.affiliateRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting earnings for user %d: %w", userID, err)
	}
	return affiliate, nil
}
