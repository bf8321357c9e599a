package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fsdevblog/panel-ledger/internal/currency"
	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/pkg/uow"
)

const (
	// bulkChunkSize массовые операции режутся на пачки, чтоб не держать одну
	// транзакцию открытой неограниченное время. Атомарность дельты леджера
	// сохраняется в пределах пачки.
	bulkChunkSize = 200

	refundInvoicePrefix = "refund:"

	notifyTemplateRefund    = "order_refund"
	notifyTemplatePartial   = "order_partial"
	notifyTemplateCancelled = "order_cancelled"
)

var oneHundred = decimal.NewFromInt(100)

// SettlementService рассчитывает списания и возвраты по заказам и ведет их
// статусную машину. Каждая операция читает и пишет в одной транзакции БД с
// блокировкой затронутых строк.
type SettlementService struct {
	uow       uow.UOW
	orderRepo OrderRepository
	rates     RatesProvider
	notifier  Notifier
	l         *logrus.Entry
}

func NewSettlementService(
	u uow.UOW,
	rates RatesProvider,
	notifier Notifier,
	l *logrus.Logger,
) (*SettlementService, error) {
	orderRepo, err := uow.GetRepositoryAs[OrderRepository](u, uow.RepositoryName(repoargs.OrderRepoName))
	if err != nil {
		return nil, err
	}
	return &SettlementService{
		uow:       u,
		orderRepo: orderRepo,
		rates:     rates,
		notifier:  notifier,
		l:         l.WithField("component", "settlement"),
	}, nil
}

type PlaceOrderArgs struct {
	UserID    int64
	ServiceID int64
	Qty       int64
	Charge    decimal.Decimal
}

// PlaceOrder создает заказ и атомарно с ним списывает стоимость с баланса.
// Нехватка средств возвращает domain.ErrInsufficientBalance, заказ при этом
// не создается.
func (s *SettlementService) PlaceOrder(ctx context.Context, args PlaceOrderArgs) (*domain.Order, error) {
	if args.Qty <= 0 || !args.Charge.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	table := s.ratesSnapshot(ctx)

	var order *domain.Order
	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		userRepo, userRepoErr := uow.GetAs[UserRepository](tx, uow.RepositoryName(repoargs.UserRepoName))
		if userRepoErr != nil {
			return userRepoErr //nolint:wrapcheck
		}
		orderRepo, orderRepoErr := uow.GetAs[OrderRepository](tx, uow.RepositoryName(repoargs.OrderRepoName))
		if orderRepoErr != nil {
			return orderRepoErr //nolint:wrapcheck
		}

		user, userErr := userRepo.GetByIDForUpdate(c, args.UserID)
		if userErr != nil {
			return userErr //nolint:wrapcheck
		}

		charge := domain.RoundMoney(args.Charge)
		chargeUSD := domain.RoundMoney(s.toUSD(charge, user, table))

		// списание по заказу никогда не прижимается к нулю - только отказ.
		deltasErr := userRepo.ApplyLedgerDeltas(c, repoargs.LedgerDeltas{
			UserID:     user.ID,
			Balance:    charge.Neg(),
			BalanceUSD: chargeUSD.Neg(),
			TotalSpent: charge,
		})
		if deltasErr != nil {
			return deltasErr //nolint:wrapcheck
		}

		var createErr error
		order, createErr = orderRepo.Create(c, repoargs.CreateOrder{
			UserID:    user.ID,
			ServiceID: args.ServiceID,
			Qty:       args.Qty,
			Charge:    charge,
			ChargeUSD: chargeUSD,
			Currency:  user.Currency,
		})
		return createErr //nolint:wrapcheck
	})

	if txErr != nil {
		if errors.Is(txErr, domain.ErrInsufficientBalance) || errors.Is(txErr, domain.ErrRecordNotFound) {
			return nil, txErr
		}
		return nil, fmt.Errorf("placing order: %w", txErr)
	}
	return order, nil
}

// MarkPartial помечает заказ частично выполненным: notGoing единиц не будут
// доставлены, их стоимость возвращается на баланс.
//
// Алгоритм работы (одна транзакция):
//  1. Блокируются строки заказа и юзера.
//  2. Цена единицы = charge / qty, возврат = цена единицы * notGoing.
//  3. Баланс увеличивается на возврат, total_spent уменьшается на него же.
//  4. Заказ переходит в partial: remains = notGoing, qty и charge уменьшаются.
func (s *SettlementService) MarkPartial(ctx context.Context, orderID int64, notGoing int64) (*domain.Order, error) {
	table := s.ratesSnapshot(ctx)

	var updated *domain.Order
	var userID int64

	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		orderRepo, userRepo, _, reposErr := s.settlementRepos(tx)
		if reposErr != nil {
			return reposErr
		}

		order, orderErr := orderRepo.GetByIDForUpdate(c, orderID)
		if orderErr != nil {
			return orderErr //nolint:wrapcheck
		}
		if order.Status.IsTerminal() {
			return domain.NewAlreadyFinalizedError(order.ID, order.Status)
		}
		// notGoing >= qty означал бы неположительный остаток заказа.
		if notGoing < 0 || notGoing >= order.Qty {
			return domain.ErrInvalidAmount
		}

		user, userErr := userRepo.GetByIDForUpdate(c, order.UserID)
		if userErr != nil {
			return userErr //nolint:wrapcheck
		}
		userID = user.ID

		// промежуточная математика полной точности, округление только на коммите.
		pricePerUnit := order.Charge.Div(decimal.NewFromInt(order.Qty))
		refund := domain.RoundMoney(pricePerUnit.Mul(decimal.NewFromInt(notGoing)))
		refundUSD := domain.RoundMoney(s.toUSD(refund, user, table))

		newCharge := order.Charge.Sub(refund)
		newQty := order.Qty - notGoing

		deltasErr := userRepo.ApplyLedgerDeltas(c, repoargs.LedgerDeltas{
			UserID:     user.ID,
			Balance:    refund,
			BalanceUSD: refundUSD,
			TotalSpent: refund.Neg(),
		})
		if deltasErr != nil {
			return deltasErr //nolint:wrapcheck
		}

		var updErr error
		updated, updErr = orderRepo.UpdateSettlement(c, repoargs.SettlementUpdate{
			ID:        order.ID,
			Status:    domain.OrderStatusPartial,
			Qty:       newQty,
			Remains:   notGoing,
			Charge:    newCharge,
			ChargeUSD: order.ChargeUSD.Sub(refundUSD),
		})
		return updErr //nolint:wrapcheck
	})

	if txErr != nil {
		return nil, settlementErr("marking order partial", txErr)
	}

	s.notifyAfterCommit(ctx, userID, notifyTemplatePartial, map[string]any{"orderID": orderID})
	return updated, nil
}

type RefundArgs struct {
	OrderID int64
	Kind    domain.RefundKind
	// Amount явная сумма для частичного возврата. Если nil, сумма
	// пропорциональна недоставленной части заказа.
	Amount *decimal.Decimal
}

// Refund возвращает деньги по заказу. Заказ в статусе refunded или cancelled
// повторно не обрабатывается - вернется ошибка с domain.ErrAlreadyFinalized,
// чтоб вызывающая сторона могла отличить это от "невалидный запрос".
//
// Возврат попадает в журнал синтетической транзакцией со статусом success:
// деньги, вернувшиеся в леджер, обязаны быть аудируемы.
func (s *SettlementService) Refund(ctx context.Context, args RefundArgs) (*domain.Order, error) {
	if args.Kind != domain.RefundFull && args.Kind != domain.RefundPartial {
		return nil, domain.ErrInvalidAmount
	}
	if args.Amount != nil && !args.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	table := s.ratesSnapshot(ctx)

	var updated *domain.Order
	var userID int64

	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		orderRepo, userRepo, transactionRepo, reposErr := s.settlementRepos(tx)
		if reposErr != nil {
			return reposErr
		}

		order, orderErr := orderRepo.GetByIDForUpdate(c, args.OrderID)
		if orderErr != nil {
			return orderErr //nolint:wrapcheck
		}
		if order.Status == domain.OrderStatusRefunded || order.Status == domain.OrderStatusCancelled {
			return domain.NewAlreadyFinalizedError(order.ID, order.Status)
		}

		user, userErr := userRepo.GetByIDForUpdate(c, order.UserID)
		if userErr != nil {
			return userErr //nolint:wrapcheck
		}
		userID = user.ID

		refund := s.refundAmount(order, args)
		if !refund.IsPositive() {
			return domain.ErrInvalidAmount
		}
		refundUSD := domain.RoundMoney(s.toUSD(refund, user, table))

		deltasErr := userRepo.ApplyLedgerDeltas(c, repoargs.LedgerDeltas{
			UserID:     user.ID,
			Balance:    refund,
			BalanceUSD: refundUSD,
			TotalSpent: refund.Neg(),
		})
		if deltasErr != nil {
			return deltasErr //nolint:wrapcheck
		}

		newStatus := domain.OrderStatusRefunded
		newCharge := order.Charge
		newChargeUSD := order.ChargeUSD
		if args.Kind == domain.RefundPartial {
			newStatus = domain.OrderStatusPartial
			newCharge = order.Charge.Sub(refund)
			newChargeUSD = order.ChargeUSD.Sub(refundUSD)
		}

		var updErr error
		updated, updErr = orderRepo.UpdateSettlement(c, repoargs.SettlementUpdate{
			ID:        order.ID,
			Status:    newStatus,
			Qty:       order.Qty,
			Remains:   order.Remains,
			Charge:    newCharge,
			ChargeUSD: newChargeUSD,
		})
		if updErr != nil {
			return updErr //nolint:wrapcheck
		}

		_, transErr := transactionRepo.Create(c, repoargs.CreateTransaction{
			InvoiceID: refundInvoicePrefix + uuid.NewString(),
			UserID:    user.ID,
			OrderID:   &order.ID,
			Amount:    refund,
			AmountUSD: refundUSD,
			Currency:  order.Currency,
			Status:    domain.TransactionStatusSuccess,
			Method:    "system:refund",
		})
		return transErr //nolint:wrapcheck
	})

	if txErr != nil {
		return nil, settlementErr("refunding order", txErr)
	}

	s.notifyAfterCommit(ctx, userID, notifyTemplateRefund, map[string]any{"orderID": args.OrderID})
	return updated, nil
}

// refundAmount вычисляет сумму возврата. Пропорциональный возврат округляется
// в пользу юзера (вверх) и только в финале, внутренние вычисления полной
// точности.
func (s *SettlementService) refundAmount(order *domain.Order, args RefundArgs) decimal.Decimal {
	if args.Kind == domain.RefundFull {
		return domain.RoundMoney(order.Charge)
	}
	if args.Amount != nil {
		amount := domain.RoundMoney(*args.Amount)
		if amount.GreaterThan(order.Charge) {
			return order.Charge
		}
		return amount
	}

	// возврат пропорционален невыполненной части заказа.
	completedPct := decimal.NewFromInt(order.Qty - order.Remains).
		Div(decimal.NewFromInt(order.Qty)).
		Mul(oneHundred)
	refundPct := oneHundred.Sub(completedPct)
	if refundPct.IsNegative() {
		refundPct = decimal.Zero
	}

	refund := order.Charge.Mul(refundPct).Div(oneHundred).RoundUp(2)
	if refund.GreaterThan(order.Charge) {
		return order.Charge
	}
	return refund
}

// SkippedOrder заказ, пропущенный массовой операцией, с причиной.
type SkippedOrder struct {
	OrderID int64
	Status  domain.OrderStatus
}

type BulkStatusResult struct {
	Updated []int64
	Skipped []SkippedOrder
}

// SetStatusBulk массово переводит заказы в статус target.
//
// Алгоритм работы:
//  1. Заказы режутся на пачки по bulkChunkSize, каждая пачка - одна транзакция.
//  2. Заказы в терминальном статусе пропускаются и возвращаются в Skipped.
//  3. Для target = cancelled возвраты суммируются по юзерам: сколько бы
//     заказов юзера ни попало в пачку, его леджер обновляется одним UPDATE.
//  4. Для target = completed remains принудительно сбрасывается в 0, а по
//     заказам рефералов начисляются комиссии в той же транзакции.
func (s *SettlementService) SetStatusBulk(
	ctx context.Context,
	orderIDs []int64,
	target domain.OrderStatus,
) (*BulkStatusResult, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("bulk status update: invalid status `%s`: %w", target, domain.ErrInvalidAmount)
	}

	table := s.ratesSnapshot(ctx)
	result := new(BulkStatusResult)

	for chunk := range chunks(orderIDs, bulkChunkSize) {
		if err := s.setStatusChunk(ctx, chunk, target, table, result); err != nil {
			return nil, settlementErr("bulk status update", err)
		}
	}

	if target == domain.OrderStatusCancelled {
		for _, id := range result.Updated {
			s.notifyAfterCommitOrder(ctx, id, notifyTemplateCancelled)
		}
	}
	return result, nil
}

func (s *SettlementService) setStatusChunk(
	ctx context.Context,
	ids []int64,
	target domain.OrderStatus,
	table currency.Table,
	result *BulkStatusResult,
) error {
	return s.uow.Do(ctx, func(c context.Context, tx uow.TX) error { //nolint:wrapcheck
		orderRepo, userRepo, _, reposErr := s.settlementRepos(tx)
		if reposErr != nil {
			return reposErr
		}

		orders, ordersErr := orderRepo.GetByIDsForUpdate(c, ids)
		if ordersErr != nil {
			return ordersErr //nolint:wrapcheck
		}

		var eligible []domain.Order
		for _, order := range orders {
			if order.Status.IsTerminal() {
				result.Skipped = append(result.Skipped, SkippedOrder{OrderID: order.ID, Status: order.Status})
				continue
			}
			eligible = append(eligible, order)
		}
		if len(eligible) == 0 {
			return nil
		}

		if target == domain.OrderStatusCancelled {
			if err := s.refundCancelledOrders(c, userRepo, eligible, table); err != nil {
				return err
			}
		}

		eligibleIDs := make([]int64, len(eligible))
		for i, order := range eligible {
			eligibleIDs[i] = order.ID
		}
		if updErr := orderRepo.BatchUpdateStatus(c, eligibleIDs, target); updErr != nil {
			return updErr //nolint:wrapcheck
		}

		if target == domain.OrderStatusCompleted {
			if err := s.accrueCommissions(c, tx, eligible); err != nil {
				return err
			}
		}

		result.Updated = append(result.Updated, eligibleIDs...)
		return nil
	})
}

// refundCancelledOrders суммирует возвраты по юзерам и применяет одну дельту
// леджера на юзера. Три заказа двух юзеров - ровно два UPDATE, не три.
func (s *SettlementService) refundCancelledOrders(
	ctx context.Context,
	userRepo UserRepository,
	orders []domain.Order,
	table currency.Table,
) error {
	type userRefund struct {
		amount    decimal.Decimal
		amountUSD decimal.Decimal
	}
	refunds := make(map[int64]*userRefund)
	userIDs := make([]int64, 0, len(orders))

	for _, order := range orders {
		user, userErr := userRepo.GetByIDForUpdate(ctx, order.UserID)
		if userErr != nil {
			return userErr //nolint:wrapcheck
		}

		// цена заказа нормализуется к валюте леджера юзера.
		amount := order.Charge
		if order.Currency != user.Currency {
			converted, convErr := currency.Convert(order.Charge, order.Currency, user.Currency, table)
			if convErr != nil {
				s.l.WithError(convErr).WithField("orderID", order.ID).
					Warn("currency rate missing, refunding unconverted amount")
			}
			amount = converted
		}
		amount = domain.RoundMoney(amount)

		r, ok := refunds[order.UserID]
		if !ok {
			r = &userRefund{amount: decimal.Zero, amountUSD: decimal.Zero}
			refunds[order.UserID] = r
			userIDs = append(userIDs, order.UserID)
		}
		r.amount = r.amount.Add(amount)
		r.amountUSD = r.amountUSD.Add(domain.RoundMoney(s.toUSD(amount, user, table)))
	}

	for _, userID := range userIDs {
		r := refunds[userID]
		deltasErr := userRepo.ApplyLedgerDeltas(ctx, repoargs.LedgerDeltas{
			UserID:     userID,
			Balance:    r.amount,
			BalanceUSD: r.amountUSD,
			TotalSpent: r.amount.Neg(),
		})
		if deltasErr != nil {
			return deltasErr //nolint:wrapcheck
		}
	}
	return nil
}

// accrueCommissions начисляет комиссии аффилиатам по завершенным заказам
// рефералов. Комиссия создается в статусе pending, заработок аффилиата
// увеличится только после ручного одобрения.
func (s *SettlementService) accrueCommissions(ctx context.Context, tx uow.TX, orders []domain.Order) error {
	userRepo, userRepoErr := uow.GetAs[UserRepository](tx, uow.RepositoryName(repoargs.UserRepoName))
	if userRepoErr != nil {
		return userRepoErr //nolint:wrapcheck
	}
	affiliateRepo, affRepoErr := uow.GetAs[AffiliateRepository](tx, uow.RepositoryName(repoargs.AffiliateRepoName))
	if affRepoErr != nil {
		return affRepoErr //nolint:wrapcheck
	}

	for _, order := range orders {
		user, userErr := userRepo.GetByID(ctx, order.UserID)
		if userErr != nil {
			return userErr //nolint:wrapcheck
		}
		if user.ReferredBy == nil {
			continue
		}

		affiliate, affErr := affiliateRepo.GetByID(ctx, *user.ReferredBy)
		if affErr != nil {
			// битая реферальная связь не должна блокировать завершение заказа.
			if errors.Is(affErr, domain.ErrRecordNotFound) {
				s.l.WithField("userID", user.ID).Warn("referred_by points to missing affiliate")
				continue
			}
			return affErr //nolint:wrapcheck
		}

		commission := domain.RoundMoney(
			order.ChargeUSD.Mul(affiliate.CommissionRate).Div(oneHundred),
		)
		if !commission.IsPositive() {
			continue
		}

		_, commErr := affiliateRepo.CreateCommission(ctx, repoargs.CreateCommission{
			AffiliateID:      affiliate.ID,
			OrderID:          order.ID,
			OrderAmount:      order.ChargeUSD,
			CommissionAmount: commission,
		})
		if commErr != nil {
			return commErr //nolint:wrapcheck
		}
	}
	return nil
}

func (s *SettlementService) settlementRepos(tx uow.TX) (OrderRepository, UserRepository, TransactionRepository, error) {
	orderRepo, orderRepoErr := uow.GetAs[OrderRepository](tx, uow.RepositoryName(repoargs.OrderRepoName))
	if orderRepoErr != nil {
		return nil, nil, nil, orderRepoErr //nolint:wrapcheck
	}
	userRepo, userRepoErr := uow.GetAs[UserRepository](tx, uow.RepositoryName(repoargs.UserRepoName))
	if userRepoErr != nil {
		return nil, nil, nil, userRepoErr //nolint:wrapcheck
	}
	transactionRepo, transRepoErr := uow.GetAs[TransactionRepository](tx, uow.RepositoryName(repoargs.TransactionRepoName))
	if transRepoErr != nil {
		return nil, nil, nil, transRepoErr //nolint:wrapcheck
	}
	return orderRepo, userRepo, transactionRepo, nil
}

// toUSD переводит сумму из валюты юзера в USD. При отсутствии курса в таблице
// используется персональный dollar_rate юзера, сам факт логируется как
// проблема конфигурации.
func (s *SettlementService) toUSD(amount decimal.Decimal, user *domain.User, table currency.Table) decimal.Decimal {
	converted, err := currency.Convert(amount, user.Currency, currency.USD, table)
	if err == nil {
		return converted
	}

	s.l.WithError(err).WithField("userID", user.ID).Warn("currency rate missing, using user dollar rate")
	if user.DollarRate.IsPositive() {
		return amount.Div(user.DollarRate)
	}
	return amount
}

// ratesSnapshot получает снимок курсов. Недоступность источника курсов не
// блокирует расчеты: вернется пустая таблица, конвертация уйдет в fallback.
func (s *SettlementService) ratesSnapshot(ctx context.Context) currency.Table {
	table, err := s.rates.Snapshot(ctx)
	if err != nil {
		s.l.WithError(err).Warn("rates snapshot unavailable")
		return currency.NewTable(nil)
	}
	return table
}

// notifyAfterCommit шлет уведомление юзеру после коммита. Ошибки доставки
// логируются и глотаются - движение денег уже состоялось и откату не подлежит.
func (s *SettlementService) notifyAfterCommit(ctx context.Context, userID int64, template string, payload map[string]any) {
	if s.notifier == nil || userID == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, userID, template, payload); err != nil {
		s.l.WithError(err).WithFields(logrus.Fields{
			"userID":   userID,
			"template": template,
		}).Error("notification delivery failed")
	}
}

func (s *SettlementService) notifyAfterCommitOrder(ctx context.Context, orderID int64, template string) {
	if s.notifier == nil {
		return
	}
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		s.l.WithError(err).WithField("orderID", orderID).Error("loading order for notification")
		return
	}
	s.notifyAfterCommit(ctx, order.UserID, template, map[string]any{"orderID": orderID})
}

// settlementErr пробрасывает доменные ошибки как есть, остальные оборачивает.
func settlementErr(msg string, err error) error {
	switch {
	case errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrRecordNotFound):
		return err
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}

// chunks режет срез на пачки по size элементов.
func chunks(ids []int64, size int) func(func([]int64) bool) {
	return func(yield func([]int64) bool) {
		for start := 0; start < len(ids); start += size {
			end := start + size
			if end > len(ids) {
				end = len(ids)
			}
			if !yield(ids[start:end]) {
				return
			}
		}
	}
}
