package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fsdevblog/panel-ledger/internal/currency"
	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/pkg/uow"
)

const notifyTemplateDeposit = "deposit_success"

// PaymentService обрабатывает уведомления платежных шлюзов. Главное свойство -
// идемпотентность: сколько бы раз шлюз ни прислал один и тот же invoice_id,
// баланс пополнится ровно один раз.
type PaymentService struct {
	uow      uow.UOW
	rates    RatesProvider
	notifier Notifier
	l        *logrus.Entry
}

func NewPaymentService(u uow.UOW, rates RatesProvider, notifier Notifier, l *logrus.Logger) *PaymentService {
	return &PaymentService{
		uow:      u,
		rates:    rates,
		notifier: notifier,
		l:        l.WithField("component", "payment"),
	}
}

// GatewayNotification распарсенное тело вебхука платежного шлюза.
type GatewayNotification struct {
	InvoiceID     string
	Status        string
	Amount        decimal.Decimal
	ExternalTxnID string
	Method        string
	Fee           decimal.Decimal
	SenderNumber  string
	PayerName     string
	// Date дата операции на стороне шлюза, как есть. Журнал живет по
	// таймстемпам БД, поле не влияет на расчеты.
	Date string
	// ChargedAmount фактически списанная шлюзом сумма (может отличаться от
	// amount на комиссию шлюза). Ноль - шлюз поле не прислал.
	ChargedAmount decimal.Decimal
}

// NotificationResult итог обработки вебхука.
type NotificationResult struct {
	Transaction *domain.Transaction
	// AlreadyProcessed уведомление было повтором по транзакции в терминальном
	// статусе, ни журнал, ни баланс не менялись.
	AlreadyProcessed bool
}

// ProcessNotification применяет уведомление шлюза к транзакции invoice_id.
//
// Алгоритм работы (одна транзакция БД):
//  1. Транзакция читается с блокировкой строки. Неизвестный invoice_id -
//     domain.ErrRecordNotFound, движок счета не создает по вебхуку.
//  2. Терминальный статус (любой кроме processing) - повтор: возвращается
//     текущее состояние, никаких мутаций. Статусы меняются только по ребру
//     processing -> success/cancelled/failed/suspicious.
//  3. Статус шлюза транслируется в статус журнала. Расхождение суммы вебхука
//     с суммой транзакции переводит запись в suspicious без зачисления.
//  4. Переход в success зачисляет amount на баланс и в total_deposit.
func (s *PaymentService) ProcessNotification(
	ctx context.Context,
	notification GatewayNotification,
) (*NotificationResult, error) {
	if notification.InvoiceID == "" {
		return nil, fmt.Errorf("processing notification: empty invoice id: %w", domain.ErrInvalidAmount)
	}

	table := s.ratesSnapshot(ctx)
	result := new(NotificationResult)

	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		transactionRepo, transRepoErr := uow.GetAs[TransactionRepository](
			tx, uow.RepositoryName(repoargs.TransactionRepoName))
		if transRepoErr != nil {
			return transRepoErr //nolint:wrapcheck
		}
		userRepo, userRepoErr := uow.GetAs[UserRepository](tx, uow.RepositoryName(repoargs.UserRepoName))
		if userRepoErr != nil {
			return userRepoErr //nolint:wrapcheck
		}

		transaction, transErr := transactionRepo.GetByInvoiceIDForUpdate(c, notification.InvoiceID)
		if transErr != nil {
			return transErr //nolint:wrapcheck
		}

		// поздний COMPLETED по уже отмененной или подозрительной транзакции не
		// может "довоскресить" ее до success и зачислить отмененный платеж.
		if transaction.Status.IsTerminal() {
			result.Transaction = transaction
			result.AlreadyProcessed = true
			return nil
		}

		status := mapGatewayStatus(notification.Status)

		// сумма вебхука обязана совпадать с суммой транзакции. Расхождение -
		// повод для ручного разбора, не для зачисления.
		if status == domain.TransactionStatusSuccess &&
			!notification.Amount.Equal(transaction.Amount) {
			s.l.WithFields(logrus.Fields{
				"invoiceID": transaction.InvoiceID,
				"expected":  transaction.Amount,
				"got":       notification.Amount,
			}).Warn("webhook amount mismatch, marking transaction suspicious")
			status = domain.TransactionStatusSuspicious
		}

		chargedAmount := notification.ChargedAmount
		if chargedAmount.IsZero() {
			chargedAmount = notification.Amount
		}

		updated, updErr := transactionRepo.UpdateStatus(c, repoargs.TransactionStatusUpdate{
			ID:            transaction.ID,
			Status:        status,
			ExternalTxnID: notification.ExternalTxnID,
			Method:        notification.Method,
			Fee:           domain.RoundMoney(notification.Fee),
			SenderNumber:  notification.SenderNumber,
			PayerName:     notification.PayerName,
			ChargedAmount: domain.RoundMoney(chargedAmount),
		})
		if updErr != nil {
			return updErr //nolint:wrapcheck
		}
		result.Transaction = updated

		if status != domain.TransactionStatusSuccess {
			return nil
		}

		user, userErr := userRepo.GetByIDForUpdate(c, transaction.UserID)
		if userErr != nil {
			return userErr //nolint:wrapcheck
		}

		amount := domain.RoundMoney(transaction.Amount)
		amountUSD := transaction.AmountUSD
		if amountUSD.IsZero() {
			amountUSD = domain.RoundMoney(s.toUSD(amount, user, table))
		}

		return userRepo.ApplyLedgerDeltas(c, repoargs.LedgerDeltas{ //nolint:wrapcheck
			UserID:       user.ID,
			Balance:      amount,
			BalanceUSD:   amountUSD,
			TotalDeposit: amount,
		})
	})

	if txErr != nil {
		if errors.Is(txErr, domain.ErrRecordNotFound) {
			return nil, txErr
		}
		return nil, fmt.Errorf("processing notification `%s`: %w", notification.InvoiceID, txErr)
	}

	if result.Transaction.Status == domain.TransactionStatusSuccess && !result.AlreadyProcessed {
		s.notifyDeposit(ctx, result.Transaction)
	}
	return result, nil
}

// CreateInvoice создает ожидающую оплаты транзакцию. Повторная попытка с тем же
// invoice_id вернет существующую запись без ошибки - ретраи со стороны
// платежной формы безопасны.
func (s *PaymentService) CreateInvoice(ctx context.Context, args repoargs.CreateTransaction) (*domain.Transaction, error) {
	if !args.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	args.Amount = domain.RoundMoney(args.Amount)
	args.AmountUSD = domain.RoundMoney(args.AmountUSD)
	args.Status = domain.TransactionStatusProcessing

	var transaction *domain.Transaction
	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		transactionRepo, transRepoErr := uow.GetAs[TransactionRepository](
			tx, uow.RepositoryName(repoargs.TransactionRepoName))
		if transRepoErr != nil {
			return transRepoErr //nolint:wrapcheck
		}
		var createErr error
		transaction, createErr = transactionRepo.Create(c, args)
		if errors.Is(createErr, domain.ErrDuplicateKey) {
			return nil
		}
		return createErr //nolint:wrapcheck
	})
	if txErr != nil {
		return nil, fmt.Errorf("creating invoice `%s`: %w", args.InvoiceID, txErr)
	}
	return transaction, nil
}

// mapGatewayStatus транслирует статус шлюза в статус журнала. Неизвестные
// статусы трактуются как failed, а не как success - деньги зачисляются только
// по явно успешному уведомлению.
func mapGatewayStatus(gatewayStatus string) domain.TransactionStatus {
	switch strings.ToUpper(gatewayStatus) {
	case "COMPLETED", "SUCCESS":
		return domain.TransactionStatusSuccess
	case "PENDING", "PROCESSING":
		return domain.TransactionStatusProcessing
	case "CANCELLED", "CANCELED":
		return domain.TransactionStatusCancelled
	default:
		return domain.TransactionStatusFailed
	}
}

func (s *PaymentService) toUSD(amount decimal.Decimal, user *domain.User, table currency.Table) decimal.Decimal {
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

func (s *PaymentService) ratesSnapshot(ctx context.Context) currency.Table {
	table, err := s.rates.Snapshot(ctx)
	if err != nil {
		s.l.WithError(err).Warn("rates snapshot unavailable")
		return currency.NewTable(nil)
	}
	return table
}

func (s *PaymentService) notifyDeposit(ctx context.Context, transaction *domain.Transaction) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, transaction.UserID, notifyTemplateDeposit, map[string]any{
		"invoiceID": transaction.InvoiceID,
		"amount":    transaction.Amount.String(),
	})
	if err != nil {
		s.l.WithError(err).WithField("invoiceID", transaction.InvoiceID).
			Error("notification delivery failed")
	}
}
