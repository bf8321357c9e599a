package pgrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/pkg/uow"
)

const transactionColumns = `id, created_at, updated_at, invoice_id, user_id, order_id,
	amount, amount_usd, currency, status, admin_status, method, external_txn_id,
	fee, sender_number, payer_name, charged_amount`

type TransactionRepository struct {
	db uow.DBTX
}

func NewTransactionRepository(db uow.DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create добавляет запись журнала. Уникальность invoice_id обеспечивает
// констрейнт: при дубликате вставка не происходит, возвращается существующая
// запись вместе с ошибкой domain.ErrDuplicateKey, чтоб вызывающая сторона
// могла трактовать это как "уже обработано".
func (r *TransactionRepository) Create(
	ctx context.Context,
	args repoargs.CreateTransaction,
) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO transactions
			(invoice_id, user_id, order_id, amount, amount_usd, currency, status, admin_status,
			 method, external_txn_id, fee, sender_number, payer_name, charged_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (invoice_id) DO NOTHING
		RETURNING `+transactionColumns,
		args.InvoiceID, args.UserID, args.OrderID, args.Amount, args.AmountUSD, args.Currency,
		args.Status, domain.AdminStatusPending, args.Method, args.ExternalTxnID, args.Fee,
		args.SenderNumber, args.PayerName, args.ChargedAmount,
	)
	transaction, err := scanTransaction(row)
	if err == nil {
		return transaction, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, convertErr(err, "creating transaction `%s`", args.InvoiceID)
	}

	// ON CONFLICT DO NOTHING не вернул строку - запись уже существует.
	existing, getErr := r.GetByInvoiceID(ctx, args.InvoiceID)
	if getErr != nil {
		return nil, getErr
	}
	return existing, domain.ErrDuplicateKey
}

func (r *TransactionRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE invoice_id = $1`, invoiceID)
	transaction, err := scanTransaction(row)
	if err != nil {
		return nil, convertErr(err, "getting transaction by invoice `%s`", invoiceID)
	}
	return transaction, nil
}

// GetByInvoiceIDForUpdate читает запись с блокировкой строки. Два конкурентных
// вебхука по одному invoice_id не пройдут проверку статуса одновременно:
// второй дождется коммита первого и увидит уже терминальный статус.
func (r *TransactionRepository) GetByInvoiceIDForUpdate(
	ctx context.Context,
	invoiceID string,
) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE invoice_id = $1 FOR UPDATE`, invoiceID)
	transaction, err := scanTransaction(row)
	if err != nil {
		return nil, convertErr(err, "locking transaction by invoice `%s`", invoiceID)
	}
	return transaction, nil
}

func (r *TransactionRepository) GetByUserID(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, convertErr(err, "getting transactions by userID %d", userID)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		transaction, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, convertErr(scanErr, "getting transactions by userID %d", userID)
		}
		transactions = append(transactions, *transaction)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, convertErr(rowsErr, "getting transactions by userID %d", userID)
	}
	return transactions, nil
}

func (r *TransactionRepository) UpdateStatus(
	ctx context.Context,
	update repoargs.TransactionStatusUpdate,
) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE transactions SET
			status = $2,
			external_txn_id = $3,
			fee = $4,
			sender_number = $5,
			payer_name = $6,
			charged_amount = $7,
			method = CASE WHEN $8 <> '' THEN $8 ELSE method END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+transactionColumns,
		update.ID, update.Status, update.ExternalTxnID, update.Fee,
		update.SenderNumber, update.PayerName, update.ChargedAmount, update.Method,
	)
	transaction, err := scanTransaction(row)
	if err != nil {
		return nil, convertErr(err, "updating transaction %d status", update.ID)
	}
	return transaction, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.InvoiceID, &t.UserID, &t.OrderID,
		&t.Amount, &t.AmountUSD, &t.Currency, &t.Status, &t.AdminStatus, &t.Method,
		&t.ExternalTxnID, &t.Fee, &t.SenderNumber, &t.PayerName, &t.ChargedAmount,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return &t, nil
}
