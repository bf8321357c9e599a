package service

import (
	"context"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/fsdevblog/panel-ledger/internal/currency"
	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/internal/service/mocks"
	"github.com/fsdevblog/panel-ledger/pkg/uow"
	uowmocks "github.com/fsdevblog/panel-ledger/pkg/uow/mocks"
)

type SettlementServiceTestSuite struct {
	suite.Suite
	mockCtrl            *gomock.Controller
	mockUOW             *uowmocks.MockUOW
	mockTX              *uowmocks.MockTX
	mockUserRepo        *mocks.MockUserRepository
	mockOrderRepo       *mocks.MockOrderRepository
	mockTransactionRepo *mocks.MockTransactionRepository
	mockAffiliateRepo   *mocks.MockAffiliateRepository
	mockRates           *mocks.MockRatesProvider
	mockNotifier        *mocks.MockNotifier
	settlementService   *SettlementService
}

func TestSettlementServiceSuite(t *testing.T) {
	suite.Run(t, new(SettlementServiceTestSuite))
}

func (s *SettlementServiceTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mockUOW = uowmocks.NewMockUOW(s.mockCtrl)
	s.mockTX = uowmocks.NewMockTX(s.mockCtrl)
	s.mockUserRepo = mocks.NewMockUserRepository(s.mockCtrl)
	s.mockOrderRepo = mocks.NewMockOrderRepository(s.mockCtrl)
	s.mockTransactionRepo = mocks.NewMockTransactionRepository(s.mockCtrl)
	s.mockAffiliateRepo = mocks.NewMockAffiliateRepository(s.mockCtrl)
	s.mockRates = mocks.NewMockRatesProvider(s.mockCtrl)
	s.mockNotifier = mocks.NewMockNotifier(s.mockCtrl)

	// Мок получения репозитория из uow. Выполняется в инициализации сервиса.
	s.mockUOW.EXPECT().GetRepository(uow.RepositoryName(repoargs.OrderRepoName)).
		Return(s.mockOrderRepo, nil).AnyTimes()

	// Репозитории из транзакции.
	s.mockTX.EXPECT().Get(uow.RepositoryName(repoargs.UserRepoName)).
		Return(s.mockUserRepo, nil).AnyTimes()
	s.mockTX.EXPECT().Get(uow.RepositoryName(repoargs.OrderRepoName)).
		Return(s.mockOrderRepo, nil).AnyTimes()
	s.mockTX.EXPECT().Get(uow.RepositoryName(repoargs.TransactionRepoName)).
		Return(s.mockTransactionRepo, nil).AnyTimes()
	s.mockTX.EXPECT().Get(uow.RepositoryName(repoargs.AffiliateRepoName)).
		Return(s.mockAffiliateRepo, nil).AnyTimes()

	// Таблица курсов по умолчанию содержит только USD.
	s.mockRates.EXPECT().Snapshot(gomock.Any()).
		Return(currency.NewTable(nil), nil).AnyTimes()

	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	settlementService, servErr := NewSettlementService(s.mockUOW, s.mockRates, s.mockNotifier, l)
	s.Require().NoError(servErr)
	s.settlementService = settlementService
}

func (s *SettlementServiceTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

// expectDo прогоняет fn сквозь мок транзакции times раз.
func (s *SettlementServiceTestSuite) expectDo(times int) {
	s.mockUOW.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context, uow.TX) error) error {
			return fn(ctx, s.mockTX)
		}).Times(times)
}

func (s *SettlementServiceTestSuite) money(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	s.Require().NoError(err)
	return d
}

func (s *SettlementServiceTestSuite) TestPlaceOrder() {
	user := &domain.User{ID: 7, Currency: "USD", Balance: s.money("100")}

	s.expectDo(1)
	s.mockUserRepo.EXPECT().GetByIDForUpdate(gomock.Any(), int64(7)).Return(user, nil)

	s.mockUserRepo.EXPECT().
		ApplyLedgerDeltas(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, deltas repoargs.LedgerDeltas) error {
			s.Equal(int64(7), deltas.UserID)
			s.True(deltas.Balance.Equal(s.money("-25")), "balance delta: %s", deltas.Balance)
			s.True(deltas.TotalSpent.Equal(s.money("25")))
			s.False(deltas.ClampToZero)
			return nil
		})

	s.mockOrderRepo.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, args repoargs.CreateOrder) (*domain.Order, error) {
			s.Equal(int64(7), args.UserID)
			s.Equal(int64(500), args.Qty)
			s.True(args.Charge.Equal(s.money("25")))
			return &domain.Order{ID: 42, UserID: 7, Qty: 500, Remains: 500,
				Charge: args.Charge, Currency: "USD", Status: domain.OrderStatusPending}, nil
		})

	order, err := s.settlementService.PlaceOrder(context.Background(), PlaceOrderArgs{
		UserID:    7,
		ServiceID: 3,
		Qty:       500,
		Charge:    s.money("25"),
	})
	s.NoError(err)
	s.Equal(int64(42), order.ID)
	s.Equal(domain.OrderStatusPending, order.Status)
}

func (s *SettlementServiceTestSuite) TestPlaceOrderInsufficientBalance() {
	user := &domain.User{ID: 7, Currency: "USD", Balance: s.money("10")}

	s.expectDo(1)
	s.mockUserRepo.EXPECT().GetByIDForUpdate(gomock.Any(), int64(7)).Return(user, nil)
	s.mockUserRepo.EXPECT().
		ApplyLedgerDeltas(gomock.Any(), gomock.Any()).
		Return(domain.ErrInsufficientBalance)

	order, err := s.settlementService.PlaceOrder(context.Background(), PlaceOrderArgs{
		UserID:    7,
		ServiceID: 3,
		Qty:       500,
		Charge:    s.money("25"),
	})
	s.Nil(order)
	s.ErrorIs(err, domain.ErrInsufficientBalance)
}

// Заказ на 100 единиц за 50: пометка 30 единиц недоставленными возвращает 15,
// заказ остается на 70 единиц за 35.
func (s *SettlementServiceTestSuite) TestMarkPartial() {
	order := &domain.Order{
		ID: 3, UserID: 7, Qty: 100, Remains: 0,
		Charge: s.money("50"), ChargeUSD: s.money("50"),
		Currency: "USD", Status: domain.OrderStatusInProgress,
	}
	user := &domain.User{ID: 7, Currency: "USD"}

	s.expectDo(1)
	s.mockOrderRepo.EXPECT().GetByIDForUpdate(gomock.Any(), int64(3)).Return(order, nil)
	s.mockUserRepo.EXPECT().GetByIDForUpdate(gomock.Any(), int64(7)).Return(user, nil)

	s.mockUserRepo.EXPECT().
		ApplyLedgerDeltas(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, deltas repoargs.LedgerDeltas) error {
			s.True(deltas.Balance.Equal(s.money("15")), "refund: %s", deltas.Balance)
			s.True(deltas.TotalSpent.Equal(s.money("-15")))
			s.True(deltas.TotalDeposit.IsZero())
			return nil
		})

	s.mockOrderRepo.EXPECT().
		UpdateSettlement(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, update repoargs.SettlementUpdate) (*domain.Order, error) {
			s.Equal(domain.OrderStatusPartial, update.Status)
			s.Equal(int64(70), update.Qty)
			s.Equal(int64(30), update.Remains)
			s.True(update.Charge.Equal(s.money("35")), "charge: %s", update.Charge)
			return &domain.Order{ID: 3, UserID: 7, Qty: 70, Remains: 30,
				Charge: update.Charge, Status: domain.OrderStatusPartial}, nil
		})

	s.mockNotifier.EXPECT().Notify(gomock.Any(), int64(7), notifyTemplatePartial, gomock.Any()).Return(nil)

	updated, err := s.settlementService.MarkPartial(context.Background(), 3, 30)
	s.NoError(err)
	s.Equal(domain.OrderStatusPartial, updated.Status)
	s.Equal(int64(30), updated.Remains)
}

func (s *SettlementServiceTestSuite) TestMarkPartialFinalizedOrder() {
	order := &domain.Order{ID: 3, UserID: 7, Qty: 100, Status: domain.OrderStatusRefunded}

	s.expectDo(1)
	s.mockOrderRepo.EXPECT().GetByIDForUpdate(gomock.Any(), int64(3)).Return(order, nil)

	updated, err := s.settlementService.MarkPartial(context.Background(), 3, 30)
	s.Nil(updated)
	s.ErrorIs(err, domain.ErrAlreadyFinalized)

	var finalizedErr *domain.AlreadyFinalizedError
	s.ErrorAs(err, &finalizedErr)
	s.Equal(int64(3), finalizedErr.OrderID)
	s.Equal(domain.OrderStatusRefunded, finalizedErr.Status)
}

func (s *SettlementServiceTestSuite) TestRefundFull() {
	order := &domain.Order{
		ID: 3, UserID: 7, Qty: 100, Remains: 100,
		Charge: s.money("50"), ChargeUSD: s.money("50"),
		Currency: "USD", Status: domain.OrderStatusPending,
	}
	user := &domain.User{ID: 7, Currency: "USD"}

	s.expectDo(1)
	s.mockOrderRepo.EXPECT().GetByIDForUpdate(gomock.Any(), int64(3)).Return(order, nil)
	s.mockUserRepo.EXPECT().GetByIDForUpdate(gomock.Any(), int64(7)).Return(user, nil)

	s.mockUserRepo.EXPECT().
		ApplyLedgerDeltas(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, deltas repoargs.LedgerDeltas) error {
			s.True(deltas.Balance.Equal(s.money("50")))
			s.True(deltas.TotalSpent.Equal(s.money("-50")))
			return nil
		})

	// полный возврат не обнуляет charge - сумма остается для аудита.
	s.mockOrderRepo.EXPECT().
		UpdateSettlement(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, update repoargs.SettlementUpdate) (*domain.Order, error) {
			s.Equal(domain.OrderStatusRefunded, update.Status)
			s.True(update.Charge.Equal(s.money("50")))
			return &domain.Order{ID: 3, UserID: 7, Status: domain.OrderStatusRefunded,
				Charge: update.Charge}, nil
		})

	s.mockTransactionRepo.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, args repoargs.CreateTransaction) (*domain.Transaction, error) {
			s.True(strings.HasPrefix(args.InvoiceID, refundInvoicePrefix))
			s.Equal(int64(7), args.UserID)
			s.Require().NotNil(args.OrderID)
			s.Equal(int64(3), *args.OrderID)
			s.True(args.Amount.Equal(s.money("50")))
			s.Equal(domain.TransactionStatusSuccess, args.Status)
			return &domain.Transaction{ID: 1, InvoiceID: args.InvoiceID}, nil
		})

	s.mockNotifier.EXPECT().Notify(gomock.Any(), int64(7), notifyTemplateRefund, gomock.Any()).Return(nil)

	updated, err := s.settlementService.Refund(context.Background(), RefundArgs{
		OrderID: 3,
		Kind:    domain.RefundFull,
	})
	s.NoError(err)
	s.Equal(domain.OrderStatusRefunded, updated.Status)
}

// Заказ выполнен на 40% (remains 60 из 100): пропорциональный возврат
// составляет 60% от 50 = 30.
func (s *SettlementServiceTestSuite) TestRefundProrated() {
	order := &domain.Order{
		ID: 3, UserID: 7, Qty: 100, Remains: 60,
		Charge: s.money("50"), ChargeUSD: s.money("50"),
		Currency: "USD", Status: domain.OrderStatusInProgress,
	}
	user := &domain.User{ID: 7, Currency: "USD"}

	s.expectDo(1)
	s.mockOrderRepo.EXPECT().GetByIDForUpdate(gomock.Any(), int64(3)).Return(order, nil)
	s.mockUserRepo.EXPECT().GetByIDForUpdate(gomock.Any(), int64(7)).Return(user, nil)

	s.mockUserRepo.EXPECT().
		ApplyLedgerDeltas(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, deltas repoargs.LedgerDeltas) error {
			s.True(deltas.Balance.Equal(s.money("30")), "refund: %s", deltas.Balance)
			return nil
		})

	s.mockOrderRepo.EXPECT().
		UpdateSettlement(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, update repoargs.SettlementUpdate) (*domain.Order, error) {
			s.Equal(domain.OrderStatusPartial, update.Status)
			s.True(update.Charge.Equal(s.money("20")), "remaining charge: %s", update.Charge)
			return &domain.Order{ID: 3, UserID: 7, Status: update.Status, Charge: update.Charge}, nil
		})

	s.mockTransactionRepo.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		Return(&domain.Transaction{ID: 1}, nil)

	s.mockNotifier.EXPECT().Notify(gomock.Any(), int64(7), notifyTemplateRefund, gomock.Any()).Return(nil)

	_, err := s.settlementService.Refund(context.Background(), RefundArgs{
		OrderID: 3,
		Kind:    domain.RefundPartial,
	})
	s.NoError(err)
}

func (s *SettlementServiceTestSuite) TestRefundAlreadyRefunded() {
	order := &domain.Order{ID: 3, UserID: 7, Status: domain.OrderStatusRefunded}

	s.expectDo(1)
	s.mockOrderRepo.EXPECT().GetByIDForUpdate(gomock.Any(), int64(3)).Return(order, nil)

	updated, err := s.settlementService.Refund(context.Background(), RefundArgs{
		OrderID: 3,
		Kind:    domain.RefundFull,
	})
	s.Nil(updated)
	s.ErrorIs(err, domain.ErrAlreadyFinalized)
}

// Три отменяемых заказа двух юзеров: леджер каждого юзера обновляется ровно
// одним вызовом с суммарным возвратом. Четвертый заказ уже финализирован и
// попадает в Skipped.
func (s *SettlementServiceTestSuite) TestSetStatusBulkCancelled() {
	orders := []domain.Order{
		{ID: 1, UserID: 10, Charge: s.money("10"), Currency: "USD", Status: domain.OrderStatusPending},
		{ID: 2, UserID: 10, Charge: s.money("20"), Currency: "USD", Status: domain.OrderStatusInProgress},
		{ID: 3, UserID: 11, Charge: s.money("5"), Currency: "USD", Status: domain.OrderStatusPending},
		{ID: 4, UserID: 11, Charge: s.money("7"), Currency: "USD", Status: domain.OrderStatusCompleted},
	}
	users := map[int64]*domain.User{
		10: {ID: 10, Currency: "USD"},
		11: {ID: 11, Currency: "USD"},
	}

	s.expectDo(1)
	s.mockOrderRepo.EXPECT().
		GetByIDsForUpdate(gomock.Any(), []int64{1, 2, 3, 4}).
		Return(orders, nil)

	s.mockUserRepo.EXPECT().
		GetByIDForUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id int64) (*domain.User, error) {
			return users[id], nil
		}).Times(3)

	var deltaCalls []repoargs.LedgerDeltas
	s.mockUserRepo.EXPECT().
		ApplyLedgerDeltas(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, deltas repoargs.LedgerDeltas) error {
			deltaCalls = append(deltaCalls, deltas)
			return nil
		}).Times(2)

	s.mockOrderRepo.EXPECT().
		BatchUpdateStatus(gomock.Any(), []int64{1, 2, 3}, domain.OrderStatusCancelled).
		Return(nil)

	// уведомления после коммита.
	s.mockOrderRepo.EXPECT().
		GetByID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id int64) (*domain.Order, error) {
			for i := range orders {
				if orders[i].ID == id {
					return &orders[i], nil
				}
			}
			return nil, domain.ErrRecordNotFound
		}).Times(3)
	s.mockNotifier.EXPECT().
		Notify(gomock.Any(), gomock.Any(), notifyTemplateCancelled, gomock.Any()).
		Return(nil).Times(3)

	result, err := s.settlementService.SetStatusBulk(
		context.Background(), []int64{1, 2, 3, 4}, domain.OrderStatusCancelled)
	s.Require().NoError(err)

	s.Equal([]int64{1, 2, 3}, result.Updated)
	s.Require().Len(result.Skipped, 1)
	s.Equal(int64(4), result.Skipped[0].OrderID)
	s.Equal(domain.OrderStatusCompleted, result.Skipped[0].Status)

	s.Require().Len(deltaCalls, 2)
	byUser := map[int64]repoargs.LedgerDeltas{}
	for _, d := range deltaCalls {
		byUser[d.UserID] = d
	}
	s.True(byUser[10].Balance.Equal(s.money("30")), "user 10 refund: %s", byUser[10].Balance)
	s.True(byUser[11].Balance.Equal(s.money("5")), "user 11 refund: %s", byUser[11].Balance)
}

// Завершение заказа реферала начисляет аффилиату комиссию в статусе pending.
func (s *SettlementServiceTestSuite) TestSetStatusBulkCompletedAccruesCommission() {
	affiliateID := int64(5)
	orders := []domain.Order{
		{ID: 1, UserID: 20, Charge: s.money("100"), ChargeUSD: s.money("100"),
			Currency: "USD", Status: domain.OrderStatusInProgress},
	}
	user := &domain.User{ID: 20, Currency: "USD", ReferredBy: &affiliateID}
	affiliate := &domain.Affiliate{ID: 5, CommissionRate: s.money("10")}

	s.expectDo(1)
	s.mockOrderRepo.EXPECT().GetByIDsForUpdate(gomock.Any(), []int64{1}).Return(orders, nil)
	s.mockOrderRepo.EXPECT().
		BatchUpdateStatus(gomock.Any(), []int64{1}, domain.OrderStatusCompleted).
		Return(nil)

	s.mockUserRepo.EXPECT().GetByID(gomock.Any(), int64(20)).Return(user, nil)
	s.mockAffiliateRepo.EXPECT().GetByID(gomock.Any(), int64(5)).Return(affiliate, nil)

	s.mockAffiliateRepo.EXPECT().
		CreateCommission(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, args repoargs.CreateCommission) (*domain.Commission, error) {
			s.Equal(int64(5), args.AffiliateID)
			s.Equal(int64(1), args.OrderID)
			s.True(args.CommissionAmount.Equal(s.money("10")), "commission: %s", args.CommissionAmount)
			return &domain.Commission{ID: 9, Status: domain.CommissionStatusPending}, nil
		})

	result, err := s.settlementService.SetStatusBulk(
		context.Background(), []int64{1}, domain.OrderStatusCompleted)
	s.Require().NoError(err)
	s.Equal([]int64{1}, result.Updated)
	s.Empty(result.Skipped)
}

// Пачка больше bulkChunkSize режется на части: каждая часть - своя транзакция,
// Updated и Skipped накапливаются сквозь части.
func (s *SettlementServiceTestSuite) TestSetStatusBulkChunked() {
	ids := make([]int64, bulkChunkSize+50)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	s.expectDo(2)

	var lockedSizes []int
	s.mockOrderRepo.EXPECT().
		GetByIDsForUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, chunk []int64) ([]domain.Order, error) {
			lockedSizes = append(lockedSizes, len(chunk))
			orders := make([]domain.Order, 0, len(chunk))
			for _, id := range chunk {
				status := domain.OrderStatusPending
				// первый заказ пачки уже финализирован и должен попасть в Skipped.
				if id == 1 {
					status = domain.OrderStatusCompleted
				}
				orders = append(orders, domain.Order{ID: id, UserID: id, Currency: "USD", Status: status})
			}
			return orders, nil
		}).Times(2)

	var updatedIDs []int64
	s.mockOrderRepo.EXPECT().
		BatchUpdateStatus(gomock.Any(), gomock.Any(), domain.OrderStatusInProgress).
		DoAndReturn(func(_ context.Context, chunkIDs []int64, _ domain.OrderStatus) error {
			updatedIDs = append(updatedIDs, chunkIDs...)
			return nil
		}).Times(2)

	result, err := s.settlementService.SetStatusBulk(
		context.Background(), ids, domain.OrderStatusInProgress)
	s.Require().NoError(err)

	s.Equal([]int{bulkChunkSize, 50}, lockedSizes)
	s.Len(updatedIDs, len(ids)-1)
	s.Equal(result.Updated, updatedIDs)
	s.Require().Len(result.Skipped, 1)
	s.Equal(int64(1), result.Skipped[0].OrderID)
	s.Equal(domain.OrderStatusCompleted, result.Skipped[0].Status)
}

// Юзер без реферера комиссий не порождает.
func (s *SettlementServiceTestSuite) TestSetStatusBulkCompletedNoReferrer() {
	orders := []domain.Order{
		{ID: 1, UserID: 20, ChargeUSD: s.money("100"), Currency: "USD",
			Status: domain.OrderStatusInProgress},
	}

	s.expectDo(1)
	s.mockOrderRepo.EXPECT().GetByIDsForUpdate(gomock.Any(), []int64{1}).Return(orders, nil)
	s.mockOrderRepo.EXPECT().
		BatchUpdateStatus(gomock.Any(), []int64{1}, domain.OrderStatusCompleted).
		Return(nil)
	s.mockUserRepo.EXPECT().GetByID(gomock.Any(), int64(20)).
		Return(&domain.User{ID: 20, Currency: "USD"}, nil)

	result, err := s.settlementService.SetStatusBulk(
		context.Background(), []int64{1}, domain.OrderStatusCompleted)
	s.Require().NoError(err)
	s.Equal([]int64{1}, result.Updated)
}
