package service

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/internal/service/mocks"
	"github.com/fsdevblog/panel-ledger/pkg/uow"
	uowmocks "github.com/fsdevblog/panel-ledger/pkg/uow/mocks"
)

type AffiliateServiceTestSuite struct {
	suite.Suite
	mockCtrl          *gomock.Controller
	mockUOW           *uowmocks.MockUOW
	mockTX            *uowmocks.MockTX
	mockAffiliateRepo *mocks.MockAffiliateRepository
	affiliateService  *AffiliateService
}

func TestAffiliateServiceSuite(t *testing.T) {
	suite.Run(t, new(AffiliateServiceTestSuite))
}

func (s *AffiliateServiceTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mockUOW = uowmocks.NewMockUOW(s.mockCtrl)
	s.mockTX = uowmocks.NewMockTX(s.mockCtrl)
	s.mockAffiliateRepo = mocks.NewMockAffiliateRepository(s.mockCtrl)

	s.mockUOW.EXPECT().GetRepository(uow.RepositoryName(repoargs.AffiliateRepoName)).
		Return(s.mockAffiliateRepo, nil).AnyTimes()
	s.mockTX.EXPECT().Get(uow.RepositoryName(repoargs.AffiliateRepoName)).
		Return(s.mockAffiliateRepo, nil).AnyTimes()

	s.mockUOW.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context, uow.TX) error) error {
			return fn(ctx, s.mockTX)
		}).AnyTimes()

	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	affiliateService, servErr := NewAffiliateService(s.mockUOW, l)
	s.Require().NoError(servErr)
	s.affiliateService = affiliateService
}

func (s *AffiliateServiceTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func (s *AffiliateServiceTestSuite) money(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	s.Require().NoError(err)
	return d
}

func (s *AffiliateServiceTestSuite) TestApproveCommission() {
	commission := &domain.Commission{
		ID: 9, AffiliateID: 5,
		CommissionAmount: s.money("12.50"),
		Status:           domain.CommissionStatusPending,
	}

	s.mockAffiliateRepo.EXPECT().
		GetCommissionByIDForUpdate(gomock.Any(), int64(9)).
		Return(commission, nil)

	s.mockAffiliateRepo.EXPECT().
		ApplyEarningsDeltas(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, deltas repoargs.EarningsDeltas) error {
			s.Equal(int64(5), deltas.AffiliateID)
			s.True(deltas.TotalEarnings.Equal(s.money("12.50")))
			s.True(deltas.AvailableEarnings.Equal(s.money("12.50")))
			return nil
		})

	s.mockAffiliateRepo.EXPECT().
		UpdateCommissionStatus(gomock.Any(), int64(9), domain.CommissionStatusApproved).
		Return(&domain.Commission{ID: 9, Status: domain.CommissionStatusApproved}, nil)

	approved, err := s.affiliateService.ApproveCommission(context.Background(), 9)
	s.Require().NoError(err)
	s.Equal(domain.CommissionStatusApproved, approved.Status)
}

// Повторное одобрение уже одобренной комиссии отклоняется без мутаций.
func (s *AffiliateServiceTestSuite) TestApproveCommissionTwice() {
	commission := &domain.Commission{ID: 9, Status: domain.CommissionStatusApproved}

	s.mockAffiliateRepo.EXPECT().
		GetCommissionByIDForUpdate(gomock.Any(), int64(9)).
		Return(commission, nil)

	approved, err := s.affiliateService.ApproveCommission(context.Background(), 9)
	s.Nil(approved)
	s.ErrorIs(err, domain.ErrAlreadyFinalized)
}

func (s *AffiliateServiceTestSuite) TestRejectCommission() {
	commission := &domain.Commission{ID: 9, Status: domain.CommissionStatusPending}

	s.mockAffiliateRepo.EXPECT().
		GetCommissionByIDForUpdate(gomock.Any(), int64(9)).
		Return(commission, nil)
	s.mockAffiliateRepo.EXPECT().
		UpdateCommissionStatus(gomock.Any(), int64(9), domain.CommissionStatusRejected).
		Return(&domain.Commission{ID: 9, Status: domain.CommissionStatusRejected}, nil)

	rejected, err := s.affiliateService.RejectCommission(context.Background(), 9)
	s.Require().NoError(err)
	s.Equal(domain.CommissionStatusRejected, rejected.Status)
}

func (s *AffiliateServiceTestSuite) TestRequestPayout() {
	affiliate := &domain.Affiliate{ID: 5, AvailableEarnings: s.money("100")}

	s.mockAffiliateRepo.EXPECT().
		GetByIDForUpdate(gomock.Any(), int64(5)).
		Return(affiliate, nil)

	s.mockAffiliateRepo.EXPECT().
		ApplyEarningsDeltas(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, deltas repoargs.EarningsDeltas) error {
			s.True(deltas.TotalEarnings.IsZero())
			s.True(deltas.AvailableEarnings.Equal(s.money("-40")))
			return nil
		})

	s.mockAffiliateRepo.EXPECT().
		CreatePayout(gomock.Any(), int64(5), gomock.Any()).
		Return(&domain.Payout{ID: 3, AffiliateID: 5, Amount: s.money("40"),
			Status: domain.PayoutStatusPending}, nil)

	payout, err := s.affiliateService.RequestPayout(context.Background(), 5, s.money("40"))
	s.Require().NoError(err)
	s.Equal(domain.PayoutStatusPending, payout.Status)
}

func (s *AffiliateServiceTestSuite) TestRequestPayoutInsufficientEarnings() {
	affiliate := &domain.Affiliate{ID: 5, AvailableEarnings: s.money("10")}

	s.mockAffiliateRepo.EXPECT().
		GetByIDForUpdate(gomock.Any(), int64(5)).
		Return(affiliate, nil)
	s.mockAffiliateRepo.EXPECT().
		ApplyEarningsDeltas(gomock.Any(), gomock.Any()).
		Return(domain.ErrInsufficientEarnings)

	payout, err := s.affiliateService.RequestPayout(context.Background(), 5, s.money("40"))
	s.Nil(payout)
	s.ErrorIs(err, domain.ErrInsufficientEarnings)
}

func (s *AffiliateServiceTestSuite) TestRequestPayoutInvalidAmount() {
	payout, err := s.affiliateService.RequestPayout(context.Background(), 5, decimal.Zero)
	s.Nil(payout)
	s.ErrorIs(err, domain.ErrInvalidAmount)
}

func (s *AffiliateServiceTestSuite) TestGetEarnings() {
	affiliate := &domain.Affiliate{ID: 5, UserID: 20, TotalEarnings: s.money("200")}

	s.mockAffiliateRepo.EXPECT().
		GetByUserID(gomock.Any(), int64(20)).
		Return(affiliate, nil)

	got, err := s.affiliateService.GetEarnings(context.Background(), 20)
	s.Require().NoError(err)
	s.True(got.TotalEarnings.Equal(s.money("200")))
}
