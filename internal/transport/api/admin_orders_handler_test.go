package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/fsdevblog/panel-ledger/internal/domain"
	"github.com/fsdevblog/panel-ledger/internal/logger"
	"github.com/fsdevblog/panel-ledger/internal/service"
	"github.com/fsdevblog/panel-ledger/internal/transport/api/mocks"
	"github.com/fsdevblog/panel-ledger/internal/transport/api/testutils"
	"github.com/fsdevblog/panel-ledger/internal/transport/api/tokens"
	"github.com/gin-gonic/gin"
)

type AdminOrdersHandlerTestSuite struct {
	suite.Suite
	mockCtrl              *gomock.Controller
	router                *gin.Engine
	mockSettlementService *mocks.MockSettlementServicer
	jwtSecret             []byte
	adminToken            string
}

func TestAdminOrdersHandlerSuite(t *testing.T) {
	suite.Run(t, new(AdminOrdersHandlerTestSuite))
}

func (s *AdminOrdersHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.mockCtrl = gomock.NewController(s.T())
	s.mockSettlementService = mocks.NewMockSettlementServicer(s.mockCtrl)
	s.jwtSecret = []byte("super secret key")

	token, tokenErr := tokens.GenerateAdminJWT("admin", time.Hour, s.jwtSecret)
	s.Require().NoError(tokenErr)
	s.adminToken = token

	router, routerErr := New(RouterArgs{
		Logger:            logger.New(os.Stdout),
		SettlementService: s.mockSettlementService,
		JWTSecretKey:      s.jwtSecret,
		WebhookAPIKey:     "key",
	})
	s.Require().NoError(routerErr)
	s.router = router
}

func (s *AdminOrdersHandlerTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func (s *AdminOrdersHandlerTestSuite) postJSON(url string, payload any, token string) *http.Response {
	body, marshalErr := json.Marshal(payload)
	s.Require().NoError(marshalErr)

	opts := []func(*testutils.RequestOptions){testutils.WithJSON()}
	if token != "" {
		opts = append(opts, testutils.WithBearerToken(token))
	}
	return testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    url,
		Body:   bytes.NewReader(body),
	}, opts...)
}

func (s *AdminOrdersHandlerTestSuite) TestRefund() {
	s.mockSettlementService.EXPECT().
		Refund(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, args service.RefundArgs) (*domain.Order, error) {
			s.Equal(int64(3), args.OrderID)
			s.Equal(domain.RefundFull, args.Kind)
			s.Nil(args.Amount)
			return &domain.Order{ID: 3, UserID: 7, Charge: decimal.RequireFromString("50"),
				Status: domain.OrderStatusRefunded}, nil
		})

	resp := s.postJSON(RouteGroup+"/admin/orders/3/refund",
		RefundRequest{Type: domain.RefundFull}, s.adminToken)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var envelope struct {
		Success bool          `json:"success"`
		Data    OrderResponse `json:"data"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))
	s.True(envelope.Success)
	s.Equal(domain.OrderStatusRefunded, envelope.Data.Status)
	s.Equal("50.00", envelope.Data.Charge)
}

func (s *AdminOrdersHandlerTestSuite) TestRefundWithExplicitAmount() {
	s.mockSettlementService.EXPECT().
		Refund(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, args service.RefundArgs) (*domain.Order, error) {
			s.Equal(domain.RefundPartial, args.Kind)
			s.Require().NotNil(args.Amount)
			s.True(args.Amount.Equal(decimal.RequireFromString("12.50")))
			return &domain.Order{ID: 3, Status: domain.OrderStatusPartial,
				Charge: decimal.RequireFromString("37.50")}, nil
		})

	resp := s.postJSON(RouteGroup+"/admin/orders/3/refund",
		RefundRequest{Type: domain.RefundPartial, Amount: "12.50"}, s.adminToken)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *AdminOrdersHandlerTestSuite) TestRefundFinalizedOrder() {
	s.mockSettlementService.EXPECT().
		Refund(gomock.Any(), gomock.Any()).
		Return(nil, domain.NewAlreadyFinalizedError(3, domain.OrderStatusRefunded))

	resp := s.postJSON(RouteGroup+"/admin/orders/3/refund",
		RefundRequest{Type: domain.RefundFull}, s.adminToken)
	defer resp.Body.Close()

	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *AdminOrdersHandlerTestSuite) TestRefundUnauthorized() {
	resp := s.postJSON(RouteGroup+"/admin/orders/3/refund",
		RefundRequest{Type: domain.RefundFull}, "")
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *AdminOrdersHandlerTestSuite) TestMarkPartial() {
	s.mockSettlementService.EXPECT().
		MarkPartial(gomock.Any(), int64(3), int64(30)).
		Return(&domain.Order{ID: 3, Qty: 70, Remains: 30,
			Charge: decimal.RequireFromString("35"), Status: domain.OrderStatusPartial}, nil)

	resp := s.postJSON(RouteGroup+"/admin/orders/3/partial",
		MarkPartialRequest{NotGoing: 30}, s.adminToken)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data OrderResponse `json:"data"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))
	s.Equal(int64(30), envelope.Data.Remains)
	s.Equal("35.00", envelope.Data.Charge)
}

func (s *AdminOrdersHandlerTestSuite) TestMarkPartialInvalidPayload() {
	resp := s.postJSON(RouteGroup+"/admin/orders/3/partial",
		MarkPartialRequest{NotGoing: 0}, s.adminToken)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *AdminOrdersHandlerTestSuite) TestSetStatusBulk() {
	s.mockSettlementService.EXPECT().
		SetStatusBulk(gomock.Any(), []int64{1, 2, 3}, domain.OrderStatusCancelled).
		Return(&service.BulkStatusResult{
			Updated: []int64{1, 2},
			Skipped: []service.SkippedOrder{{OrderID: 3, Status: domain.OrderStatusCompleted}},
		}, nil)

	resp := s.postJSON(RouteGroup+AdminOrdersStatusRoute,
		BulkStatusRequest{OrderIDs: []int64{1, 2, 3}, Status: "cancelled"}, s.adminToken)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data BulkStatusResponse `json:"data"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))
	s.Equal([]int64{1, 2}, envelope.Data.Updated)
	s.Require().Len(envelope.Data.Skipped, 1)
	s.Equal(int64(3), envelope.Data.Skipped[0].OrderID)
}

func (s *AdminOrdersHandlerTestSuite) TestSetStatusBulkUnknownStatus() {
	resp := s.postJSON(RouteGroup+AdminOrdersStatusRoute,
		BulkStatusRequest{OrderIDs: []int64{1}, Status: "exploded"}, s.adminToken)
	defer resp.Body.Close()

	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
}
