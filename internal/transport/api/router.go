package api

import (
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fsdevblog/panel-ledger/internal/transport/api/middlewares"
)

const (
	DefaultServiceTimeout = 3 * time.Second
	// BulkServiceTimeout массовые операции держат транзакции дольше одиночных.
	BulkServiceTimeout = 30 * time.Second

	webhookRPS   = 25
	webhookBurst = 50
)

const (
	RouteGroup                  = "/api"
	PaymentWebhookRoute         = "/payments/webhook"
	PaymentInvoiceRoute         = "/payments/invoice"
	AdminLoginRoute             = "/admin/login"
	AdminOrderRefundRoute       = "/admin/orders/:id/refund"
	AdminOrderPartialRoute      = "/admin/orders/:id/partial"
	AdminOrdersStatusRoute      = "/admin/orders/status"
	AdminCommissionApproveRoute = "/admin/commissions/:id/approve"
	AdminCommissionRejectRoute  = "/admin/commissions/:id/reject"
	AdminAffiliatePayoutsRoute  = "/admin/affiliates/:id/payouts"
	AdminUserEarningsRoute      = "/admin/users/:id/earnings"
)

type RouterArgs struct {
	Logger            *logrus.Logger
	SettlementService SettlementServicer
	PaymentService    PaymentServicer
	AffiliateService  AffiliateServicer
	JWTSecretKey      []byte
	WebhookAPIKey     string
	AdminUsername     string
	AdminPasswordHash []byte
}

func New(args RouterArgs) (*gin.Engine, error) {
	if err := registerValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestid.New())
	if args.Logger != nil {
		r.Use(middlewares.Logger(args.Logger))
	}
	r.Use(middlewares.Errors())

	authHandler := NewAuthHandler(args.AdminUsername, args.AdminPasswordHash, args.JWTSecretKey)
	webhookHandler := NewWebhookHandler(args.PaymentService)
	ordersHandler := NewAdminOrdersHandler(args.SettlementService)
	affiliateHandler := NewAdminAffiliateHandler(args.AffiliateService)

	api := r.Group(RouteGroup)

	api.POST(PaymentWebhookRoute,
		middlewares.RateLimit(webhookRPS, webhookBurst),
		middlewares.APIKeyRequired(args.WebhookAPIKey),
		webhookHandler.PaymentWebhook)

	// инициация депозита: панель создает инвойс до редиректа юзера на шлюз.
	api.POST(PaymentInvoiceRoute,
		middlewares.APIKeyRequired(args.WebhookAPIKey),
		webhookHandler.CreateInvoice)

	api.POST(AdminLoginRoute, authHandler.Login)

	api.Use(middlewares.AdminAuthRequired(args.JWTSecretKey))
	// ниже все роуты группы требуют админского токена.
	api.POST(AdminOrderRefundRoute, ordersHandler.Refund)
	api.POST(AdminOrderPartialRoute, ordersHandler.MarkPartial)
	api.POST(AdminOrdersStatusRoute, ordersHandler.SetStatusBulk)

	api.POST(AdminCommissionApproveRoute, affiliateHandler.ApproveCommission)
	api.POST(AdminCommissionRejectRoute, affiliateHandler.RejectCommission)
	api.POST(AdminAffiliatePayoutsRoute, affiliateHandler.RequestPayout)
	api.GET(AdminUserEarningsRoute, affiliateHandler.GetEarnings)
	return r, nil
}
