package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fsdevblog/panel-ledger/internal/config"
	"github.com/fsdevblog/panel-ledger/internal/currency"
	"github.com/fsdevblog/panel-ledger/internal/notify"
	"github.com/fsdevblog/panel-ledger/internal/repository/pgrepo"
	"github.com/fsdevblog/panel-ledger/internal/repository/repoargs"
	"github.com/fsdevblog/panel-ledger/internal/service"
	"github.com/fsdevblog/panel-ledger/internal/transport/api"
	"github.com/fsdevblog/panel-ledger/internal/transport/rates"
	"github.com/fsdevblog/panel-ledger/pkg/uow"

	// driver for migration applying postgres.
	_ "github.com/golang-migrate/migrate/v4/database/postgres" //nolint:revive
	// driver to get migrations from files (*.sql in our case).
	_ "github.com/golang-migrate/migrate/v4/source/file" //nolint:revive
	"github.com/jackc/pgx/v5/pgxpool"
)

type App struct {
	Config *config.Config
	Logger *logrus.Logger
}

func New(conf *config.Config, l *logrus.Logger) *App {
	return &App{
		Config: conf,
		Logger: l,
	}
}

func (a *App) Run() error {
	notifyCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Logger.Infof("Starting app on %s", a.Config.RunAddress)
	conn, connErr := pgrepo.Connect(notifyCtx, a.Config.MigrationsDir, a.Config.DatabaseDSN, a.Logger)
	if connErr != nil {
		return fmt.Errorf("app run: %s", connErr.Error())
	}
	defer conn.Close()

	unitOfWork, uowErr := initUOW(conn)
	if uowErr != nil {
		return fmt.Errorf("app run: %s", uowErr.Error())
	}

	ratesProvider := a.initRatesProvider()
	notifier, notifierCleanup, notifierErr := a.initNotifier()
	if notifierErr != nil {
		return fmt.Errorf("app run: %s", notifierErr.Error())
	}
	defer notifierCleanup()

	services, sErr := service.Factory(unitOfWork, ratesProvider, notifier, a.Logger)
	if sErr != nil {
		return fmt.Errorf("app run: %s", sErr.Error())
	}

	router, routerErr := api.New(api.RouterArgs{
		Logger:            a.Logger,
		SettlementService: services.SettlementService,
		PaymentService:    services.PaymentService,
		AffiliateService:  services.AffiliateService,
		JWTSecretKey:      []byte(a.Config.JWTSecret),
		WebhookAPIKey:     a.Config.WebhookAPIKey,
		AdminUsername:     a.Config.AdminUsername,
		AdminPasswordHash: []byte(a.Config.AdminPasswordHash),
	})
	if routerErr != nil {
		return fmt.Errorf("app run: %s", routerErr.Error())
	}

	errChan := make(chan error, 1)

	go func() {
		if runErr := router.Run(a.Config.RunAddress); runErr != nil {
			errChan <- runErr
		}
	}()

	if refresher, ok := ratesProvider.(*rates.Provider); ok {
		go rates.NewRefresher(refresher, a.Logger).Run(notifyCtx)
	}

	select {
	case <-notifyCtx.Done():
		return notifyCtx.Err() //nolint:wrapcheck
	case err := <-errChan:
		return err
	}
}

// initRatesProvider собирает источник курсов. Без настроенного URL курсы
// недоступны: конвертация уйдет в персональные dollar_rate юзеров.
func (a *App) initRatesProvider() service.RatesProvider {
	if a.Config.RatesURL == "" {
		a.Logger.Warn("rates URL is not set, currency conversion will use per-user rates")
		return emptyRates{}
	}

	var rdb *redis.Client
	if a.Config.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
	}
	return rates.NewProvider(rates.NewHTTPClient(a.Config.RatesURL), rdb, a.Logger)
}

func (a *App) initNotifier() (service.Notifier, func(), error) {
	if a.Config.AMQPURL == "" {
		a.Logger.Warn("AMQP URL is not set, notifications are disabled")
		return notify.Nop{}, func() {}, nil
	}

	publisher, pubErr := notify.NewAMQPPublisher(a.Config.AMQPURL, a.Logger)
	if pubErr != nil {
		return nil, nil, fmt.Errorf("init notifier: %w", pubErr)
	}
	cleanup := func() {
		if closeErr := publisher.Close(); closeErr != nil {
			a.Logger.WithError(closeErr).Error("closing AMQP publisher")
		}
	}
	return publisher, cleanup, nil
}

func initUOW(conn *pgxpool.Pool) (*uow.UnitOfWork, error) {
	unitOfWork := uow.NewUnitOfWork(conn)

	// user repo
	userRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewUserRepository(dbtx)
	}
	if regErr := unitOfWork.Register(uow.RepositoryName(repoargs.UserRepoName), userRepoFactoryFn); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	// order repo
	orderRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewOrderRepository(dbtx)
	}
	if regErr := unitOfWork.Register(uow.RepositoryName(repoargs.OrderRepoName), orderRepoFactoryFn); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	// transaction repo
	transactionRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewTransactionRepository(dbtx)
	}
	if regErr := unitOfWork.Register(
		uow.RepositoryName(repoargs.TransactionRepoName),
		transactionRepoFactoryFn,
	); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	// affiliate repo
	affiliateRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewAffiliateRepository(dbtx)
	}
	if regErr := unitOfWork.Register(
		uow.RepositoryName(repoargs.AffiliateRepoName),
		affiliateRepoFactoryFn,
	); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	return unitOfWork, nil
}

// emptyRates заглушка провайдера курсов.
type emptyRates struct{}

func (emptyRates) Snapshot(context.Context) (currency.Table, error) {
	return currency.NewTable(nil), nil
}
