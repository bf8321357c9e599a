package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fsdevblog/panel-ledger/pkg/uow"
)

type AppServices struct {
	SettlementService *SettlementService
	PaymentService    *PaymentService
	AffiliateService  *AffiliateService
}

func Factory(
	unitOfWork uow.UOW,
	rates RatesProvider,
	notifier Notifier,
	l *logrus.Logger,
) (*AppServices, error) {
	settlementService, settlementErr := NewSettlementService(unitOfWork, rates, notifier, l)
	if settlementErr != nil {
		return nil, fmt.Errorf("service factory: %s", settlementErr.Error())
	}

	paymentService := NewPaymentService(unitOfWork, rates, notifier, l)

	affiliateService, affiliateErr := NewAffiliateService(unitOfWork, l)
	if affiliateErr != nil {
		return nil, fmt.Errorf("service factory: %s", affiliateErr.Error())
	}

	return &AppServices{
		SettlementService: settlementService,
		PaymentService:    paymentService,
		AffiliateService:  affiliateService,
	}, nil
}
