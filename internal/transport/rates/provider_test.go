package rates

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/fsdevblog/panel-ledger/internal/currency"
	"github.com/fsdevblog/panel-ledger/internal/transport/rates/mocks"
)

type ProviderTestSuite struct {
	suite.Suite
	mockCtrl   *gomock.Controller
	mockClient *mocks.MockClient
	provider   *Provider
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderTestSuite))
}

func (s *ProviderTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mockClient = mocks.NewMockClient(s.mockCtrl)

	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	// redis отсутствует: проверяем поведение локального кеша.
	s.provider = NewProvider(s.mockClient, nil, l)
}

func (s *ProviderTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func (s *ProviderTestSuite) TestSnapshotFetchesFromSource() {
	s.mockClient.EXPECT().FetchRates(gomock.Any()).Return([]currency.Rate{
		{Code: "BDT", Rate: decimal.RequireFromString("120")},
	}, nil)

	table, err := s.provider.Snapshot(context.Background())
	s.Require().NoError(err)

	converted, convErr := currency.Convert(decimal.RequireFromString("240"), "BDT", currency.USD, table)
	s.Require().NoError(convErr)
	s.True(converted.Equal(decimal.RequireFromString("2")))
}

// Источник упал после удачного снимка: выдается последняя известная таблица.
func (s *ProviderTestSuite) TestSnapshotServesLastKnownCopy() {
	s.mockClient.EXPECT().FetchRates(gomock.Any()).Return([]currency.Rate{
		{Code: "BDT", Rate: decimal.RequireFromString("120")},
	}, nil)
	s.mockClient.EXPECT().FetchRates(gomock.Any()).
		Return(nil, errors.New("connection refused"))

	_, firstErr := s.provider.Snapshot(context.Background())
	s.Require().NoError(firstErr)

	table, secondErr := s.provider.Snapshot(context.Background())
	s.Require().NoError(secondErr)
	_, ok := table["BDT"]
	s.True(ok)
}

func (s *ProviderTestSuite) TestSnapshotNoRatesAtAll() {
	s.mockClient.EXPECT().FetchRates(gomock.Any()).
		Return(nil, errors.New("connection refused"))

	table, err := s.provider.Snapshot(context.Background())
	s.Nil(table)
	s.ErrorIs(err, ErrNoRates)
}
