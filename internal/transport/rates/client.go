// Package rates поставляет сервисам снимок таблицы валютных курсов.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/fsdevblog/panel-ledger/internal/currency"
)

//go:generate mockgen -source=client.go -destination=mocks/mocks.go -package=mocks

// Client получает актуальные курсы из внешнего источника.
type Client interface {
	FetchRates(ctx context.Context) ([]currency.Rate, error)
}

type rateItem struct {
	Code string          `json:"code"`
	Rate decimal.Decimal `json:"rate"`
}

// HTTPClient является реализацией интерфейса Client для HTTP запросов к
// источнику курсов.
type HTTPClient struct {
	url        string
	httpClient *http.Client
}

func NewHTTPClient(url string) HTTPClient {
	return HTTPClient{
		url:        url,
		httpClient: http.DefaultClient,
	}
}

// FetchRates запрашивает курсы по настроенному URL. При ответе сервера со
// статусом отличным от http.StatusOK возвращает ошибку StatusCodeError.
//
//nolint:nonamedreturns
func (c HTTPClient) FetchRates(ctx context.Context) (rates []currency.Rate, err error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if reqErr != nil {
		return nil, fmt.Errorf("create request: %s", reqErr.Error())
	}

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf("do request: %s", doErr.Error())
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, NewStatusCodeError(resp.StatusCode)
	}

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		err = fmt.Errorf("read response: %s", readErr.Error())
		return nil, err
	}

	var items []rateItem
	if jsonErr := json.Unmarshal(body, &items); jsonErr != nil {
		err = fmt.Errorf("parse response: %s", jsonErr.Error())
		return nil, err
	}

	rates = make([]currency.Rate, len(items))
	for i, item := range items {
		rates[i] = currency.Rate{Code: item.Code, Rate: item.Rate}
	}
	return rates, nil
}
