package rates

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fsdevblog/panel-ledger/internal/currency"
)

const (
	redisRatesKey = "rates:snapshot"
	redisRatesTTL = 10 * time.Minute
)

// Provider кеширует снимок курсов в redis и держит последнюю удачную копию в
// памяти. Недоступность redis или источника не роняет выдачу: вернется
// последняя известная таблица.
type Provider struct {
	client Client
	rdb    *redis.Client
	l      *logrus.Entry

	mu   sync.RWMutex
	last []currency.Rate
}

func NewProvider(client Client, rdb *redis.Client, l *logrus.Logger) *Provider {
	return &Provider{
		client: client,
		rdb:    rdb,
		l:      l.WithField("component", "rates"),
	}
}

// Snapshot отдает таблицу курсов на момент вызова: redis, затем источник,
// затем локальная копия. Пустая таблица не возвращается без ошибки.
func (p *Provider) Snapshot(ctx context.Context) (currency.Table, error) {
	if cached, ok := p.fromRedis(ctx); ok {
		return currency.NewTable(cached), nil
	}

	fetched, fetchErr := p.Refresh(ctx)
	if fetchErr == nil {
		return currency.NewTable(fetched), nil
	}
	p.l.WithError(fetchErr).Warn("rates source unavailable, serving last known snapshot")

	p.mu.RLock()
	last := p.last
	p.mu.RUnlock()

	if len(last) == 0 {
		return nil, ErrNoRates
	}
	return currency.NewTable(last), nil
}

// Refresh запрашивает источник и обновляет кеш. Ошибки записи в redis не
// фатальны, локальная копия обновляется всегда.
func (p *Provider) Refresh(ctx context.Context) ([]currency.Rate, error) {
	rates, fetchErr := p.client.FetchRates(ctx)
	if fetchErr != nil {
		return nil, fetchErr
	}

	p.mu.Lock()
	p.last = rates
	p.mu.Unlock()

	if p.rdb != nil {
		payload, marshalErr := json.Marshal(rates)
		if marshalErr == nil {
			if setErr := p.rdb.Set(ctx, redisRatesKey, payload, redisRatesTTL).Err(); setErr != nil {
				p.l.WithError(setErr).Warn("caching rates in redis failed")
			}
		}
	}
	return rates, nil
}

func (p *Provider) fromRedis(ctx context.Context) ([]currency.Rate, bool) {
	if p.rdb == nil {
		return nil, false
	}

	payload, getErr := p.rdb.Get(ctx, redisRatesKey).Bytes()
	if getErr != nil {
		if !errors.Is(getErr, redis.Nil) {
			p.l.WithError(getErr).Warn("reading rates from redis failed")
		}
		return nil, false
	}

	var rates []currency.Rate
	if jsonErr := json.Unmarshal(payload, &rates); jsonErr != nil {
		p.l.WithError(jsonErr).Warn("corrupted rates snapshot in redis")
		return nil, false
	}

	p.mu.Lock()
	p.last = rates
	p.mu.Unlock()
	return rates, true
}
