package rates

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultRefreshInterval = 5 * time.Minute

// Refresher фоново обновляет снимок курсов, чтоб расчеты не ждали похода к
// источнику. Живет вне транзакций расчетов.
type Refresher struct {
	provider *Provider
	interval time.Duration
	l        *logrus.Entry
}

func NewRefresher(provider *Provider, l *logrus.Logger) *Refresher {
	return &Refresher{
		provider: provider,
		interval: defaultRefreshInterval,
		l: l.WithFields(logrus.Fields{
			"component": "rates",
			"module":    "refresher",
		}),
	}
}

// SetInterval устанавливает период обновления курсов.
func (r *Refresher) SetInterval(interval time.Duration) *Refresher {
	r.interval = interval
	return r
}

// Run обновляет курсы в бесконечном цикле до отмены контекста.
func (r *Refresher) Run(ctx context.Context) {
	r.l.WithField("interval", r.interval.String()).Info("Starting")

	if _, err := r.provider.Refresh(ctx); err != nil {
		r.l.WithError(err).Error("initial rates refresh failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.l.Info("Got stop signal, exiting...")
			return
		case <-ticker.C:
			if _, err := r.provider.Refresh(ctx); err != nil {
				r.l.WithError(err).Error("rates refresh failed")
			}
		}
	}
}
