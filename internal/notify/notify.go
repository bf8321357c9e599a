// Package notify доставляет юзерам уведомления о движении денег через брокер
// сообщений. Вызывается только после коммита транзакции БД.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const notificationsQueue = "user.notifications"

// Message то, что уходит в очередь. Шаблон и полезная нагрузка рендерятся
// потребителем.
type Message struct {
	UserID   int64          `json:"user_id"`
	Template string         `json:"template"`
	Payload  map[string]any `json:"payload,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

// AMQPPublisher публикует уведомления в rabbitmq.
type AMQPPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	l    *logrus.Entry
}

func NewAMQPPublisher(url string, l *logrus.Logger) (*AMQPPublisher, error) {
	conn, dialErr := amqp.Dial(url)
	if dialErr != nil {
		return nil, fmt.Errorf("amqp dial: %w", dialErr)
	}

	ch, chErr := conn.Channel()
	if chErr != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", chErr)
	}

	_, queueErr := ch.QueueDeclare(notificationsQueue, true, false, false, false, nil)
	if queueErr != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", notificationsQueue, queueErr)
	}

	return &AMQPPublisher{
		conn: conn,
		ch:   ch,
		l:    l.WithField("component", "notify"),
	}, nil
}

func (p *AMQPPublisher) Notify(ctx context.Context, userID int64, template string, payload map[string]any) error {
	body, marshalErr := json.Marshal(Message{
		UserID:   userID,
		Template: template,
		Payload:  payload,
		SentAt:   time.Now().UTC(),
	})
	if marshalErr != nil {
		return fmt.Errorf("marshal notification: %w", marshalErr)
	}

	pubErr := p.ch.PublishWithContext(ctx, "", notificationsQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if pubErr != nil {
		return fmt.Errorf("publish notification: %w", pubErr)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	chErr := p.ch.Close()
	connErr := p.conn.Close()
	return errors.Join(chErr, connErr)
}

// Nop заглушка на случай, когда брокер не сконфигурирован.
type Nop struct{}

func (Nop) Notify(context.Context, int64, string, map[string]any) error {
	return nil
}
