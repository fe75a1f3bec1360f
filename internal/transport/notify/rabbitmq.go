// Package notify публикует события жизненного цикла заказов в RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	ExchangeName = "market.orders"
	ExchangeType = "topic"

	routingKeyPrefix      = "order."
	defaultConnectTimeout = 30 * time.Second
)

type channel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// RabbitPublisher публикует события заказов в topic exchange market.orders с ключом order.<тип события>.
type RabbitPublisher struct {
	conn *amqp.Connection
	ch   channel
	l    *logrus.Entry
}

// Connect подключается к брокеру с экспоненциальными повторами (брокер может подниматься позже сервиса)
// и объявляет exchange.
func Connect(ctx context.Context, url string, l *logrus.Logger) (*RabbitPublisher, error) {
	entry := l.WithFields(logrus.Fields{
		"component": "notify",
		"module":    "rabbitmq",
	})

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = defaultConnectTimeout

	conn, dialErr := backoff.RetryNotifyWithData(func() (*amqp.Connection, error) {
		return amqp.Dial(url)
	}, backoff.WithContext(expBackoff, ctx), func(err error, next time.Duration) {
		entry.WithError(err).WithField("retryIn", next).Warn("rabbitmq is not available")
	})
	if dialErr != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", dialErr)
	}

	ch, chErr := conn.Channel()
	if chErr != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", chErr)
	}

	if declErr := ch.ExchangeDeclare(
		ExchangeName,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); declErr != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", ExchangeName, declErr)
	}

	entry.WithField("exchange", ExchangeName).Info("Connected")
	return &RabbitPublisher{conn: conn, ch: ch, l: entry}, nil
}

func (p *RabbitPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	routingKey := routingKeyPrefix + string(event.Type)
	if pubErr := p.ch.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    event.OccurredAt,
			Type:         string(event.Type),
			Body:         body,
		},
	); pubErr != nil {
		return fmt.Errorf("publish %s for order %s: %w", routingKey, event.OrderNumber, pubErr)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.l.Info("Closing")
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}

// NopPublisher используется, когда брокер не настроен.
type NopPublisher struct{}

func (NopPublisher) PublishOrderEvent(context.Context, domain.OrderEvent) error {
	return nil
}
