package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/pkg/model"
)

// AMQPNotifier publishes notifications to a RabbitMQ queue via the default
// exchange. Consumers (desktop shells, ops tooling) pop them from there.
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *zap.Logger
}

// NewAMQPNotifier connects and declares the durable notification queue.
func NewAMQPNotifier(url, queue string, logger *zap.Logger) (*AMQPNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &AMQPNotifier{
		conn:    conn,
		channel: channel,
		queue:   queue,
		logger:  logger,
	}, nil
}

// Notify publishes one notification. Delivery problems are logged, never
// propagated: a broker outage must not fail the session transition that
// produced the notification.
func (a *AMQPNotifier) Notify(ctx context.Context, n model.Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		a.logger.Error("notify.amqp_marshal_failed", zap.Error(err))
		return
	}

	err = a.channel.PublishWithContext(
		ctx,
		"",      // exchange
		a.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		a.logger.Error("notify.amqp_publish_failed",
			zap.String("queue", a.queue),
			zap.Error(err))
	}
}

// Close closes the channel and connection.
func (a *AMQPNotifier) Close() error {
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
