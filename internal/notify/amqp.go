package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPTransport publishes notifications to a RabbitMQ topic exchange. A
// downstream mailer service consumes `notification.<type>` events and does
// the actual delivery.
type AMQPTransport struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPTransport connects to RabbitMQ and declares the exchange
// (idempotent).
func NewAMQPTransport(url, exchange string) (*AMQPTransport, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}

	slog.Info("AMQP transport initialized", "exchange", exchange)
	return &AMQPTransport{conn: conn, channel: channel, exchange: exchange}, nil
}

// Send publishes the message as a persistent JSON event with routing key
// notification.<type>.
func (t *AMQPTransport) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]string{
		"to":       msg.To,
		"user_id":  msg.UserID,
		"match_id": msg.MatchID,
		"item_id":  msg.ItemID,
		"type":     msg.Type,
		"subject":  msg.Subject,
		"body":     msg.Body,
	})
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = t.channel.PublishWithContext(
		ctx,
		t.exchange,
		"notification."+msg.Type,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}

// Close tears down the channel and connection.
func (t *AMQPTransport) Close() error {
	if err := t.channel.Close(); err != nil {
		t.conn.Close()
		return err
	}
	return t.conn.Close()
}
