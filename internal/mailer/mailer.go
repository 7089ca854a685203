// Package mailer hands rendered emails to the mail relay.
package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/dvloznov/financio/internal/logger"
)

// Email is one outgoing message. Recipients are user ids; the relay
// resolves them to addresses.
type Email struct {
	MessageID  string   `json:"messageId"`
	Subject    string   `json:"subject"`
	HTMLBody   string   `json:"content"`
	Recipients []string `json:"users"`
	IsHTML     bool     `json:"html"`
	IsDraft    bool     `json:"draft"`
}

// Mailer sends emails.
type Mailer interface {
	SendEmail(ctx context.Context, email Email) error
}

// Publisher is the subset of *amqp091.Channel used to publish.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPMailer publishes emails as JSON messages to an exchange consumed by
// the mail relay.
type AMQPMailer struct {
	publisher  Publisher
	exchange   string
	routingKey string
	conn       *amqp091.Connection
	channel    *amqp091.Channel
}

// NewAMQPMailer creates a mailer over an existing publisher.
func NewAMQPMailer(publisher Publisher, exchange, routingKey string) *AMQPMailer {
	return &AMQPMailer{publisher: publisher, exchange: exchange, routingKey: routingKey}
}

// DialAMQP connects to the broker and declares the durable direct exchange.
func DialAMQP(url, exchange, routingKey string) (*AMQPMailer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	m := NewAMQPMailer(channel, exchange, routingKey)
	m.conn = conn
	m.channel = channel
	return m, nil
}

// SendEmail implements Mailer. An empty MessageID is replaced by a fresh one.
func (m *AMQPMailer) SendEmail(ctx context.Context, email Email) error {
	if len(email.Recipients) == 0 {
		return errors.New("SendEmail: no recipients")
	}
	if email.MessageID == "" {
		email.MessageID = uuid.NewString()
	}

	body, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("SendEmail: marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = m.publisher.PublishWithContext(
		ctx,
		m.exchange,   // exchange
		m.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    email.MessageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("SendEmail: publish message: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("message_id", email.MessageID).
		Str("exchange", m.exchange).
		Str("routing_key", m.routingKey).
		Msg("Published email")
	return nil
}

// Close releases the broker connection, if this mailer owns one.
func (m *AMQPMailer) Close() error {
	var errs []error
	if m.channel != nil {
		errs = append(errs, m.channel.Close())
	}
	if m.conn != nil {
		errs = append(errs, m.conn.Close())
	}
	return errors.Join(errs...)
}

// LogMailer only logs emails. It stands in for the relay when no broker
// is configured.
type LogMailer struct{}

// SendEmail implements Mailer.
func (LogMailer) SendEmail(ctx context.Context, email Email) error {
	log := logger.FromContext(ctx)
	log.Info().
		Str("subject", email.Subject).
		Strs("recipients", email.Recipients).
		Int("body_bytes", len(email.HTMLBody)).
		Msg("Email not sent: no mail relay configured")
	return nil
}
