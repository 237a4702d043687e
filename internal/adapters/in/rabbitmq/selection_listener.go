package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suchimauz/speaker-session-booking/internal/config"
	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/in"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/out"
)

// Пример routingKey: booking.6f1c2f4e-0d7e-4c39-9a53-3c1b6d8f0a11.speaker.selected
const SelectionBindingKey = "booking.*.speaker.selected"

type SelectionListener struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	useCase in.BookingUseCase
	cfg     *config.Config
	logger  out.LoggerPort
}

type SelectionMessage struct {
	SpeakerID   string `json:"speakerId"`
	SpeakerName string `json:"speakerName"`
}

type deliveryAction int

const (
	actionAck deliveryAction = iota
	actionReject
	actionRequeue
)

type acknowledger interface {
	Ack(multiple bool) error
	Reject(requeue bool) error
	Nack(multiple, requeue bool) error
}

func NewSelectionListener(useCase in.BookingUseCase, cfg *config.Config, logger out.LoggerPort) (*SelectionListener, error) {
	logger = logger.WithModule("RabbitMQListener")

	if !cfg.RabbitMQ.Enabled {
		logger.Info("rabbitmq.disabled", out.LogFields{
			"message": "RabbitMQ is disabled, listener will not be started",
		})
		return nil, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("rabbitmq.connect.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error("rabbitmq.channel.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}

	return newSelectionListener(conn, channel, useCase, cfg, logger), nil
}

func newSelectionListener(conn *amqp.Connection, channel *amqp.Channel, useCase in.BookingUseCase, cfg *config.Config, logger out.LoggerPort) *SelectionListener {
	return &SelectionListener{
		conn:    conn,
		channel: channel,
		useCase: useCase,
		cfg:     cfg,
		logger:  logger,
	}
}

func (l *SelectionListener) Start(ctx context.Context) error {
	err := l.channel.ExchangeDeclare(
		l.cfg.RabbitMQ.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("rabbitmq.exchange.declare_failed: %w", err)
	}

	queue, err := l.channel.QueueDeclare(
		l.cfg.RabbitMQ.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("rabbitmq.queue.declare_failed: %w", err)
	}

	err = l.channel.QueueBind(
		queue.Name,
		SelectionBindingKey,
		l.cfg.RabbitMQ.Exchange,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("rabbitmq.queue.bind_failed: %w", err)
	}

	msgs, err := l.channel.Consume(
		queue.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("rabbitmq.consume_failed: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					l.logger.Warn("rabbitmq.deliveries.closed", out.LogFields{})
					return
				}
				action := l.processSelectionMessage(ctx, msg.RoutingKey, msg.Body)
				l.settle(msg, action)
			}
		}
	}()

	l.logger.Info("rabbitmq.selection.queue.started", out.LogFields{
		"queue":    queue.Name,
		"exchange": l.cfg.RabbitMQ.Exchange,
	})

	return nil
}

func (l *SelectionListener) Stop() error {
	if l == nil || l.channel == nil {
		return nil
	}

	if err := l.channel.Close(); err != nil {
		return err
	}
	return l.conn.Close()
}

// processSelectionMessage не трогает доставку, решение о ней возвращается вызывающему
func (l *SelectionListener) processSelectionMessage(ctx context.Context, routingKey string, body []byte) deliveryAction {
	sessionID, err := parseSelectionRoutingKey(routingKey)
	if err != nil {
		l.logger.Warn("rabbitmq.selection.bad_routing_key", out.LogFields{
			"routingKey": routingKey,
			"error":      err.Error(),
		})
		return actionReject
	}

	var msg SelectionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		l.logger.Warn("rabbitmq.selection.bad_body", out.LogFields{
			"sessionId": sessionID,
			"body":      string(body),
			"error":     err.Error(),
		})
		return actionReject
	}

	l.logger.Info("rabbitmq.selection.received", out.LogFields{
		"sessionId":   sessionID,
		"speakerId":   msg.SpeakerID,
		"speakerName": msg.SpeakerName,
	})

	err = l.useCase.PublishSpeakerSelection(ctx, sessionID, domain.SpeakerSelection{
		SpeakerID:   msg.SpeakerID,
		SpeakerName: msg.SpeakerName,
	})
	switch {
	case err == nil:
		return actionAck
	case errors.Is(err, domain.ErrSessionNotFound):
		// Сессия могла закрыться раньше, чем дошло сообщение
		l.logger.Info("rabbitmq.selection.unknown_session", out.LogFields{
			"sessionId": sessionID,
		})
		return actionAck
	case errors.Is(err, domain.ErrInvalidInput):
		l.logger.Warn("rabbitmq.selection.invalid", out.LogFields{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
		return actionReject
	default:
		l.logger.Error("rabbitmq.selection.failed", out.LogFields{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
		return actionRequeue
	}
}

func (l *SelectionListener) settle(msg acknowledger, action deliveryAction) {
	var err error
	switch action {
	case actionAck:
		err = msg.Ack(false)
	case actionReject:
		err = msg.Reject(false)
	case actionRequeue:
		err = msg.Nack(false, true)
	}
	if err != nil {
		l.logger.Error("rabbitmq.delivery.settle_failed", out.LogFields{
			"error": err.Error(),
		})
	}
}

func parseSelectionRoutingKey(routingKey string) (uuid.UUID, error) {
	parts := strings.Split(routingKey, ".")
	if len(parts) != 4 || parts[0] != "booking" || parts[2] != "speaker" || parts[3] != "selected" {
		return uuid.Nil, fmt.Errorf("invalid routing key: %s", routingKey)
	}

	sessionID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id in routing key %s: %w", routingKey, err)
	}
	return sessionID, nil
}

func SelectionRoutingKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("booking.%s.speaker.selected", sessionID)
}
