package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"realestate-ingest/models"
	"realestate-ingest/utils"
)

const (
	eventBuildingUpserted = "building.upserted"
	eventFacilityUpserted = "facility.upserted"
	eventVersion          = "1.0.0"
	publishTimeout        = 10 * time.Second
)

// amqpChannel is the subset of *amqp.Channel the publisher needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher emits one persistent JSON event per canonical entity to a
// topic exchange. Routing keys are "<prefix>.building" and "<prefix>.facility".
type AMQPPublisher struct {
	conn       *amqp.Connection
	channel    amqpChannel
	exchange   string
	routingKey string
	runID      string
	logger     *utils.Logger
}

// NewAMQPPublisher dials the broker, retrying with backoff, and declares a
// durable topic exchange.
func NewAMQPPublisher(url, exchange, routingKey, runID string, retry *utils.RetryConfig, logger *utils.Logger) (*AMQPPublisher, error) {
	var conn *amqp.Connection
	err := retry.Do("amqp-dial", func() error {
		c, err := amqp.Dial(url)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %q: %w", exchange, err)
	}

	p := newAMQPPublisher(ch, exchange, routingKey, runID, logger)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, exchange, routingKey, runID string, logger *utils.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		runID:      runID,
		logger:     logger,
	}
}

// WriteBuildings publishes a building.upserted event per building.
func (p *AMQPPublisher) WriteBuildings(ctx context.Context, buildings []*models.Building) (WriteResult, error) {
	var res WriteResult
	for _, b := range buildings {
		if err := p.publish(ctx, "building", eventBuildingUpserted, toBuildingDocument(b)); err != nil {
			p.logger.Error("[amqp] Failed to publish %s: %v", b.Key.Name, err)
			res.Failed++
			continue
		}
		res.Written++
	}
	return res, ctx.Err()
}

// WriteFacilities publishes a facility.upserted event per facility.
func (p *AMQPPublisher) WriteFacilities(ctx context.Context, facilities []*models.Facility) (WriteResult, error) {
	var res WriteResult
	for _, f := range facilities {
		if err := p.publish(ctx, "facility", eventFacilityUpserted, toFacilityDocument(f)); err != nil {
			p.logger.Error("[amqp] Failed to publish %s: %v", f.Key.Name, err)
			res.Failed++
			continue
		}
		res.Written++
	}
	return res, ctx.Err()
}

func (p *AMQPPublisher) publish(ctx context.Context, kind, eventType string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Type:         eventType,
		Headers: amqp.Table{
			"event-type":    eventType,
			"event-version": eventVersion,
			"run-id":        p.runID,
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.channel.PublishWithContext(publishCtx, p.exchange, p.routingKey+"."+kind, false, false, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", kind, err)
	}
	return nil
}

// Close closes the channel and then the connection.
func (p *AMQPPublisher) Close() error {
	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
