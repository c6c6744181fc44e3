// Package service publishes domain events to RabbitMQ.  Errors are logged
// and returned so callers can ignore them without interrupting the request
// that caused the event.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/parcel-marketplace/internal/queue"
)

// StatusPublisher sends delivery status events to queue.StatusChangedQueue.
// Each publish dials its own connection, so a broker outage never leaves a
// broken channel behind.
type StatusPublisher struct {
	URL         string
	DialTimeout time.Duration
	Log         *log.Logger
}

func NewStatusPublisher(url string, l *log.Logger) *StatusPublisher {
	return &StatusPublisher{URL: url, DialTimeout: 5 * time.Second, Log: l}
}

// Publish marshals ev and publishes it as a persistent message.
func (p *StatusPublisher) Publish(ctx context.Context, ev queue.DeliveryStatusChanged) error {
	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(p.DialTimeout)})
	if err != nil {
		p.Log.Warnf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Log.Warnf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue.StatusChangedQueue, true, false, false, false, nil); err != nil {
		p.Log.Warnf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", queue.StatusChangedQueue, false, false, pub); err != nil {
		p.Log.Warnf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}

// Discard drops every event.  It stands in when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, queue.DeliveryStatusChanged) error { return nil }
