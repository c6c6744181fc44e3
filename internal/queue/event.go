// Package queue defines the delivery status event exchanged over RabbitMQ
// and the consumer that records it.
package queue

import (
	"fmt"
	"time"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// StatusChangedQueue is the durable queue status events are routed to.
const StatusChangedQueue = "delivery.status_changed"

// DeliveryStatusChanged is published after every successful transition of
// a delivery request.  It carries enough for consumers to log or notify
// without reading the registry.
type DeliveryStatusChanged struct {
	DeliveryID string       `json:"delivery_id"`
	SenderID   string       `json:"sender_id"`
	RiderID    string       `json:"rider_id,omitempty"`
	From       model.Status `json:"from"`
	To         model.Status `json:"to"`
	Action     string       `json:"action"`
	ActorID    string       `json:"actor_id"`
	ActorRole  model.Role   `json:"actor_role"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// NewStatusChanged builds the event for a transition of d from status from,
// performed by actor.
func NewStatusChanged(action string, from model.Status, d model.DeliveryRequest, actor model.Identity) DeliveryStatusChanged {
	ev := DeliveryStatusChanged{
		DeliveryID: d.ID,
		SenderID:   d.SenderID,
		From:       from,
		To:         d.Status,
		Action:     action,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		OccurredAt: d.UpdatedAt.UTC(),
	}
	if d.HasRider() {
		ev.RiderID = *d.RiderID
	}
	return ev
}

// LogLine renders ev as one line of logs/delivery.log.
func (ev DeliveryStatusChanged) LogLine() string {
	rider := ev.RiderID
	if rider == "" {
		rider = "-"
	}
	from := string(ev.From)
	if from == "" {
		from = "-"
	}
	return fmt.Sprintf("[%s] Delivery %s | delivery_id=%s | %s -> %s | sender_id=%s | rider_id=%s | actor=%s(%s)\n",
		ev.OccurredAt.Format(time.RFC3339), ev.Action, ev.DeliveryID, from, ev.To, ev.SenderID, rider, ev.ActorID, ev.ActorRole)
}
