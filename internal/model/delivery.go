package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a delivery request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusAccepted, StatusInTransit, StatusDelivered, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ParseStatus normalises and validates a status string.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// DeliveryRequest is a parcel a customer wants moved from a pickup
// location to a delivery location.  It starts pending, is accepted by
// exactly one rider, and ends delivered or cancelled.
//
// Fields:
//
//	ID               – ULID assigned at creation, immutable.
//	SenderID         – identity that created the request, never reassigned.
//	RiderID          – rider that accepted it; nil until accept, then fixed.
//	PickupLocation   – free-form pickup address.
//	DeliveryLocation – free-form drop-off address.
//	ItemDescription  – what is being delivered.
//	ReceiverName     – optional contact at the destination.
//	ReceiverPhone    – optional contact phone.
//	Notes            – optional instructions for the rider.
//	PriceCents       – non-negative price in minor units.
//	Status           – current lifecycle state.
//	CreatedAt        – creation timestamp (UTC).
//	UpdatedAt        – advances on every transition (UTC).
type DeliveryRequest struct {
	ID               string    `json:"id"`
	SenderID         string    `json:"sender_id"`
	RiderID          *string   `json:"rider_id,omitempty"`
	PickupLocation   string    `json:"pickup_location"`
	DeliveryLocation string    `json:"delivery_location"`
	ItemDescription  string    `json:"item_description"`
	ReceiverName     string    `json:"receiver_name,omitempty"`
	ReceiverPhone    string    `json:"receiver_phone,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	PriceCents       int64     `json:"price_cents"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasRider reports whether a rider has been assigned.
func (d DeliveryRequest) HasRider() bool { return d.RiderID != nil && *d.RiderID != "" }

// AssignedTo reports whether the request is assigned to the given user.
func (d DeliveryRequest) AssignedTo(userID string) bool {
	return d.HasRider() && *d.RiderID == userID
}

// Clone returns a copy that shares no pointers with d.
func (d DeliveryRequest) Clone() DeliveryRequest {
	out := d
	if d.RiderID != nil {
		rider := *d.RiderID
		out.RiderID = &rider
	}
	return out
}
