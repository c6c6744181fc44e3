// Package delivery owns the delivery-request state machine.  Every
// mutation is gated by the acting identity's role and the record's current
// status; the policy lives in policy.go so the in-memory registry and the
// MySQL repository enforce exactly the same rules.
//
//	pending -> accepted -> in_transit -> delivered
//	pending -> cancelled
//
// delivered and cancelled are terminal.
package delivery

import (
	"context"
	"sort"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// Service defines delivery registry operations.  The actor is always the
// identity supplied by the session layer and is treated as read-only.
type Service interface {
	Create(ctx context.Context, actor model.Identity, in NewRequest) (model.DeliveryRequest, error)
	Get(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error)
	List(ctx context.Context, actor model.Identity, f ListFilter) ([]model.DeliveryRequest, error)
	Accept(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error)
	UpdateStatus(ctx context.Context, actor model.Identity, id string, target model.Status) (model.DeliveryRequest, error)
	Cancel(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error)
	UpdateDetails(ctx context.Context, actor model.Identity, id string, in DetailsUpdate) (model.DeliveryRequest, error)
}

// NewRequest is the payload a customer submits to open a request.
type NewRequest struct {
	PickupLocation   string `json:"pickup_location"`
	DeliveryLocation string `json:"delivery_location"`
	ItemDescription  string `json:"item_description"`
	ReceiverName     string `json:"receiver_name"`
	ReceiverPhone    string `json:"receiver_phone"`
	Notes            string `json:"notes"`
	PriceCents       int64  `json:"price_cents"`
}

// DetailsUpdate carries optional edits to the free-form fields.  Nil
// fields are left untouched.
type DetailsUpdate struct {
	PickupLocation   *string `json:"pickup_location"`
	DeliveryLocation *string `json:"delivery_location"`
	ItemDescription  *string `json:"item_description"`
	ReceiverName     *string `json:"receiver_name"`
	ReceiverPhone    *string `json:"receiver_phone"`
	Notes            *string `json:"notes"`
}

// ListFilter narrows a role-scoped listing.  Query is a case-insensitive
// substring match over the locations, description and receiver name;
// Status, when set, must match exactly.
type ListFilter struct {
	Query  string
	Status model.Status
}

// SortNewestFirst orders requests by creation time, newest first, with the
// id as a tie breaker so listings are stable.
func SortNewestFirst(items []model.DeliveryRequest) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
