package delivery

import (
	"fmt"
	"strings"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// progress orders the happy path.  Generic status updates may only move a
// record forward along it; cancellation is handled separately.
var progress = map[model.Status]int{
	model.StatusPending:   0,
	model.StatusAccepted:  1,
	model.StatusInTransit: 2,
	model.StatusDelivered: 3,
}

// Visible reports whether actor may read d.  Admins see everything, riders
// see open work plus whatever is assigned to them, everyone else sees only
// what they sent.
func Visible(actor model.Identity, d model.DeliveryRequest) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleDeliveryRider:
		return d.Status == model.StatusPending || d.AssignedTo(actor.ID)
	default:
		return d.SenderID == actor.ID
	}
}

// CheckCreate validates that actor may open a new request with the given input.
func CheckCreate(actor model.Identity, in NewRequest) error {
	if actor.ID == "" || actor.Role != model.RoleCustomer {
		return ErrForbidden
	}
	return in.validate()
}

// CheckAccept validates an accept by actor.  Only riders (and admins, who
// may do anything a rider can) accept, and only a pending request with no
// rider yet.
func CheckAccept(actor model.Identity, d model.DeliveryRequest) error {
	if actor.ID == "" || (actor.Role != model.RoleDeliveryRider && actor.Role != model.RoleAdmin) {
		return ErrForbidden
	}
	if d.Status != model.StatusPending || d.HasRider() {
		return fmt.Errorf("%w: cannot accept a %s request", ErrInvalidTransition, d.Status)
	}
	return nil
}

// CheckUpdateStatus validates a generic status change to target.  The
// assigned rider or an admin may move a non-terminal request forward along
// the happy path; admins may also cancel a pending one.  Accepting must go
// through CheckAccept so a rider is always recorded.
func CheckUpdateStatus(actor model.Identity, d model.DeliveryRequest, target model.Status) error {
	isAdmin := actor.Role == model.RoleAdmin
	isRider := actor.Role == model.RoleDeliveryRider && d.AssignedTo(actor.ID)
	if actor.ID == "" || (!isAdmin && !isRider) {
		return ErrForbidden
	}
	if d.Status.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, d.Status)
	}
	if !target.Valid() {
		return fmt.Errorf("%w: unknown target status %q", ErrInvalidTransition, target)
	}
	if target == model.StatusCancelled {
		return CheckCancel(actor, d)
	}
	if target == model.StatusAccepted {
		return fmt.Errorf("%w: use accept to assign a rider", ErrInvalidTransition)
	}
	if progress[target] <= progress[d.Status] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, target)
	}
	return nil
}

// CheckCancel validates a cancel.  Only the sender or an admin may cancel,
// and only while the request is still pending.
func CheckCancel(actor model.Identity, d model.DeliveryRequest) error {
	if actor.ID == "" || (actor.Role != model.RoleAdmin && d.SenderID != actor.ID) {
		return ErrForbidden
	}
	if d.Status != model.StatusPending {
		return fmt.Errorf("%w: cannot cancel a %s request", ErrInvalidTransition, d.Status)
	}
	return nil
}

// CheckUpdateDetails validates an edit of the free-form fields.  Same
// actors as cancel; the record must be pending.
func CheckUpdateDetails(actor model.Identity, d model.DeliveryRequest, in DetailsUpdate) error {
	if actor.ID == "" || (actor.Role != model.RoleAdmin && d.SenderID != actor.ID) {
		return ErrForbidden
	}
	if d.Status != model.StatusPending {
		return fmt.Errorf("%w: details are frozen once %s", ErrInvalidTransition, d.Status)
	}
	return in.validate()
}

// Matches applies the search and status filters.  It is meant to run after
// Visible has already narrowed the set.
func (f ListFilter) Matches(d model.DeliveryRequest) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	for _, field := range []string{d.PickupLocation, d.DeliveryLocation, d.ItemDescription, d.ReceiverName} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func (in NewRequest) validate() error {
	if strings.TrimSpace(in.PickupLocation) == "" {
		return fmt.Errorf("%w: pickup_location is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.DeliveryLocation) == "" {
		return fmt.Errorf("%w: delivery_location is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.ItemDescription) == "" {
		return fmt.Errorf("%w: item_description is required", ErrInvalidInput)
	}
	if in.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	return nil
}

func (in DetailsUpdate) validate() error {
	for name, v := range map[string]*string{
		"pickup_location":   in.PickupLocation,
		"delivery_location": in.DeliveryLocation,
		"item_description":  in.ItemDescription,
	} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidInput, name)
		}
	}
	return nil
}

// Apply copies the non-nil fields of in onto d.
func (in DetailsUpdate) Apply(d *model.DeliveryRequest) {
	if in.PickupLocation != nil {
		d.PickupLocation = strings.TrimSpace(*in.PickupLocation)
	}
	if in.DeliveryLocation != nil {
		d.DeliveryLocation = strings.TrimSpace(*in.DeliveryLocation)
	}
	if in.ItemDescription != nil {
		d.ItemDescription = strings.TrimSpace(*in.ItemDescription)
	}
	if in.ReceiverName != nil {
		d.ReceiverName = strings.TrimSpace(*in.ReceiverName)
	}
	if in.ReceiverPhone != nil {
		d.ReceiverPhone = strings.TrimSpace(*in.ReceiverPhone)
	}
	if in.Notes != nil {
		d.Notes = strings.TrimSpace(*in.Notes)
	}
}
