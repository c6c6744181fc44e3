package delivery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/parcel-marketplace/internal/ids"
	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// InMemory implements Service with in-process concurrency safety.  Every
// mutation re-checks its precondition while holding the write lock, so when
// two riders race to accept the same request exactly one of them wins.
type InMemory struct {
	mu    sync.RWMutex
	items map[string]*model.DeliveryRequest
	now   func() time.Time
}

// Option configures an InMemory registry.
type Option func(*InMemory)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *InMemory) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewInMemory creates an empty registry.
func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		items: make(map[string]*model.DeliveryRequest),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Service = (*InMemory)(nil)

func (s *InMemory) Create(ctx context.Context, actor model.Identity, in NewRequest) (model.DeliveryRequest, error) {
	if err := CheckCreate(actor, in); err != nil {
		return model.DeliveryRequest{}, err
	}
	now := s.now().UTC()
	d := &model.DeliveryRequest{
		ID:               ids.NewAt(now),
		SenderID:         actor.ID,
		PickupLocation:   strings.TrimSpace(in.PickupLocation),
		DeliveryLocation: strings.TrimSpace(in.DeliveryLocation),
		ItemDescription:  strings.TrimSpace(in.ItemDescription),
		ReceiverName:     strings.TrimSpace(in.ReceiverName),
		ReceiverPhone:    strings.TrimSpace(in.ReceiverPhone),
		Notes:            strings.TrimSpace(in.Notes),
		PriceCents:       in.PriceCents,
		Status:           model.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[d.ID] = d
	return d.Clone(), nil
}

func (s *InMemory) Get(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.items[id]
	if !ok || !Visible(actor, *d) {
		return model.DeliveryRequest{}, ErrNotFound
	}
	return d.Clone(), nil
}

func (s *InMemory) List(ctx context.Context, actor model.Identity, f ListFilter) ([]model.DeliveryRequest, error) {
	s.mu.RLock()
	out := make([]model.DeliveryRequest, 0, len(s.items))
	for _, d := range s.items {
		// role scope first, then the text/status filters
		if !Visible(actor, *d) || !f.Matches(*d) {
			continue
		}
		out = append(out, d.Clone())
	}
	s.mu.RUnlock()
	SortNewestFirst(out)
	return out, nil
}

func (s *InMemory) Accept(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error) {
	return s.mutate(id, func(d *model.DeliveryRequest) error {
		if err := CheckAccept(actor, *d); err != nil {
			return err
		}
		rider := actor.ID
		d.RiderID = &rider
		d.Status = model.StatusAccepted
		return nil
	})
}

func (s *InMemory) UpdateStatus(ctx context.Context, actor model.Identity, id string, target model.Status) (model.DeliveryRequest, error) {
	return s.mutate(id, func(d *model.DeliveryRequest) error {
		if err := CheckUpdateStatus(actor, *d, target); err != nil {
			return err
		}
		d.Status = target
		return nil
	})
}

func (s *InMemory) Cancel(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error) {
	return s.mutate(id, func(d *model.DeliveryRequest) error {
		if err := CheckCancel(actor, *d); err != nil {
			return err
		}
		d.Status = model.StatusCancelled
		return nil
	})
}

func (s *InMemory) UpdateDetails(ctx context.Context, actor model.Identity, id string, in DetailsUpdate) (model.DeliveryRequest, error) {
	return s.mutate(id, func(d *model.DeliveryRequest) error {
		if err := CheckUpdateDetails(actor, *d, in); err != nil {
			return err
		}
		in.Apply(d)
		return nil
	})
}

// mutate runs fn against a scratch copy under the write lock and only
// stores the copy when fn succeeds, so a rejected call leaves the record
// exactly as it was.
func (s *InMemory) mutate(id string, fn func(d *model.DeliveryRequest) error) (model.DeliveryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[id]
	if !ok {
		return model.DeliveryRequest{}, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return model.DeliveryRequest{}, err
	}
	next.UpdatedAt = s.now().UTC()
	s.items[id] = &next
	return next.Clone(), nil
}
