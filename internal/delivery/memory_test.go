package delivery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

var (
	sender    = model.Identity{ID: "u-sender", DisplayName: "Sam Sender", Role: model.RoleCustomer}
	otherCust = model.Identity{ID: "u-other", Role: model.RoleCustomer}
	riderR    = model.Identity{ID: "u-rider-1", Role: model.RoleDeliveryRider}
	riderR2   = model.Identity{ID: "u-rider-2", Role: model.RoleDeliveryRider}
	admin     = model.Identity{ID: "u-admin", Role: model.RoleAdmin}
	seller    = model.Identity{ID: "u-seller", Role: model.RoleSeller}
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newRegistry() *InMemory {
	clock := &stepClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewInMemory(WithClock(clock.Now))
}

func newPending(t *testing.T, s *InMemory) model.DeliveryRequest {
	t.Helper()
	d, err := s.Create(context.Background(), sender, NewRequest{
		PickupLocation:   "12 Market St",
		DeliveryLocation: "7 Harbour Rd",
		ItemDescription:  "Box of books",
		PriceCents:       1500,
	})
	require.NoError(t, err)
	return d
}

func TestCreateStartsPendingWithoutRider(t *testing.T) {
	s := newRegistry()
	d := newPending(t, s)

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, model.StatusPending, d.Status)
	assert.Nil(t, d.RiderID)
	assert.Equal(t, sender.ID, d.SenderID)
	assert.Equal(t, d.CreatedAt, d.UpdatedAt)
}

func TestCreateRejectsNonCustomersAndBadInput(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()
	in := NewRequest{PickupLocation: "a", DeliveryLocation: "b", ItemDescription: "c"}

	for _, actor := range []model.Identity{riderR, admin, seller} {
		_, err := s.Create(ctx, actor, in)
		assert.ErrorIs(t, err, ErrForbidden, "role %s", actor.Role)
	}

	_, err := s.Create(ctx, sender, NewRequest{PickupLocation: "a", DeliveryLocation: "b", ItemDescription: "c", PriceCents: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Create(ctx, sender, NewRequest{PickupLocation: " ", DeliveryLocation: "b", ItemDescription: "c"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAcceptAssignsRiderOnce(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()
	d := newPending(t, s)

	accepted, err := s.Accept(ctx, riderR, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.RiderID)
	assert.Equal(t, riderR.ID, *accepted.RiderID)
	assert.True(t, accepted.UpdatedAt.After(d.UpdatedAt))

	_, err = s.Accept(ctx, riderR2, d.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := s.Get(ctx, admin, d.ID)
	require.NoError(t, err)
	assert.Equal(t, riderR.ID, *got.RiderID)
	assert.Equal(t, accepted.UpdatedAt, got.UpdatedAt)
}

func TestAcceptRequiresRiderOrAdmin(t *testing.T) {
	s := newRegistry()
	d := newPending(t, s)

	_, err := s.Accept(context.Background(), sender, d.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	accepted, err := s.Accept(context.Background(), admin, d.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, *accepted.RiderID)
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	s := newRegistry()
	d := newPending(t, s)

	const riders = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for i := 0; i < riders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := model.Identity{ID: fmt.Sprintf("rider-%d", i), Role: model.RoleDeliveryRider}
			_, err := s.Accept(context.Background(), actor, d.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, actor.ID)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
			losers++
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, riders-1, losers)
	got, err := s.Get(context.Background(), admin, d.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], *got.RiderID)
}

func TestUpdateStatusByUnassignedRiderIsForbidden(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()
	d := newPending(t, s)
	_, err := s.Accept(ctx, riderR, d.ID)
	require.NoError(t, err)

	_, err = s.UpdateStatus(ctx, riderR2, d.ID, model.StatusDelivered)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := s.Get(ctx, admin, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
}

func TestUpdateStatusHappyPath(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()
	d := newPending(t, s)
	_, err := s.Accept(ctx, riderR, d.ID)
	require.NoError(t, err)

	moving, err := s.UpdateStatus(ctx, riderR, d.ID, model.StatusInTransit)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInTransit, moving.Status)

	done, err := s.UpdateStatus(ctx, admin, d.ID, model.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, done.Status)
	assert.True(t, done.UpdatedAt.After(moving.UpdatedAt))
}

func TestUpdateStatusRejectsBackwardsAndUnknownTargets(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()
	d := newPending(t, s)
	_, err := s.Accept(ctx, riderR, d.ID)
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, riderR, d.ID, model.StatusInTransit)
	require.NoError(t, err)

	for _, target := range []model.Status{model.StatusPending, model.StatusAccepted, model.StatusInTransit, "", "lost"} {
		_, err := s.UpdateStatus(ctx, riderR, d.ID, target)
		assert.ErrorIs(t, err, ErrInvalidTransition, "target %q", target)
	}
}

func TestAdminCannotAcceptViaGenericUpdate(t *testing.T) {
	s := newRegistry()
	d := newPending(t, s)

	_, err := s.UpdateStatus(context.Background(), admin, d.ID, model.StatusAccepted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	cancelled, err := s.UpdateStatus(context.Background(), admin, d.ID, model.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
}

func TestCancelOnlyFromPending(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()
	d := newPending(t, s)
	_, err := s.Accept(ctx, riderR, d.ID)
	require.NoError(t, err)

	_, err = s.Cancel(ctx, sender, d.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := s.Get(ctx, sender, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
}

func TestCancelRequiresOwnerOrAdmin(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()
	d := newPending(t, s)

	_, err := s.Cancel(ctx, otherCust, d.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.Cancel(ctx, riderR, d.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	cancelled, err := s.Cancel(ctx, sender, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	other := newPending(t, s)
	_, err = s.Cancel(ctx, admin, other.ID)
	require.NoError(t, err)
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()

	cancelled := newPending(t, s)
	_, err := s.Cancel(ctx, sender, cancelled.ID)
	require.NoError(t, err)

	delivered := newPending(t, s)
	_, err = s.Accept(ctx, riderR, delivered.ID)
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, riderR, delivered.ID, model.StatusDelivered)
	require.NoError(t, err)

	title := "changed"
	for _, d := range []model.DeliveryRequest{cancelled, delivered} {
		before, err := s.Get(ctx, admin, d.ID)
		require.NoError(t, err)

		_, err = s.Accept(ctx, riderR2, d.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = s.Cancel(ctx, admin, d.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = s.UpdateDetails(ctx, admin, d.ID, DetailsUpdate{ItemDescription: &title})
		assert.ErrorIs(t, err, ErrInvalidTransition)
		for _, target := range model.Statuses {
			_, err = s.UpdateStatus(ctx, admin, d.ID, target)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}

		after, err := s.Get(ctx, admin, d.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	}
}

func TestUpdateDetailsOnlyWhilePending(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()
	d := newPending(t, s)

	where := "99 New Pier"
	updated, err := s.UpdateDetails(ctx, sender, d.ID, DetailsUpdate{DeliveryLocation: &where})
	require.NoError(t, err)
	assert.Equal(t, where, updated.DeliveryLocation)
	assert.Equal(t, d.PickupLocation, updated.PickupLocation)

	_, err = s.UpdateDetails(ctx, otherCust, d.ID, DetailsUpdate{DeliveryLocation: &where})
	assert.ErrorIs(t, err, ErrForbidden)

	empty := " "
	_, err = s.UpdateDetails(ctx, sender, d.ID, DetailsUpdate{ItemDescription: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Accept(ctx, riderR, d.ID)
	require.NoError(t, err)
	_, err = s.UpdateDetails(ctx, sender, d.ID, DetailsUpdate{DeliveryLocation: &where})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListIsScopedByRole(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()

	mine := newPending(t, s)
	taken := newPending(t, s)
	_, err := s.Accept(ctx, riderR, taken.ID)
	require.NoError(t, err)
	theirs, err := s.Create(ctx, otherCust, NewRequest{PickupLocation: "x", DeliveryLocation: "y", ItemDescription: "Flowers"})
	require.NoError(t, err)
	_, err = s.Accept(ctx, riderR2, theirs.ID)
	require.NoError(t, err)

	ids := func(items []model.DeliveryRequest) []string {
		out := make([]string, 0, len(items))
		for _, d := range items {
			out = append(out, d.ID)
		}
		return out
	}

	all, err := s.List(ctx, admin, ListFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{mine.ID, taken.ID, theirs.ID}, ids(all))

	forRider, err := s.List(ctx, riderR, ListFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{mine.ID, taken.ID}, ids(forRider))

	forSender, err := s.List(ctx, sender, ListFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{mine.ID, taken.ID}, ids(forSender))

	forSeller, err := s.List(ctx, seller, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, forSeller)

	// text filter runs inside the role scope: riderR cannot see the flowers
	flowers, err := s.List(ctx, riderR, ListFilter{Query: "FLOWERS"})
	require.NoError(t, err)
	assert.Empty(t, flowers)

	flowers, err = s.List(ctx, admin, ListFilter{Query: "flowers"})
	require.NoError(t, err)
	assert.Equal(t, []string{theirs.ID}, ids(flowers))

	pending, err := s.List(ctx, sender, ListFilter{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, ids(pending))
}

func TestGetHidesRecordsOutsideScope(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()
	d := newPending(t, s)

	_, err := s.Get(ctx, otherCust, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, riderR2, d.ID)
	require.NoError(t, err, "pending work is visible to every rider")

	_, err = s.Accept(ctx, riderR, d.ID)
	require.NoError(t, err)
	_, err = s.Get(ctx, riderR2, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, admin, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := newRegistry()
	ctx := context.Background()
	d := newPending(t, s)
	accepted, err := s.Accept(ctx, riderR, d.ID)
	require.NoError(t, err)

	*accepted.RiderID = "someone-else"
	got, err := s.Get(ctx, admin, d.ID)
	require.NoError(t, err)
	assert.Equal(t, riderR.ID, *got.RiderID)
}
