package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parcel-marketplace/internal/delivery"
	"github.com/iliyamo/parcel-marketplace/internal/model"
)

var (
	sender = model.Identity{ID: "cust-1", Role: model.RoleCustomer}
	rider  = model.Identity{ID: "rider-1", Role: model.RoleDeliveryRider}
	admin  = model.Identity{ID: "admin-1", Role: model.RoleAdmin}

	created = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)

var columns = []string{"id", "sender_id", "rider_id", "pickup_location", "delivery_location", "item_description",
	"receiver_name", "receiver_phone", "notes", "price_cents", "status", "created_at", "updated_at"}

func deliveryRow(id string, riderID any, status model.Status) *sqlmock.Rows {
	return sqlmock.NewRows(columns).AddRow(id, sender.ID, riderID, "12 Elm St", "99 Oak Ave", "Box of books",
		"Bob", "555-0101", "", int64(1500), string(status), created, created)
}

func newRepo(t *testing.T) (*DeliveryRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := NewDeliveryRepo(db)
	repo.now = func() time.Time { return created.Add(time.Hour) }
	return repo, mock
}

var (
	lockQuery   = regexp.QuoteMeta("FROM delivery_requests WHERE id=? FOR UPDATE")
	updateQuery = regexp.QuoteMeta("UPDATE delivery_requests SET rider_id=?")
)

func updateArgs() []driver.Value {
	args := make([]driver.Value, 12)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func TestDeliveryRepoCreate(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO delivery_requests")).
		WithArgs(sqlmock.AnyArg(), sender.ID, nil, "12 Elm St", "99 Oak Ave", "Box of books",
			"", "", "", int64(900), "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d, err := repo.Create(context.Background(), sender, delivery.NewRequest{
		PickupLocation: " 12 Elm St ", DeliveryLocation: "99 Oak Ave", ItemDescription: "Box of books", PriceCents: 900,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, d.Status)
	assert.Len(t, d.ID, 26)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepoCreateRejectsRiders(t *testing.T) {
	repo, mock := newRepo(t)
	_, err := repo.Create(context.Background(), rider, delivery.NewRequest{
		PickupLocation: "a", DeliveryLocation: "b", ItemDescription: "c",
	})
	assert.ErrorIs(t, err, delivery.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepoAcceptGuardsUpdate(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("d-1").WillReturnRows(deliveryRow("d-1", nil, model.StatusPending))
	mock.ExpectExec(updateQuery + ".*" + regexp.QuoteMeta("WHERE id=? AND status=? AND rider_id IS NULL")).
		WithArgs(updateArgs()...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	d, err := repo.Accept(context.Background(), rider, "d-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, d.Status)
	require.NotNil(t, d.RiderID)
	assert.Equal(t, rider.ID, *d.RiderID)
	assert.Equal(t, created.Add(time.Hour), d.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepoAcceptLosesRace(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("d-1").WillReturnRows(deliveryRow("d-1", nil, model.StatusPending))
	mock.ExpectExec(updateQuery).WithArgs(updateArgs()...).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Accept(context.Background(), rider, "d-1")
	assert.ErrorIs(t, err, delivery.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepoRejectionDoesNotWrite(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("d-1").WillReturnRows(deliveryRow("d-1", "rider-1", model.StatusInTransit))
	mock.ExpectRollback()

	_, err := repo.Cancel(context.Background(), sender, "d-1")
	assert.ErrorIs(t, err, delivery.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepoUpdateStatusByAssignedRider(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("d-1").WillReturnRows(deliveryRow("d-1", "rider-1", model.StatusAccepted))
	mock.ExpectExec(updateQuery + ".*" + regexp.QuoteMeta("WHERE id=? AND status=?")).
		WithArgs(updateArgs()...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	d, err := repo.UpdateStatus(context.Background(), rider, "d-1", model.StatusInTransit)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInTransit, d.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepoUnassignedRiderForbidden(t *testing.T) {
	repo, mock := newRepo(t)
	other := model.Identity{ID: "rider-2", Role: model.RoleDeliveryRider}
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("d-1").WillReturnRows(deliveryRow("d-1", "rider-1", model.StatusAccepted))
	mock.ExpectRollback()

	_, err := repo.UpdateStatus(context.Background(), other, "d-1", model.StatusInTransit)
	assert.ErrorIs(t, err, delivery.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepoMutateMissing(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("nope").WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectRollback()

	_, err := repo.Accept(context.Background(), rider, "nope")
	assert.ErrorIs(t, err, delivery.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepoGetHidesOthersRecords(t *testing.T) {
	repo, mock := newRepo(t)
	stranger := model.Identity{ID: "cust-2", Role: model.RoleCustomer}
	mock.ExpectQuery(regexp.QuoteMeta("FROM delivery_requests WHERE id=?")).WithArgs("d-1").
		WillReturnRows(deliveryRow("d-1", nil, model.StatusPending))

	_, err := repo.Get(context.Background(), stranger, "d-1")
	assert.ErrorIs(t, err, delivery.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepoListScopes(t *testing.T) {
	tests := []struct {
		name   string
		actor  model.Identity
		filter delivery.ListFilter
		where  string
		args   []any
	}{
		{
			name:  "admin sees all",
			actor: admin,
			where: "FROM delivery_requests ORDER BY",
		},
		{
			name:   "rider sees pending and own",
			actor:  rider,
			filter: delivery.ListFilter{Status: model.StatusPending},
			where:  "WHERE (status=? OR rider_id=?) AND status=? ORDER BY",
			args:   []any{"pending", rider.ID, "pending"},
		},
		{
			name:   "customer sees own, searched",
			actor:  sender,
			filter: delivery.ListFilter{Query: "50%"},
			where:  "WHERE sender_id=? AND (LOWER(pickup_location) LIKE ?",
			args:   []any{sender.ID, `%50\%%`, `%50\%%`, `%50\%%`, `%50\%%`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepo(t)
			exp := mock.ExpectQuery(regexp.QuoteMeta(tt.where))
			if len(tt.args) > 0 {
				vals := make([]driver.Value, 0, len(tt.args))
				for _, a := range tt.args {
					vals = append(vals, eq{a})
				}
				exp = exp.WithArgs(vals...)
			}
			exp.WillReturnRows(deliveryRow("d-1", nil, model.StatusPending).
				AddRow("d-0", sender.ID, nil, "x", "y", "z", "", "", "", int64(0), "pending", created.Add(-time.Hour), created))

			out, err := repo.List(context.Background(), tt.actor, tt.filter)
			require.NoError(t, err)
			require.Len(t, out, 2)
			assert.Equal(t, "d-1", out[0].ID)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// eq matches a driver argument by equality.
type eq struct{ v any }

func (e eq) Match(v driver.Value) bool { return v == e.v }
