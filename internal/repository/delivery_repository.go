package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/parcel-marketplace/internal/delivery"
	"github.com/iliyamo/parcel-marketplace/internal/ids"
	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// DeliveryRepo implements delivery.Service on the 'delivery_requests'
// table.  Each mutation locks the row with SELECT ... FOR UPDATE, re-checks
// the transition policy on the locked copy and guards the UPDATE with the
// status (and rider) it read, so two concurrent accepts cannot both win.
type DeliveryRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewDeliveryRepo(db *sql.DB) *DeliveryRepo {
	return &DeliveryRepo{DB: db, now: time.Now}
}

var _ delivery.Service = (*DeliveryRepo)(nil)

const deliveryColumns = "id,sender_id,rider_id,pickup_location,delivery_location,item_description," +
	"receiver_name,receiver_phone,notes,price_cents,status,created_at,updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(s rowScanner) (model.DeliveryRequest, error) {
	var (
		d      model.DeliveryRequest
		rider  sql.NullString
		status string
	)
	err := s.Scan(&d.ID, &d.SenderID, &rider, &d.PickupLocation, &d.DeliveryLocation, &d.ItemDescription,
		&d.ReceiverName, &d.ReceiverPhone, &d.Notes, &d.PriceCents, &status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return model.DeliveryRequest{}, err
	}
	if rider.Valid {
		r := rider.String
		d.RiderID = &r
	}
	d.Status = model.Status(status)
	return d, nil
}

func (r *DeliveryRepo) Create(ctx context.Context, actor model.Identity, in delivery.NewRequest) (model.DeliveryRequest, error) {
	if err := delivery.CheckCreate(actor, in); err != nil {
		return model.DeliveryRequest{}, err
	}
	now := r.now().UTC().Truncate(time.Microsecond)
	d := model.DeliveryRequest{
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
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO delivery_requests ("+deliveryColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)",
		d.ID, d.SenderID, nil, d.PickupLocation, d.DeliveryLocation, d.ItemDescription,
		d.ReceiverName, d.ReceiverPhone, d.Notes, d.PriceCents, string(d.Status), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return model.DeliveryRequest{}, fmt.Errorf("insert delivery request: %w", err)
	}
	return d, nil
}

func (r *DeliveryRepo) Get(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+deliveryColumns+" FROM delivery_requests WHERE id=?", id)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DeliveryRequest{}, delivery.ErrNotFound
	}
	if err != nil {
		return model.DeliveryRequest{}, err
	}
	if !delivery.Visible(actor, d) {
		return model.DeliveryRequest{}, delivery.ErrNotFound
	}
	return d, nil
}

// List pushes the role scope and both filters into the WHERE clause.  The
// scope predicate mirrors delivery.Visible.
func (r *DeliveryRepo) List(ctx context.Context, actor model.Identity, f delivery.ListFilter) ([]model.DeliveryRequest, error) {
	var (
		where []string
		args  []any
	)
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleDeliveryRider:
		where = append(where, "(status=? OR rider_id=?)")
		args = append(args, string(model.StatusPending), actor.ID)
	default:
		where = append(where, "sender_id=?")
		args = append(args, actor.ID)
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(f.Status))
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		like := "%" + escapeLike(q) + "%"
		where = append(where, "(LOWER(pickup_location) LIKE ? OR LOWER(delivery_location) LIKE ? OR LOWER(item_description) LIKE ? OR LOWER(receiver_name) LIKE ?)")
		args = append(args, like, like, like, like)
	}

	query := "SELECT " + deliveryColumns + " FROM delivery_requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list delivery requests: %w", err)
	}
	defer rows.Close()

	out := make([]model.DeliveryRequest, 0)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *DeliveryRepo) Accept(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error) {
	return r.mutate(ctx, id, func(d *model.DeliveryRequest) error {
		if err := delivery.CheckAccept(actor, *d); err != nil {
			return err
		}
		rider := actor.ID
		d.RiderID = &rider
		d.Status = model.StatusAccepted
		return nil
	})
}

func (r *DeliveryRepo) UpdateStatus(ctx context.Context, actor model.Identity, id string, target model.Status) (model.DeliveryRequest, error) {
	return r.mutate(ctx, id, func(d *model.DeliveryRequest) error {
		if err := delivery.CheckUpdateStatus(actor, *d, target); err != nil {
			return err
		}
		d.Status = target
		return nil
	})
}

func (r *DeliveryRepo) Cancel(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error) {
	return r.mutate(ctx, id, func(d *model.DeliveryRequest) error {
		if err := delivery.CheckCancel(actor, *d); err != nil {
			return err
		}
		d.Status = model.StatusCancelled
		return nil
	})
}

func (r *DeliveryRepo) UpdateDetails(ctx context.Context, actor model.Identity, id string, in delivery.DetailsUpdate) (model.DeliveryRequest, error) {
	return r.mutate(ctx, id, func(d *model.DeliveryRequest) error {
		if err := delivery.CheckUpdateDetails(actor, *d, in); err != nil {
			return err
		}
		in.Apply(d)
		return nil
	})
}

// mutate locks the row, lets fn change a copy and writes the copy back.  A
// policy rejection rolls back without touching the row.
func (r *DeliveryRepo) mutate(ctx context.Context, id string, fn func(d *model.DeliveryRequest) error) (model.DeliveryRequest, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.DeliveryRequest{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, "SELECT "+deliveryColumns+" FROM delivery_requests WHERE id=? FOR UPDATE", id)
	cur, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DeliveryRequest{}, delivery.ErrNotFound
	}
	if err != nil {
		return model.DeliveryRequest{}, err
	}

	next := cur.Clone()
	if err := fn(&next); err != nil {
		return model.DeliveryRequest{}, err
	}
	next.UpdatedAt = r.now().UTC().Truncate(time.Microsecond)

	var rider any
	if next.RiderID != nil {
		rider = *next.RiderID
	}
	query := "UPDATE delivery_requests SET rider_id=?, pickup_location=?, delivery_location=?, item_description=?, " +
		"receiver_name=?, receiver_phone=?, notes=?, price_cents=?, status=?, updated_at=? WHERE id=? AND status=?"
	args := []any{rider, next.PickupLocation, next.DeliveryLocation, next.ItemDescription,
		next.ReceiverName, next.ReceiverPhone, next.Notes, next.PriceCents, string(next.Status), next.UpdatedAt,
		cur.ID, string(cur.Status)}
	if cur.RiderID == nil {
		query += " AND rider_id IS NULL"
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return model.DeliveryRequest{}, fmt.Errorf("update delivery request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return model.DeliveryRequest{}, delivery.ErrInvalidTransition
	}
	if err := tx.Commit(); err != nil {
		return model.DeliveryRequest{}, err
	}
	return next, nil
}
