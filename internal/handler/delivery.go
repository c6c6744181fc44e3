package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/parcel-marketplace/internal/delivery"
	"github.com/iliyamo/parcel-marketplace/internal/middleware"
	"github.com/iliyamo/parcel-marketplace/internal/model"
	"github.com/iliyamo/parcel-marketplace/internal/obs"
	"github.com/iliyamo/parcel-marketplace/internal/queue"
)

// EventPublisher receives a status event after every successful mutation.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.DeliveryStatusChanged) error
}

// DeliveryHandler exposes the delivery registry over HTTP.  Every route runs
// behind JWTAuth; the acting identity comes from the context.
type DeliveryHandler struct {
	Svc    delivery.Service
	Events EventPublisher
	Log    *log.Logger
}

func NewDeliveryHandler(svc delivery.Service, ev EventPublisher, l *log.Logger) *DeliveryHandler {
	return &DeliveryHandler{Svc: svc, Events: ev, Log: l}
}

type statusReq struct {
	Status string `json:"status"`
}

// Create opens a new pending request for the calling customer.
func (h *DeliveryHandler) Create(c echo.Context) error {
	actor, _ := middleware.IdentityFrom(c)
	var in delivery.NewRequest
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	d, err := h.Svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return h.fail(c, "create", err)
	}
	h.done(actor, "create", "", d)
	return c.JSON(http.StatusCreated, d)
}

// List returns what the caller may see, newest first.  ?q= filters by text
// and ?status= by exact status.
func (h *DeliveryHandler) List(c echo.Context) error {
	actor, _ := middleware.IdentityFrom(c)
	f := delivery.ListFilter{Query: c.QueryParam("q")}
	if s := strings.TrimSpace(c.QueryParam("status")); s != "" {
		st, err := model.ParseStatus(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
		}
		f.Status = st
	}
	items, err := h.Svc.List(c.Request().Context(), actor, f)
	if err != nil {
		h.Log.Errorf("list deliveries for %s: %v", actor.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	if items == nil {
		items = []model.DeliveryRequest{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

func (h *DeliveryHandler) Get(c echo.Context) error {
	actor, _ := middleware.IdentityFrom(c)
	d, err := h.Svc.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		if errors.Is(err, delivery.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
		}
		h.Log.Errorf("get delivery %s: %v", c.Param("id"), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	return c.JSON(http.StatusOK, d)
}

// Accept assigns the calling rider to a pending request.
func (h *DeliveryHandler) Accept(c echo.Context) error {
	return h.transition(c, "accept", func(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error) {
		return h.Svc.Accept(ctx, actor, id)
	})
}

// UpdateStatus moves a request forward along its lifecycle.
func (h *DeliveryHandler) UpdateStatus(c echo.Context) error {
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	target, err := model.ParseStatus(req.Status)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}
	return h.transition(c, "update_status", func(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error) {
		return h.Svc.UpdateStatus(ctx, actor, id, target)
	})
}

func (h *DeliveryHandler) Cancel(c echo.Context) error {
	return h.transition(c, "cancel", func(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error) {
		return h.Svc.Cancel(ctx, actor, id)
	})
}

// UpdateDetails edits the free-form fields of a pending request.
func (h *DeliveryHandler) UpdateDetails(c echo.Context) error {
	var in delivery.DetailsUpdate
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	return h.transition(c, "update_details", func(ctx context.Context, actor model.Identity, id string) (model.DeliveryRequest, error) {
		return h.Svc.UpdateDetails(ctx, actor, id, in)
	})
}

// transition runs a mutation and publishes the status event.  The prior
// status is read first so the event can carry it; a concurrent change in
// between only affects the event, never the mutation.
func (h *DeliveryHandler) transition(c echo.Context, action string, fn func(context.Context, model.Identity, string) (model.DeliveryRequest, error)) error {
	actor, _ := middleware.IdentityFrom(c)
	ctx := c.Request().Context()
	id := c.Param("id")

	var from model.Status
	if prev, err := h.Svc.Get(ctx, actor, id); err == nil {
		from = prev.Status
	}
	d, err := fn(ctx, actor, id)
	if err != nil {
		return h.fail(c, action, err)
	}
	h.done(actor, action, from, d)
	return c.JSON(http.StatusOK, d)
}

func (h *DeliveryHandler) done(actor model.Identity, action string, from model.Status, d model.DeliveryRequest) {
	obs.DeliveryTransitions.WithLabelValues(action, "ok").Inc()
	if h.Events == nil || (from == d.Status && action != "create") {
		return
	}
	ev := queue.NewStatusChanged(action, from, d, actor)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.Events.Publish(ctx, ev); err != nil {
			h.Log.Warnf("publish %s event for %s: %v", action, ev.DeliveryID, err)
		}
	}()
}

// fail maps registry errors onto status codes.  Forbidden and invalid
// transitions share one generic message so callers learn nothing about
// records they may not touch.
func (h *DeliveryHandler) fail(c echo.Context, action string, err error) error {
	switch {
	case errors.Is(err, delivery.ErrForbidden):
		obs.DeliveryTransitions.WithLabelValues(action, "forbidden").Inc()
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not allowed"})
	case errors.Is(err, delivery.ErrInvalidTransition):
		obs.DeliveryTransitions.WithLabelValues(action, "invalid_transition").Inc()
		return c.JSON(http.StatusConflict, echo.Map{"error": "not allowed"})
	case errors.Is(err, delivery.ErrNotFound):
		obs.DeliveryTransitions.WithLabelValues(action, "not_found").Inc()
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, delivery.ErrInvalidInput):
		obs.DeliveryTransitions.WithLabelValues(action, "invalid_input").Inc()
		return c.JSON(http.StatusBadRequest, echo.Map{"error": strings.TrimPrefix(err.Error(), "delivery: invalid input: ")})
	default:
		obs.DeliveryTransitions.WithLabelValues(action, "error").Inc()
		h.Log.Errorf("%s delivery: %v", action, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": action + " failed"})
	}
}
