package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parcel-marketplace/internal/config"
	"github.com/iliyamo/parcel-marketplace/internal/delivery"
	"github.com/iliyamo/parcel-marketplace/internal/handler"
	"github.com/iliyamo/parcel-marketplace/internal/model"
	"github.com/iliyamo/parcel-marketplace/internal/repository"
	"github.com/iliyamo/parcel-marketplace/internal/router"
	"github.com/iliyamo/parcel-marketplace/internal/service"
	"github.com/iliyamo/parcel-marketplace/internal/session"
)

func newMarketplace(t *testing.T) string {
	t.Helper()
	cfg := config.Config{JWTSecret: "cli-secret", CredentialTTL: 24 * time.Hour, BcryptCost: 4}
	lg := log.New("test")
	lg.SetOutput(new(bytes.Buffer))
	creds := repository.NewMemoryCredentials()

	e := echo.New()
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewMemoryUsers(), creds, lg), cfg.JWTSecret, creds)
	router.RegisterDeliveries(e, handler.NewDeliveryHandler(delivery.NewInMemory(), service.Discard{}, lg), cfg.JWTSecret, creds)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRequireWithoutSession(t *testing.T) {
	p := &Provider{ServerURL: "http://127.0.0.1:1", SessionDir: t.TempDir(), Timeout: time.Second}
	_, err := p.Require(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestUnknownStore(t *testing.T) {
	p := &Provider{StoreKind: "floppy"}
	_, err := p.Open()
	assert.ErrorContains(t, err, "unknown session store")
}

func TestSessionSurvivesAcrossRuns(t *testing.T) {
	ctx := context.Background()
	p := &Provider{ServerURL: newMarketplace(t), SessionDir: t.TempDir(), Timeout: 5 * time.Second}

	s, err := p.Open()
	require.NoError(t, err)
	_, err = s.Register(ctx, session.RegisterRequest{
		Email: "cora@example.com", Password: "pw", FirstName: "Cora", Role: model.RoleCustomer,
	})
	require.NoError(t, err)
	s.Close()

	// A later invocation restores the stored session from disk.
	s, err = p.Require(ctx, model.RoleCustomer)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "Cora", s.State().Identity.DisplayName)

	api := p.Deliveries(s)
	d, err := api.Create(ctx, delivery.NewRequest{PickupLocation: "Depot", DeliveryLocation: "Home", ItemDescription: "Tea"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, d.Status)

	items, err := api.List(ctx, delivery.ListFilter{Status: model.StatusPending})
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = api.Accept(ctx, d.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)

	_, err = p.Require(ctx, model.RoleDeliveryRider)
	assert.ErrorContains(t, err, "your home is /")

	d, err = api.Cancel(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, d.Status)
}

func TestRequireAfterServerRevokesSession(t *testing.T) {
	ctx := context.Background()
	p := &Provider{ServerURL: newMarketplace(t), SessionDir: t.TempDir(), Timeout: 5 * time.Second}

	s, err := p.Open()
	require.NoError(t, err)
	_, err = s.Register(ctx, session.RegisterRequest{Email: "rob@example.com", Password: "pw", FirstName: "Rob", Role: model.RoleDeliveryRider})
	require.NoError(t, err)
	cred := s.State().Credential
	s.Close()

	// Revoke out of band, as another device signing out everywhere would.
	req, err := http.NewRequest(http.MethodPost, p.ServerURL+"/auth/logout?all=true", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+cred)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	_, err = p.Require(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	stored, err := session.NewFileStore(p.SessionDir)
	require.NoError(t, err)
	persisted, err := stored.Load(ctx)
	require.NoError(t, err)
	assert.False(t, persisted.Complete(), "failed restore clears the stored session")
}
