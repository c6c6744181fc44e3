package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/parcel-marketplace/internal/config"
	"github.com/iliyamo/parcel-marketplace/internal/middleware"
	"github.com/iliyamo/parcel-marketplace/internal/model"
	"github.com/iliyamo/parcel-marketplace/internal/repository"
	"github.com/iliyamo/parcel-marketplace/internal/utils"
)

// Users is the account store the authority needs.  repository.UserRepo and
// repository.MemoryUsers both satisfy it.
type Users interface {
	Create(ctx context.Context, in repository.NewUser, cost int) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
}

// Credentials tracks issued bearer tokens by hash.
type Credentials interface {
	Store(ctx context.Context, userID, tokenHash string, exp time.Time) error
	Validate(ctx context.Context, tokenHash string) (string, error)
	Renewable(ctx context.Context, tokenHash string, grace time.Duration) (string, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// AuthHandler serves the remote authority contract: login, register,
// refresh, logout and profile.  Errors are reported as {"message": ...}
// because that is what the session client shows the user.
type AuthHandler struct {
	Cfg   config.Config
	Users Users
	Creds Credentials
	Log   *log.Logger
}

func NewAuthHandler(cfg config.Config, u Users, c Credentials, l *log.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Creds: c, Log: l}
}

type registerReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// identityResp is the flat shape every authority endpoint answers with.
type identityResp struct {
	Token       string     `json:"token,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	Role        model.Role `json:"role"`
}

func respond(u model.User, cred *utils.Credential) identityResp {
	out := identityResp{
		ID:          u.ID,
		DisplayName: model.DisplayNameOf(u.FirstName, u.LastName),
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		Role:        u.Role,
	}
	if cred != nil {
		exp := cred.Exp
		out.Token = cred.Token
		out.ExpiresAt = &exp
	}
	return out
}

func message(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"message": msg})
}

// Register creates the account and signs the caller in.  Admin accounts
// cannot be self-registered.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	if req.Email == "" || req.Password == "" || req.FirstName == "" {
		return message(c, http.StatusBadRequest, "Email, password and first name are required")
	}
	role := model.RoleCustomer
	if strings.TrimSpace(req.Role) != "" {
		r, err := model.ParseRole(req.Role)
		if err != nil {
			return message(c, http.StatusBadRequest, "Unknown role")
		}
		role = r
	}
	if role == model.RoleAdmin {
		return message(c, http.StatusForbidden, "Admin accounts cannot be self-registered")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.Create(ctx, repository.NewUser{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  strings.TrimSpace(req.LastName),
		Role:      role,
	}, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return message(c, http.StatusConflict, "Email already registered")
		}
		h.Log.Errorf("register %s: %v", req.Email, err)
		return message(c, http.StatusInternalServerError, "Registration failed")
	}
	cred, err := h.issue(ctx, u)
	if err != nil {
		h.Log.Errorf("issue credential for %s: %v", u.ID, err)
		return message(c, http.StatusInternalServerError, "Registration failed")
	}
	return c.JSON(http.StatusCreated, respond(u, &cred))
}

// Login verifies the password and issues a credential.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return message(c, http.StatusBadRequest, "Email and password are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return message(c, http.StatusUnauthorized, "Invalid email or password")
		}
		h.Log.Errorf("login lookup: %v", err)
		return message(c, http.StatusInternalServerError, "Login failed")
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return message(c, http.StatusUnauthorized, "Invalid email or password")
	}
	cred, err := h.issue(ctx, u)
	if err != nil {
		h.Log.Errorf("issue credential for %s: %v", u.ID, err)
		return message(c, http.StatusInternalServerError, "Login failed")
	}
	return c.JSON(http.StatusOK, respond(u, &cred))
}

// Refresh revokes the presented credential and issues a replacement.  It
// runs behind RefreshAuth, so the credential is unrevoked and at most
// RefreshGrace past its expiry.
func (h *AuthHandler) Refresh(c echo.Context) error {
	id, _ := middleware.IdentityFrom(c)
	raw := middleware.CredentialFrom(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id.ID)
	if err != nil || !u.IsActive {
		return message(c, http.StatusUnauthorized, "Session expired")
	}
	if err := h.Creds.Revoke(ctx, utils.HashCredential(raw)); err != nil {
		h.Log.Errorf("revoke on refresh for %s: %v", u.ID, err)
		return message(c, http.StatusInternalServerError, "Refresh failed")
	}
	cred, err := h.issue(ctx, u)
	if err != nil {
		h.Log.Errorf("issue credential for %s: %v", u.ID, err)
		return message(c, http.StatusInternalServerError, "Refresh failed")
	}
	return c.JSON(http.StatusOK, respond(u, &cred))
}

// Logout revokes the presented credential, or every credential of the user
// when ?all=true.
func (h *AuthHandler) Logout(c echo.Context) error {
	id, _ := middleware.IdentityFrom(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	var err error
	if c.QueryParam("all") == "true" {
		err = h.Creds.RevokeAllForUser(ctx, id.ID)
	} else {
		err = h.Creds.Revoke(ctx, utils.HashCredential(middleware.CredentialFrom(c)))
	}
	if err != nil {
		h.Log.Errorf("logout %s: %v", id.ID, err)
		return message(c, http.StatusInternalServerError, "Logout failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// Profile returns the current account behind the bearer credential.
func (h *AuthHandler) Profile(c echo.Context) error {
	id, _ := middleware.IdentityFrom(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return message(c, http.StatusUnauthorized, "Session expired")
		}
		h.Log.Errorf("profile %s: %v", id.ID, err)
		return message(c, http.StatusInternalServerError, "Profile unavailable")
	}
	if !u.IsActive {
		return message(c, http.StatusUnauthorized, "Session expired")
	}
	return c.JSON(http.StatusOK, respond(u, nil))
}

func (h *AuthHandler) issue(ctx context.Context, u model.User) (utils.Credential, error) {
	cred, err := utils.NewCredential(h.Cfg.JWTSecret, u.Identity(), h.Cfg.CredentialTTL)
	if err != nil {
		return utils.Credential{}, err
	}
	if err := h.Creds.Store(ctx, u.ID, utils.HashCredential(cred.Token), cred.Exp); err != nil {
		return utils.Credential{}, err
	}
	return cred, nil
}
