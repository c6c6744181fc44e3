package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// DefaultTimeout bounds every call to the authority.
const DefaultTimeout = 30 * time.Second

// Grant is a successful login or registration: a fresh credential and the
// identity it was issued for.
type Grant struct {
	Credential string
	Identity   model.Identity
}

// RegisterRequest carries the registration form.  LastName may be empty and
// Role defaults to customer on the authority side.
type RegisterRequest struct {
	Email     string     `json:"email"`
	Password  string     `json:"password"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Role      model.Role `json:"role,omitempty"`
}

// Authority is the remote identity service the manager talks to.
type Authority interface {
	Login(ctx context.Context, email, password string) (Grant, error)
	Register(ctx context.Context, req RegisterRequest) (Grant, error)
	Refresh(ctx context.Context, credential string) (string, error)
	Logout(ctx context.Context, credential string) error
	Profile(ctx context.Context, credential string) (model.Identity, error)
}

// HTTPAuthority implements Authority over the /auth and /user endpoints.
type HTTPAuthority struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

var _ Authority = (*HTTPAuthority)(nil)

// AuthorityOption configures an HTTPAuthority.
type AuthorityOption func(*HTTPAuthority)

// WithHTTPClient sets the base client; bearer calls wrap its transport.
func WithHTTPClient(c *http.Client) AuthorityOption {
	return func(a *HTTPAuthority) {
		if c != nil {
			a.client = c
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) AuthorityOption {
	return func(a *HTTPAuthority) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func NewHTTPAuthority(baseURL string, opts ...AuthorityOption) *HTTPAuthority {
	a := &HTTPAuthority{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// identityPayload is the flat identity shape returned by every endpoint.
type identityPayload struct {
	Token       string `json:"token,omitempty"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`

	message string
}

func (p identityPayload) identity() (model.Identity, bool) {
	role, err := model.ParseRole(p.Role)
	if err != nil || p.ID == "" {
		return model.Identity{}, false
	}
	name := p.DisplayName
	if name == "" {
		name = model.DisplayNameOf(p.FirstName, p.LastName)
	}
	return model.Identity{ID: p.ID, DisplayName: name, Email: p.Email, Role: role}, true
}

func (p identityPayload) errMessage(fallback string) string {
	if p.message != "" {
		return p.message
	}
	return fallback
}

type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (a *HTTPAuthority) Login(ctx context.Context, email, password string) (Grant, error) {
	body := map[string]string{"email": email, "password": password}
	return a.grant(ctx, "login", "/auth/login", body, defaultLoginMessage)
}

func (a *HTTPAuthority) Register(ctx context.Context, req RegisterRequest) (Grant, error) {
	return a.grant(ctx, "register", "/auth/register", req, defaultRegisterMessage)
}

func (a *HTTPAuthority) grant(ctx context.Context, op, path string, in any, fallback string) (Grant, error) {
	var out identityPayload
	status, err := a.do(ctx, op, a.client, http.MethodPost, path, in, &out)
	if err != nil {
		return Grant{}, err
	}
	if status < 200 || status >= 300 {
		return Grant{}, &AuthenticationError{Status: status, Message: out.errMessage(fallback)}
	}
	id, ok := out.identity()
	if !ok || out.Token == "" {
		return Grant{}, &AuthenticationError{Status: status, Message: fallback}
	}
	return Grant{Credential: out.Token, Identity: id}, nil
}

// Refresh exchanges credential for a new one.
func (a *HTTPAuthority) Refresh(ctx context.Context, credential string) (string, error) {
	var out identityPayload
	status, err := a.do(ctx, "refresh", a.bearer(credential), http.MethodPost, "/auth/refresh", nil, &out)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("refresh rejected: status %d", status)
	}
	if out.Token == "" {
		return "", errors.New("refresh response missing token")
	}
	return out.Token, nil
}

// Logout tells the authority to revoke credential.  The response body is
// ignored.
func (a *HTTPAuthority) Logout(ctx context.Context, credential string) error {
	status, err := a.do(ctx, "logout", a.bearer(credential), http.MethodPost, "/auth/logout", nil, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("logout rejected: status %d", status)
	}
	return nil
}

// Profile validates credential and returns the identity it belongs to.
func (a *HTTPAuthority) Profile(ctx context.Context, credential string) (model.Identity, error) {
	var out identityPayload
	status, err := a.do(ctx, "profile", a.bearer(credential), http.MethodGet, "/user/profile", nil, &out)
	if err != nil {
		return model.Identity{}, err
	}
	if status < 200 || status >= 300 {
		return model.Identity{}, fmt.Errorf("profile rejected: status %d", status)
	}
	id, ok := out.identity()
	if !ok {
		return model.Identity{}, errors.New("profile response malformed")
	}
	return id, nil
}

// bearer wraps the base client's transport with a static bearer token.
func (a *HTTPAuthority) bearer(credential string) *http.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, a.client)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential, TokenType: "Bearer"})
	return oauth2.NewClient(ctx, src)
}

// do sends one JSON request.  Transport failures (including the timeout)
// come back as *NetworkError; any HTTP status is returned to the caller,
// with out decoded on 2xx and the error payload kept for the rest.
func (a *HTTPAuthority) do(ctx context.Context, op string, client *http.Client, method, path string, in, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	endpoint, err := url.JoinPath(a.baseURL, path)
	if err != nil {
		return 0, fmt.Errorf("invalid authority URL: %w", err)
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, &NetworkError{Op: op, Err: err}
	}
	if p, ok := out.(*identityPayload); ok && resp.StatusCode >= 300 {
		var e errorPayload
		_ = json.Unmarshal(raw, &e)
		p.message = firstNonEmpty(e.Message, e.Error)
		return resp.StatusCode, nil
	}
	if out != nil && len(raw) > 0 {
		// a malformed body leaves out zero-valued, which the callers reject
		_ = json.Unmarshal(raw, out)
	}
	return resp.StatusCode, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
