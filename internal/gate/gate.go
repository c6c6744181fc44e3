// Package gate decides whether the current session may see a role-restricted
// view.  The decision is a pure function of the session snapshot; Gate adds
// a blocking wait for callers that must not act while a session is still
// being restored.
package gate

import (
	"context"

	"github.com/iliyamo/parcel-marketplace/internal/model"
	"github.com/iliyamo/parcel-marketplace/internal/session"
)

// Outcome is the gate's verdict.
type Outcome int

const (
	// Pending means the session is still loading; show a placeholder.
	Pending Outcome = iota
	Allow
	RedirectToLogin
	// Forbidden means authenticated with the wrong role.  Decision.Landing
	// says where that role belongs.
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_to_login"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// LoginPath is where unauthenticated callers are sent.
const LoginPath = "/login"

// Decision is an Outcome plus the landing path for the caller's role.
// Landing is empty unless Outcome is Forbidden.
type Decision struct {
	Outcome Outcome
	Landing string
}

var landing = map[model.Role]string{
	model.RoleCustomer:        "/",
	model.RoleSeller:          "/seller/dashboard",
	model.RoleServiceProvider: "/provider/dashboard",
	model.RoleDeliveryRider:   "/rider/deliveries",
	model.RoleAdmin:           "/admin",
}

// Landing returns the home path for role, or "/" for an unknown role.
func Landing(role model.Role) string {
	if p, ok := landing[role]; ok {
		return p
	}
	return "/"
}

// Decide evaluates a session snapshot against the roles a view requires.
// An empty required list admits any authenticated identity.
func Decide(loading bool, id *model.Identity, required ...model.Role) Decision {
	if loading {
		return Decision{Outcome: Pending}
	}
	if id == nil {
		return Decision{Outcome: RedirectToLogin}
	}
	if len(required) == 0 {
		return Decision{Outcome: Allow}
	}
	for _, r := range required {
		if id.Role == r {
			return Decision{Outcome: Allow}
		}
	}
	return Decision{Outcome: Forbidden, Landing: Landing(id.Role)}
}

// Source is the part of a session manager the gate reads.
type Source interface {
	State() session.State
	Settled() <-chan struct{}
}

// Gate evaluates decisions against a live session.
type Gate struct {
	Source Source
}

func New(src Source) *Gate {
	return &Gate{Source: src}
}

// Check evaluates the current snapshot without waiting.
func (g *Gate) Check(required ...model.Role) Decision {
	st := g.Source.State()
	return Decide(st.Loading, identityOf(st), required...)
}

// Await waits out any Pending state and returns the settled decision, or
// ctx's error if it ends first.
func (g *Gate) Await(ctx context.Context, required ...model.Role) (Decision, error) {
	for {
		settled := g.Source.Settled()
		d := g.Check(required...)
		if d.Outcome != Pending {
			return d, nil
		}
		select {
		case <-settled:
		case <-ctx.Done():
			return Decision{Outcome: Pending}, ctx.Err()
		}
	}
}

// identityOf returns the identity only when the session is fully
// authenticated.
func identityOf(st session.State) *model.Identity {
	if !st.Authenticated {
		return nil
	}
	return st.Identity
}
