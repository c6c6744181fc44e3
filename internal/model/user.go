package model

import (
	"fmt"
	"strings"
	"time"
)

// Role is the fixed category that governs which actions an identity may
// perform.  The set is closed; ParseRole rejects anything outside it.
type Role string

const (
	RoleCustomer        Role = "customer"
	RoleSeller          Role = "seller"
	RoleServiceProvider Role = "service_provider"
	RoleDeliveryRider   Role = "delivery_rider"
	RoleAdmin           Role = "admin"
)

// Roles lists every valid role in a stable order.
var Roles = []Role{RoleCustomer, RoleSeller, RoleServiceProvider, RoleDeliveryRider, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole normalises s (case and surrounding space) and returns the
// matching Role.  Unknown values yield an error.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Identity is the authenticated user's profile as seen by the rest of the
// application.  It is what the session layer hands to the access gate and
// to the delivery registry; nothing downstream ever mutates it.
//
// Fields:
//
//	ID          – stable user identifier issued by the authority.
//	DisplayName – human readable name ("First Last").
//	Email       – login email, lower-cased.
//	Role        – exactly one role per identity.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
}

// Is reports whether the identity has the given role.
func (i Identity) Is(r Role) bool { return i.Role == r }

// DisplayNameOf joins first and last name the way profiles are shown.
func DisplayNameOf(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// User represents an account row in the `users` table.  It carries the
// bcrypt hash and therefore never leaves the authority; handlers convert it
// to an Identity before responding.
//
// Fields:
//
//	ID           – primary key (string form of the numeric id).
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password.
//	FirstName    – given name.
//	LastName     – family name, may be empty.
//	Role         – one of Roles.
//	IsActive     – disabled accounts cannot log in.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity projects the user onto the public identity shape.
func (u User) Identity() Identity {
	return Identity{
		ID:          u.ID,
		DisplayName: DisplayNameOf(u.FirstName, u.LastName),
		Email:       u.Email,
		Role:        u.Role,
	}
}

// Credential models an entry in the `credentials` table.  Only the
// SHA-256 hash of the bearer token is stored.
//
// Fields:
//
//	ID        – primary key identifier.
//	UserID    – owner of the credential.
//	TokenHash – SHA-256 hex digest of the bearer token.
//	ExpiresAt – expiration timestamp.
//	RevokedAt – when the credential was revoked (nil while active).
//	CreatedAt – timestamp of creation.
type Credential struct {
	ID        uint64
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Active reports whether the credential may still be used at now.
func (c Credential) Active(now time.Time) bool {
	return c.RevokedAt == nil && now.Before(c.ExpiresAt)
}

// Renewable reports whether the credential may still be exchanged for a new
// one at now: not revoked, and expired less than grace ago.
func (c Credential) Renewable(now time.Time, grace time.Duration) bool {
	return c.RevokedAt == nil && now.Before(c.ExpiresAt.Add(grace))
}
