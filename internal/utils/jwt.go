package utils // package utils provides helpers for credential issuance and hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// ErrInvalidCredential is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidCredential = errors.New("invalid credential")

// Credential is a signed bearer token together with its unique id and
// expiry.  Only the SHA-256 of Token is stored server side.
type Credential struct {
	Token string    // serialized JWT returned to the client
	JTI   string    // unique token id
	Exp   time.Time // UTC expiry
}

// Claims is what a credential says about its holder.
type Claims struct {
	Identity model.Identity
	JTI      string
	Exp      time.Time
}

// NewCredential signs an HS256 JWT for id valid for ttl.  The claims carry
// sub, role, email, name, jti, iat and exp.
func NewCredential(secret string, id model.Identity, ttl time.Duration) (Credential, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub":   id.ID,
		"role":  string(id.Role),
		"email": id.Email,
		"name":  id.DisplayName,
		"jti":   jti,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: signed, JTI: jti, Exp: exp}, nil
}

// ParseCredential verifies raw with secret and extracts its claims.  Only
// HMAC-signed tokens with a known role are accepted.
func ParseCredential(secret, raw string) (Claims, error) {
	return parse(secret, raw, jwt.WithExpirationRequired())
}

// ParseRenewable is ParseCredential for the refresh endpoint: the signature
// and claims are checked the same way, but a credential that expired less
// than grace before now is still accepted.
func ParseRenewable(secret, raw string, grace time.Duration, now time.Time) (Claims, error) {
	c, err := parse(secret, raw, jwt.WithoutClaimsValidation())
	if err != nil {
		return Claims{}, err
	}
	if c.Exp.IsZero() || !now.Before(c.Exp.Add(grace)) {
		return Claims{}, ErrInvalidCredential
	}
	return c, nil
}

func parse(secret, raw string, opts ...jwt.ParserOption) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidCredential
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidCredential
	}
	sub, _ := mc["sub"].(string)
	roleRaw, _ := mc["role"].(string)
	role, err := model.ParseRole(roleRaw)
	if sub == "" || err != nil {
		return Claims{}, ErrInvalidCredential
	}
	email, _ := mc["email"].(string)
	name, _ := mc["name"].(string)
	jti, _ := mc["jti"].(string)

	var exp time.Time
	if d, err := mc.GetExpirationTime(); err == nil && d != nil {
		exp = d.Time.UTC()
	}
	return Claims{
		Identity: model.Identity{ID: sub, DisplayName: name, Email: email, Role: role},
		JTI:      jti,
		Exp:      exp,
	}, nil
}

// HashCredential returns the hex SHA-256 of a raw token.  The database only
// ever sees this value.
func HashCredential(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
