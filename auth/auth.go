// Package auth verifies HS256-signed bearer tokens and exposes the caller's
// identity and zone entitlements to the rest of the service.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parking-analyst/config"
)

// Claims is the token payload carried by analyst tokens
type Claims struct {
	OrgID   string   `json:"org_id"`
	Roles   []string `json:"roles"`
	ZoneIDs []string `json:"zone_ids"`
	jwt.RegisteredClaims
}

// UserContext is the verified caller identity attached to each request.
// ZoneIDs is the entitlement set; every zone-scoped operation checks it.
type UserContext struct {
	Sub     string
	OrgID   string
	Roles   []string
	ZoneIDs []string
}

// HasZone reports whether the user is entitled to the zone
func (u *UserContext) HasZone(zoneID string) bool {
	for _, z := range u.ZoneIDs {
		if z == zoneID {
			return true
		}
	}
	return false
}

// HasRole reports whether the user carries the role
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Verifier parses and validates bearer tokens
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a token verifier from the auth configuration
func NewVerifier(cfg *config.AuthConfig) *Verifier {
	return &Verifier{
		secret: []byte(cfg.HS256Secret),
		issuer: cfg.Issuer,
	}
}

// Verify parses an HS256 token string and returns the caller's context.
// Tokens signed with any other algorithm are rejected.
func (v *Verifier) Verify(tokenString string) (*UserContext, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return &UserContext{
		Sub:     claims.Subject,
		OrgID:   claims.OrgID,
		Roles:   claims.Roles,
		ZoneIDs: claims.ZoneIDs,
	}, nil
}

// MintDevToken issues a short-lived token for local development and tests
func MintDevToken(cfg *config.AuthConfig, sub string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		OrgID:   cfg.OrgID,
		Roles:   roles,
		ZoneIDs: cfg.DevZoneIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.HS256Secret))
}
