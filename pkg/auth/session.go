// Package auth turns signed session tokens into the tenant context consumed
// by the tenancy store. Tokens are HMAC-signed JWTs carrying the org binding
// and, optionally, the tenant's data residency.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/elite-vending/vendhub/pkg/tenancy"
)

// SessionClaims are the JWT claims a vendhub session token carries.
type SessionClaims struct {
	jwt.RegisteredClaims
	OrgID     string            `json:"org_id"`
	OrgUnitID string            `json:"org_unit_id,omitempty"`
	Residency map[string]string `json:"data_residency,omitempty"`
}

// Verifier validates session tokens and binds them to a tenancy store.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier over the given HMAC secret.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	return &Verifier{secret: secret}, nil
}

// Parse validates tokenStr and returns its claims. Only HS256 is accepted;
// tokens without an org binding are rejected.
func (v *Verifier) Parse(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("auth: token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if claims.OrgID == "" {
		return nil, errors.New("auth: token carries no org binding")
	}
	return claims, nil
}

// Bind parses tokenStr and installs its tenant binding into store. The
// session map uses the field names the tenancy extractor recognizes.
func (v *Verifier) Bind(tokenStr string, store *tenancy.Store) (*SessionClaims, error) {
	claims, err := v.Parse(tokenStr)
	if err != nil {
		return nil, err
	}
	store.SetFromSession(claims.Session())
	return claims, nil
}

// Session renders the claims as the map shape SetFromSession expects.
func (c *SessionClaims) Session() map[string]any {
	session := map[string]any{
		"org_id": c.OrgID,
	}
	if c.OrgUnitID != "" {
		session["org_unit_id"] = c.OrgUnitID
	}
	if len(c.Residency) > 0 {
		residency := make(map[string]any, len(c.Residency))
		for k, val := range c.Residency {
			residency[k] = val
		}
		session["data_residency"] = residency
	}
	return session
}

// Issuer signs session tokens. Used by the CLI and by tests.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer with the given secret and token lifetime.
func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs a session token for the given subject and tenant binding.
// residency may be nil when the tenant has no residency requirements.
func (i *Issuer) Issue(subject, orgID, orgUnitID string, residency *tenancy.Residency) (string, error) {
	if orgID == "" {
		return "", errors.New("auth: org id is required")
	}

	now := i.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		OrgID:     orgID,
		OrgUnitID: orgUnitID,
	}
	if residency != nil && !residency.IsZero() {
		claims.Residency = map[string]string{}
		if residency.Region != "" {
			claims.Residency["region"] = residency.Region
		}
		if residency.StorageBucket != "" {
			claims.Residency["storage_bucket"] = residency.StorageBucket
		}
		if residency.KMSKey != "" {
			claims.Residency["kms_key"] = residency.KMSKey
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
