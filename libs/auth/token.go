package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// RoleAdmin may act on behalf of any specialist.
const RoleAdmin = "admin"

type Claims struct {
	SpecialistID string `json:"specialist_id,omitempty"`
	Role         string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens against a shared HMAC secret or, when no
// secret is set, against RSA keys served by a JWKS endpoint.
type Verifier struct {
	secret []byte
	keys   *JWKSClient
	issuer string
}

func NewHS256Verifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

func NewJWKSVerifier(keys *JWKSClient, issuer string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if len(v.secret) > 0 {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256"}))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	if len(v.secret) > 0 {
		return v.secret, nil
	}
	if v.keys == nil {
		return nil, errors.New("no verification key configured")
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token missing kid")
	}
	return v.keys.Get(kid)
}

// SignHS256 issues a token for local tooling and tests.
func SignHS256(claims Claims, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
