package auth

import (
	"errors"
	"net/http"
	"strings"
)

var ErrMissingToken = errors.New("missing bearer token")

// CanActFor reports whether the caller may modify data owned by specialistID.
func (c *Claims) CanActFor(specialistID string) bool {
	if c.Role == RoleAdmin {
		return true
	}
	return c.SpecialistID != "" && c.SpecialistID == specialistID
}

// FromRequest verifies the request's bearer token.
func (v *Verifier) FromRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return nil, ErrMissingToken
	}
	return v.Verify(token)
}
