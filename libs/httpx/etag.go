package httpx

import (
	"encoding/hex"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ETag returns a strong validator for the given representation.
func ETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// IfMatch reports whether the request's If-Match header (if any) allows a write
// against the current representation tag.
func IfMatch(r *http.Request, current string) bool {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return true
	}
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
		if tag == current {
			return true
		}
	}
	return false
}

// NotModified writes 304 when If-None-Match carries the current tag.
func NotModified(w http.ResponseWriter, r *http.Request, current string) bool {
	w.Header().Set("ETag", current)
	for _, tag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
		if strings.TrimPrefix(strings.TrimSpace(tag), "W/") == current {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}
