// Package routekey derives stable routing keys from proxied request URLs.
//
// DESIGN: A route is identified by (urlHash, method) where urlHash is the md5
// of the request path after the proxy prefix and query string are removed.
// Two URLs that differ only in query string map to the same key.
package routekey

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/zsjie/imock-open/internal/config"
)

// Key identifies a distinct mockable endpoint.
type Key struct {
	URLHash string
	Method  string
}

// IsProxyAPI reports whether the URL engages the mock pipeline.
func IsProxyAPI(url string) bool {
	return strings.HasPrefix(url, config.ProxyAPIPrefix)
}

// StripPrefix removes a single leading proxy prefix segment.
// Used both for key derivation and for building the outbound path.
func StripPrefix(url string) string {
	return strings.TrimPrefix(strings.TrimSpace(url), config.ProxyAPIPrefix)
}

// Path returns the prefix-stripped URL without its query string.
// An empty result is a valid, distinct route.
func Path(url string) string {
	p, _, _ := strings.Cut(StripPrefix(url), "?")
	return p
}

// Hash computes the md5 route hash of a URL.
func Hash(url string) string {
	sum := md5.Sum([]byte(Path(url)))
	return hex.EncodeToString(sum[:])
}

// Derive builds the routing key for a method/URL pair.
func Derive(method, url string) Key {
	return Key{
		URLHash: Hash(url),
		Method:  strings.ToUpper(method),
	}
}

// ExtractIdentity reads the mock identity from request headers. A missing
// header or one carrying multiple values yields ok=false, which means the
// pipeline must pass the request through unmodified.
func ExtractIdentity(h http.Header) (string, bool) {
	vals := h.Values(config.HeaderMockID)
	if len(vals) != 1 || vals[0] == "" {
		return "", false
	}
	return vals[0], true
}
