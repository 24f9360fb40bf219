package proxy

import (
	"net/http"
	"strings"

	"github.com/zsjie/imock-open/internal/config"
)

// requestHeaderDrops are inbound headers never forwarded to a backend. The
// identity header stays private to the proxy, and the client-address headers
// would leak the viewer's network position.
var requestHeaderDrops = map[string]struct{}{
	"x-forwarded-for":     {},
	"x-real-ip":           {},
	config.HeaderMockID:   {},
	config.HeaderUseCache: {},
	"host":                {},
}

// responseHeaderDrops are backend response headers stripped before replay.
// Caching validators would let clients skip the proxy on revisit, and the
// framing headers no longer describe the re-encoded body.
var responseHeaderDrops = map[string]struct{}{
	"cache-control":     {},
	"expires":           {},
	"pragma":            {},
	"etag":              {},
	"last-modified":     {},
	"if-modified-since": {},
	"content-encoding":  {},
	"content-length":    {},
	"transfer-encoding": {},
}

// eventHeaderDrops are request headers hidden from live viewers.
var eventHeaderDrops = map[string]struct{}{
	"x-forwarded-for":     {},
	"x-real-ip":           {},
	"x-forwarded-host":    {},
	config.HeaderUseCache: {},
}

// copyForwardHeaders copies inbound headers onto an outgoing backend request,
// dropping the proxy-private set.
func copyForwardHeaders(dst, src http.Header) {
	for k, vv := range src {
		if _, drop := requestHeaderDrops[strings.ToLower(k)]; drop {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// SanitizeStoredHeaders filters a mock's stored response headers, refusing
// any that collide with the proxy's reserved namespace. The management API
// applies it on save; the manual stage applies it again on serve so rows
// written before the save-time strip stay safe.
func SanitizeStoredHeaders(hdrs map[string]string) map[string]string {
	out := make(map[string]string, len(hdrs))
	for k, v := range hdrs {
		lower := strings.ToLower(k)
		reserved := false
		for _, prefix := range config.ReservedHeaderPrefixes {
			if strings.HasPrefix(lower, prefix) {
				reserved = true
				break
			}
		}
		if !reserved {
			out[k] = v
		}
	}
	return out
}

// flattenForEvent turns an http.Header into the single-valued map shown to
// live viewers, dropping the hidden set and lower-casing names.
func flattenForEvent(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		lower := strings.ToLower(k)
		if _, drop := eventHeaderDrops[lower]; drop {
			continue
		}
		if len(vv) > 0 {
			out[lower] = strings.Join(vv, ", ")
		}
	}
	return out
}
