// Package headers implements the pure helpers of the header pipeline:
// authority extraction, forwarded-header insertion, response-header
// deduplication, method canonicalization, and backend URL construction.
package headers

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader is the header carrying the per-request tracing id.
const RequestIDHeader = "X-OpenAperture-Request-ID"

const (
	forwardedForHeader   = "X-Forwarded-For"
	forwardedHostHeader  = "X-Forwarded-Host"
	forwardedPortHeader  = "X-Forwarded-Port"
	forwardedProtoHeader = "X-Forwarded-Proto"
)

// standardMethods maps the uppercased standard verbs to themselves.
var standardMethods = map[string]string{
	"DELETE":  http.MethodDelete,
	"GET":     http.MethodGet,
	"HEAD":    http.MethodHead,
	"OPTIONS": http.MethodOptions,
	"PATCH":   http.MethodPatch,
	"POST":    http.MethodPost,
	"PUT":     http.MethodPut,
}

// CanonicalMethod canonicalizes method to one of the seven standard verbs
// (case-insensitive match) or the uppercased literal for anything else.
// Idempotent: CanonicalMethod(CanonicalMethod(m)) == CanonicalMethod(m).
func CanonicalMethod(method string) string {
	upper := strings.ToUpper(method)
	if m, ok := standardMethods[upper]; ok {
		return m
	}
	return upper
}

// NewRequestID returns a 128-bit random id rendered as 32 lowercase hex
// characters, using uuid purely as an entropy source (no RFC 4122 version
// bits are meaningful to callers of this package).
func NewRequestID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// has reports whether headers contains name, case-insensitively.
func has(h http.Header, name string) bool {
	return h.Get(name) != ""
}

// ForwardingParams carries the per-request values needed to fill in the
// five forwarding headers.
type ForwardingParams struct {
	PeerAddr string // net.Addr.String() of the client connection, may be empty
	Host     string // inbound authority host
	Port     string // inbound authority port, decimal
	Scheme   string // "http" or "https"
}

// AddForwardingHeaders inserts any of the five forwarding headers that are
// missing (case-insensitive absence check). A client-supplied value is
// never overwritten.
func AddForwardingHeaders(h http.Header, p ForwardingParams) {
	if !has(h, RequestIDHeader) {
		h.Set(RequestIDHeader, NewRequestID())
	}
	if !has(h, forwardedForHeader) {
		h.Set(forwardedForHeader, peerLabel(p.PeerAddr))
	}
	if !has(h, forwardedHostHeader) {
		h.Set(forwardedHostHeader, p.Host)
	}
	if !has(h, forwardedPortHeader) {
		h.Set(forwardedPortHeader, p.Port)
	}
	if !has(h, forwardedProtoHeader) {
		h.Set(forwardedProtoHeader, p.Scheme)
	}
}

// peerLabel renders a peer address as "<ip>:<port>", or "unknown" if addr
// does not split into host and port.
func peerLabel(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return "unknown"
	}
	return net.JoinHostPort(host, port)
}

// SanitizeResponseHeaders deduplicates header by case-insensitive name,
// keeping the last occurrence supplied by the origin (equivalent to:
// reverse, then keep-first-occurrence). Must never panic; any unexpected
// failure returns the input unchanged.
func SanitizeResponseHeaders(h http.Header) http.Header {
	out := h
	func() {
		defer func() {
			if recover() != nil {
				out = h
			}
		}()
		out = sanitize(h)
	}()
	return out
}

func sanitize(h http.Header) http.Header {
	// Duplicate header lines surface as multiple values under one
	// canonical key; keeping the slice's last element keeps the origin's
	// version and drops the one the server layer prepended.
	out := make(http.Header, len(h))
	seen := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) == 0 {
			continue
		}
		fold := strings.ToLower(k)
		if prev, ok := seen[fold]; ok {
			delete(out, prev)
		}
		seen[fold] = k
		out[k] = []string{vs[len(vs)-1]}
	}
	return out
}

// ParseAuthority returns the substring between "://" and the first "/" in
// rawURL, or "", false if the pattern does not match. Used only as a
// diagnostic label in logs; routing itself uses the request's own host and
// port fields.
func ParseAuthority(rawURL string) (string, bool) {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return "", false
	}
	rest := rawURL[idx+3:]
	if end := strings.IndexByte(rest, '/'); end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// BackendURL computes the outbound backend URL by substituting scheme and
// authority in the original request URL with the chosen backend's, while
// preserving path and query.
func BackendURL(orig *url.URL, backendHost string, backendPort int, secure bool) *url.URL {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	out := *orig
	out.Scheme = scheme
	out.Host = net.JoinHostPort(backendHost, strconv.Itoa(backendPort))
	return &out
}

// StatusLine formats an HTTP/1.1 status line, e.g. "HTTP/1.1 200 OK".
func StatusLine(statusCode int, reasonPhrase string) string {
	if reasonPhrase == "" {
		reasonPhrase = http.StatusText(statusCode)
	}
	return fmt.Sprintf("HTTP/1.1 %d %s", statusCode, reasonPhrase)
}

// HasBody reports whether headers carry Content-Length or
// Transfer-Encoding (case-insensitive).
func HasBody(h http.Header) bool {
	return has(h, "Content-Length") || has(h, "Transfer-Encoding")
}
