package headers

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalMethodIdempotentCaseInsensitive(t *testing.T) {
	for _, m := range []string{"get", "Get", "GET", "gEt"} {
		got := CanonicalMethod(m)
		assert.Equal(t, "GET", got)
		assert.Equal(t, got, CanonicalMethod(got))
	}
}

func TestCanonicalMethodNonStandardUppercased(t *testing.T) {
	assert.Equal(t, "PROPFIND", CanonicalMethod("propfind"))
}

func TestAddForwardingHeadersDoesNotOverwrite(t *testing.T) {
	h := http.Header{}
	h.Set("x-forwarded-host", "client-supplied")
	AddForwardingHeaders(h, ForwardingParams{
		PeerAddr: "1.2.3.4:5678",
		Host:     "router",
		Port:     "8080",
		Scheme:   "http",
	})

	assert.Equal(t, "client-supplied", h.Get("X-Forwarded-Host"))
	assert.Equal(t, "1.2.3.4:5678", h.Get("X-Forwarded-For"))
	assert.Equal(t, "8080", h.Get("X-Forwarded-Port"))
	assert.Equal(t, "http", h.Get("X-Forwarded-Proto"))
	assert.Len(t, h.Get(RequestIDHeader), 32)
}

func TestAddForwardingHeadersUnknownPeer(t *testing.T) {
	h := http.Header{}
	AddForwardingHeaders(h, ForwardingParams{PeerAddr: "not-an-addr"})
	assert.Equal(t, "unknown", h.Get("X-Forwarded-For"))
}

func TestSanitizeResponseHeadersKeepsLastOrigin(t *testing.T) {
	h := http.Header{}
	h["Server"] = []string{"Cowboy"}
	h.Add("Server", "nginx")
	h.Set("Connection", "close")

	out := SanitizeResponseHeaders(h)
	assert.Equal(t, []string{"nginx"}, out["Server"])
	assert.Equal(t, "close", out.Get("Connection"))
}

func TestSanitizeResponseHeadersNoDuplicateNames(t *testing.T) {
	h := http.Header{}
	h.Add("X-A", "1")
	h.Add("x-a", "2")
	h.Add("X-a", "3")

	out := sanitize(h)
	assert.Len(t, out, 1)
}

func TestParseAuthority(t *testing.T) {
	a, ok := ParseAuthority("http://router:8080/get?x=1")
	assert.True(t, ok)
	assert.Equal(t, "router:8080", a)

	_, ok = ParseAuthority("not-a-url")
	assert.False(t, ok)
}

func TestBackendURLPreservesPathAndQuery(t *testing.T) {
	orig, _ := url.Parse("http://router:8080/get?a=1&b=2")
	out := BackendURL(orig, "backend", 4007, false)
	assert.Equal(t, "http://backend:4007/get?a=1&b=2", out.String())
}

func TestBackendURLSecure(t *testing.T) {
	orig, _ := url.Parse("http://router:8080/get")
	out := BackendURL(orig, "backend", 443, true)
	assert.Equal(t, "https", out.Scheme)
}

func TestHasBody(t *testing.T) {
	h := http.Header{}
	assert.False(t, HasBody(h))
	h.Set("Content-Length", "5")
	assert.True(t, HasBody(h))
}
