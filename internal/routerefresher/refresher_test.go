package routerefresher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenAperture/router/internal/routecache"
)

func TestBootstrapSucceedsAndTransitionsToSteady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"router:8080":[{"hostname":"backend","port":4007,"secure_connection":false}],"timestamp":1000}`)
	}))
	defer srv.Close()

	cache := routecache.New(1)
	client := &RouteServerClient{BaseURL: srv.URL}
	r := New(cache, client, time.Hour, nil)

	r.bootstrap(context.Background())

	assert.EqualValues(t, 1000, r.LastRefreshTimestamp())
	b, ok := cache.Select("router:8080")
	require.True(t, ok)
	assert.Equal(t, "backend", b.Host)
}

func TestBootstrapFailureStaysNever(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache := routecache.New(1)
	client := &RouteServerClient{BaseURL: srv.URL}
	r := New(cache, client, time.Hour, nil)

	r.bootstrap(context.Background())
	assert.EqualValues(t, 0, r.LastRefreshTimestamp())
}

func TestSteadyDeletesBeforeUpdatesTieBreak(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		if strings.HasSuffix(req.URL.Path, "/deleted") {
			fmt.Fprint(w, `["router:8080"]`)
			return
		}
		fmt.Fprint(w, `{"router:8080":[{"hostname":"new-backend","port":9000,"secure_connection":false}],"timestamp":2000}`)
	}))
	defer srv.Close()

	cache := routecache.New(1)
	cache.Put("router:8080", []routecache.Backend{{Host: "old-backend", Port: 1}})

	client := &RouteServerClient{BaseURL: srv.URL}
	r := New(cache, client, time.Hour, nil)
	r.lastRefresh.Store(1000)

	r.steady(context.Background())

	assert.EqualValues(t, 2000, r.LastRefreshTimestamp())
	b, ok := cache.Select("router:8080")
	require.True(t, ok)
	assert.Equal(t, "new-backend", b.Host, "a later update must win over an earlier delete for the same authority")
}

func TestSteadyFailureDoesNotAdvanceTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasSuffix(req.URL.Path, "/deleted") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"timestamp":2000}`)
	}))
	defer srv.Close()

	cache := routecache.New(1)
	client := &RouteServerClient{BaseURL: srv.URL}
	r := New(cache, client, time.Hour, nil)
	r.lastRefresh.Store(1000)

	r.steady(context.Background())
	assert.EqualValues(t, 1000, r.LastRefreshTimestamp())
}
