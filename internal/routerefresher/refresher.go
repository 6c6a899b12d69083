// Package routerefresher runs the background loop that reconciles the
// route cache against the control-plane route server: a full fetch until
// the first success, then incremental deleted/updated fetches keyed by
// the last successful refresh timestamp.
package routerefresher

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OpenAperture/router/internal/metrics"
	"github.com/OpenAperture/router/internal/proxyerrors"
	"github.com/OpenAperture/router/internal/routecache"
)

// never means no refresh has succeeded since process start.
const never int64 = 0

// Refresher polls the route server and applies its answers to the cache.
type Refresher struct {
	cache    *routecache.Cache
	client   *RouteServerClient
	interval time.Duration
	metrics  *metrics.Metrics
	log      *logrus.Entry

	lastRefresh atomic.Int64 // unix seconds, or `never`
}

// New returns a Refresher bound to cache, polling client at interval.
func New(cache *routecache.Cache, client *RouteServerClient, interval time.Duration, m *metrics.Metrics) *Refresher {
	return &Refresher{
		cache:    cache,
		client:   client,
		interval: interval,
		metrics:  m,
		log:      logrus.WithField("component", "routerefresher"),
	}
}

// LastRefreshTimestamp returns the unix-seconds timestamp of the last
// successful refresh, or 0 meaning "never". Read lock-free by the health
// endpoint.
func (r *Refresher) LastRefreshTimestamp() int64 {
	return r.lastRefresh.Load()
}

func (r *Refresher) setLastRefresh(ts int64) {
	r.lastRefresh.Store(ts)
	if r.metrics != nil {
		r.metrics.SetLastRefresh(ts)
		r.metrics.SetRouteCacheSize(r.cache.Len())
	}
}

// Run loops until ctx is cancelled. A failed iteration is logged and
// retried on the next tick; it never terminates the loop.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	if r.LastRefreshTimestamp() == never {
		r.bootstrap(ctx)
		return
	}
	r.steady(ctx)
}

// bootstrap performs the full fetch of the Bootstrapping state.
func (r *Refresher) bootstrap(ctx context.Context) {
	payload, err := r.client.FetchFull(ctx)
	if err != nil {
		r.refreshFailed(err)
		return
	}

	for authority, backends := range payload.Authorities {
		bs := toBackends(backends)
		if len(bs) == 0 {
			continue
		}
		r.cache.Put(authority, bs)
	}
	r.setLastRefresh(payload.Timestamp)
}

// steady performs the incremental reconciliation. Deletes are applied
// before updates so a later update for the same authority wins.
func (r *Refresher) steady(ctx context.Context) {
	since := r.LastRefreshTimestamp()

	deleted, err := r.client.FetchDeleted(ctx, since)
	if err != nil {
		r.refreshFailed(err)
		return
	}

	updated, err := r.client.FetchUpdated(ctx, since)
	if err != nil {
		r.refreshFailed(err)
		return
	}

	for _, authority := range deleted {
		r.cache.Delete(authority)
	}
	for authority, backends := range updated.Authorities {
		bs := toBackends(backends)
		if len(bs) == 0 {
			continue
		}
		r.cache.Put(authority, bs)
	}

	r.setLastRefresh(updated.Timestamp)
}

func (r *Refresher) refreshFailed(err error) {
	r.log.WithError(fmt.Errorf("%w: %v", proxyerrors.ErrRouteRefresh, err)).Warn("route refresh iteration failed, will retry next interval")
	if r.metrics != nil {
		r.metrics.IncRefreshError()
	}
}
