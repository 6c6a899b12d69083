// Command router runs the OpenAperture HTTP reverse proxy: it loads
// configuration, starts the route refresher against the control-plane
// route server, and serves client requests through the proxy engine.
package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/OpenAperture/router/internal/acceptpool"
	"github.com/OpenAperture/router/internal/backendclient"
	"github.com/OpenAperture/router/internal/config"
	"github.com/OpenAperture/router/internal/healthcheck"
	applog "github.com/OpenAperture/router/internal/logging"
	"github.com/OpenAperture/router/internal/metrics"
	"github.com/OpenAperture/router/internal/proxyengine"
	"github.com/OpenAperture/router/internal/routecache"
	"github.com/OpenAperture/router/internal/routerefresher"
)

func main() {
	cfg, err := config.New(os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	applog.Init(applog.Options{
		AccessLogDisabled:    cfg.AccessLogDisabled,
		AccessLogJSONEnabled: cfg.AccessLogJSON,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	cache := routecache.New(time.Now().UnixNano())

	routeServerClient := &routerefresher.RouteServerClient{
		BaseURL: cfg.RouteServerURL,
		Token:   tokenFunc(ctx, cfg),
	}
	refresher := routerefresher.New(cache, routeServerClient, cfg.RouteServerTTL, m)

	backend := backendclient.New(cfg.Timeouts.Connecting)
	if cfg.HTTPProxyURL != "" {
		backend.ProxyFunc = http.ProxyURL(mustParseURL(cfg.HTTPProxyURL))
	}

	engine := proxyengine.New(cache, backend, cfg.Timeouts, m)

	mux := http.NewServeMux()
	mux.HandleFunc("/openaperture_router_status_check", healthcheck.Handler(refresher, nil))
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/", serveProxy(engine, m))

	pool := acceptpool.New(cfg.AcceptorPool, cfg.AcceptorPool*4, cfg.Timeouts.WaitingForResponse)
	defer pool.Close()

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: pool.Wrap(mux),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		refresher.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logrus.WithField("addr", server.Addr).Info("router listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Fatal("router exited")
	}
}

func serveProxy(engine *proxyengine.Engine, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := applog.NewResponseWriter(w)

		result := engine.Proxy(lw, r)

		m.ObserveResponseSize(lw.BytesWritten())
		applog.LogAccess(applog.Entry{
			Request:      r,
			Authority:    r.Host,
			StatusCode:   lw.Status(),
			ResponseSize: lw.BytesWritten(),
			Duration:     time.Since(start),
			BackendUS:    result.BackendUS,
		})
	}
}

// tokenFunc acquires route-server bearer tokens via the client-credentials
// flow when an OAuth endpoint is configured, refreshing them as they
// expire. Without one, requests carry a token derived from the configured
// credentials.
func tokenFunc(ctx context.Context, cfg *config.Config) func() string {
	if cfg.OAuthURL != "" {
		return routerefresher.OAuthTokenFunc(ctx, cfg.OAuthURL, cfg.ClientID, cfg.ClientSecret)
	}
	token := cfg.ClientID + ":" + cfg.ClientSecret
	return func() string { return token }
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		logrus.WithError(err).Fatal("invalid http-proxy-url")
	}
	return u
}
