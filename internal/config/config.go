// Package config loads the proxy's configuration from flags, with
// environment variables supplying defaults for some of them.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Timeouts holds the per-stage wait limits of one proxied request.
type Timeouts struct {
	Connecting         time.Duration
	SendingRequestBody time.Duration
	WaitingForResponse time.Duration
	ReceivingResponse  time.Duration
}

// DefaultTimeouts returns the default stage timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connecting:         5 * time.Second,
		SendingRequestBody: 60 * time.Second,
		WaitingForResponse: 60 * time.Second,
		ReceivingResponse:  60 * time.Second,
	}
}

// Config is the full set of values the router recognizes.
type Config struct {
	RouteServerURL string
	RouteServerTTL time.Duration

	Timeouts Timeouts

	HTTPPort     int
	AcceptorPool int

	ClientID     string
	ClientSecret string
	OAuthURL     string

	HTTPProxyURL string

	AccessLogJSON     bool
	AccessLogDisabled bool
}

// New parses args (normally os.Args[1:]) into a Config. ROUTE_SERVER_URL,
// CLIENT_ID, CLIENT_SECRET, OAUTH_URL and HTTP_PROXY supply the defaults of
// the matching flags, which take precedence when given; ROUTE_SERVER_TTL_MS,
// when set to an integer, overrides -route-server-ttl.
func New(args []string) (*Config, error) {
	fs := flag.NewFlagSet("router", flag.ContinueOnError)

	cfg := &Config{Timeouts: DefaultTimeouts()}

	fs.StringVar(&cfg.RouteServerURL, "route-server-url", os.Getenv("ROUTE_SERVER_URL"), "base URL of the route control plane")
	ttlMS := fs.Int("route-server-ttl", 60000, "refresh interval in milliseconds")
	fs.IntVar(&cfg.HTTPPort, "http-port", 8080, "listener port")
	fs.IntVar(&cfg.AcceptorPool, "acceptor-pool", 100, "max concurrent in-flight requests")
	fs.StringVar(&cfg.ClientID, "client-id", os.Getenv("CLIENT_ID"), "route-server OAuth client id")
	fs.StringVar(&cfg.ClientSecret, "client-secret", os.Getenv("CLIENT_SECRET"), "route-server OAuth client secret")
	fs.StringVar(&cfg.OAuthURL, "oauth-url", os.Getenv("OAUTH_URL"), "OAuth token endpoint")
	fs.StringVar(&cfg.HTTPProxyURL, "http-proxy-url", os.Getenv("HTTP_PROXY"), "outbound HTTP proxy, subject to the loopback bypass rule")
	fs.BoolVar(&cfg.AccessLogJSON, "access-log-json", false, "emit access log lines as JSON")
	fs.BoolVar(&cfg.AccessLogDisabled, "access-log-disabled", false, "disable the access log")

	connectingMS := fs.Int("timeout-connecting-ms", int(DefaultTimeouts().Connecting/time.Millisecond), "connecting stage timeout, ms")
	sendingMS := fs.Int("timeout-sending-request-body-ms", int(DefaultTimeouts().SendingRequestBody/time.Millisecond), "sending_request_body stage timeout, ms")
	waitingMS := fs.Int("timeout-waiting-for-response-ms", int(DefaultTimeouts().WaitingForResponse/time.Millisecond), "waiting_for_response stage timeout, ms")
	receivingMS := fs.Int("timeout-receiving-response-ms", int(DefaultTimeouts().ReceivingResponse/time.Millisecond), "receiving_response stage timeout, ms")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if v := os.Getenv("ROUTE_SERVER_TTL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*ttlMS = n
		}
	}

	cfg.RouteServerTTL = time.Duration(*ttlMS) * time.Millisecond
	cfg.Timeouts = Timeouts{
		Connecting:         time.Duration(*connectingMS) * time.Millisecond,
		SendingRequestBody: time.Duration(*sendingMS) * time.Millisecond,
		WaitingForResponse: time.Duration(*waitingMS) * time.Millisecond,
		ReceivingResponse:  time.Duration(*receivingMS) * time.Millisecond,
	}

	if cfg.RouteServerURL == "" {
		return nil, fmt.Errorf("route-server-url is required")
	}

	return cfg, nil
}
