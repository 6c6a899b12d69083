package routerefresher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/OpenAperture/router/internal/routecache"
)

// backendJSON mirrors the route-server's per-backend JSON object.
type backendJSON struct {
	Hostname         string `json:"hostname"`
	Port             int    `json:"port"`
	SecureConnection bool   `json:"secure_connection"`
}

// routesPayload mirrors the route-server's full/incremental fetch shape:
// an object keyed by authority, plus a sibling "timestamp" field. We
// unmarshal into a raw map first, since "timestamp" is not an authority.
type routesPayload struct {
	Authorities map[string][]backendJSON
	Timestamp   int64
}

func parseRoutesPayload(body io.Reader) (routesPayload, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return routesPayload{}, fmt.Errorf("decode routes payload: %w", err)
	}

	out := routesPayload{Authorities: make(map[string][]backendJSON, len(raw))}
	haveTimestamp := false
	for k, v := range raw {
		if k == "timestamp" {
			if err := json.Unmarshal(v, &out.Timestamp); err != nil {
				return routesPayload{}, fmt.Errorf("decode timestamp: %w", err)
			}
			haveTimestamp = true
			continue
		}
		var backends []backendJSON
		if err := json.Unmarshal(v, &backends); err != nil {
			return routesPayload{}, fmt.Errorf("decode authority %q: %w", k, err)
		}
		out.Authorities[k] = backends
	}

	if !haveTimestamp {
		return routesPayload{}, fmt.Errorf("routes payload missing timestamp field")
	}
	return out, nil
}

func toBackends(in []backendJSON) []routecache.Backend {
	out := make([]routecache.Backend, len(in))
	for i, b := range in {
		out[i] = routecache.Backend{Host: b.Hostname, Port: b.Port, Secure: b.SecureConnection}
	}
	return out
}

// RouteServerClient talks to the control-plane route server.
type RouteServerClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// Token returns the current bearer token for Authorization. Token
	// acquisition itself is handled by the caller, typically via the
	// OAuth client-credentials flow.
	Token func() string
}

func (c *RouteServerClient) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if c.Token != nil {
		req.Header.Set("Authorization", "Bearer "+c.Token())
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

// FetchFull performs the Bootstrapping full fetch: GET <route_server_url>.
func (c *RouteServerClient) FetchFull(ctx context.Context) (routesPayload, error) {
	resp, err := c.do(ctx, c.BaseURL)
	if err != nil {
		return routesPayload{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return routesPayload{}, fmt.Errorf("route server returned status %d", resp.StatusCode)
	}
	return parseRoutesPayload(resp.Body)
}

// FetchUpdated performs the Steady-state updated-since fetch.
func (c *RouteServerClient) FetchUpdated(ctx context.Context, since int64) (routesPayload, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return routesPayload{}, err
	}
	q := u.Query()
	q.Set("updated_since", fmt.Sprintf("%d", since))
	u.RawQuery = q.Encode()

	resp, err := c.do(ctx, u.String())
	if err != nil {
		return routesPayload{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return routesPayload{}, fmt.Errorf("route server returned status %d", resp.StatusCode)
	}
	return parseRoutesPayload(resp.Body)
}

// FetchDeleted performs the Steady-state deleted-since fetch.
func (c *RouteServerClient) FetchDeleted(ctx context.Context, since int64) ([]string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	u.Path = u.Path + "/deleted"
	q := u.Query()
	q.Set("updated_since", fmt.Sprintf("%d", since))
	u.RawQuery = q.Encode()

	resp, err := c.do(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("route server returned status %d", resp.StatusCode)
	}

	var deleted []string
	if err := json.NewDecoder(resp.Body).Decode(&deleted); err != nil {
		return nil, fmt.Errorf("decode deleted list: %w", err)
	}
	return deleted, nil
}
