// Package proxyengine orchestrates a single request: route resolution,
// forwarding-header construction, backend dispatch, body handler
// selection, stage timeouts, and final outcome reporting.
package proxyengine

import (
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OpenAperture/router/internal/backendclient"
	"github.com/OpenAperture/router/internal/bodyhandler"
	"github.com/OpenAperture/router/internal/config"
	"github.com/OpenAperture/router/internal/headers"
	"github.com/OpenAperture/router/internal/metrics"
	"github.com/OpenAperture/router/internal/proxyerrors"
	"github.com/OpenAperture/router/internal/routecache"
)

const requestChunkSize = 4096

// Outcome is the terminal classification of one proxy call.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeError
)

// Result is what Proxy returns to the HTTP handler.
type Result struct {
	Outcome    Outcome
	BackendUS  int64
	StatusCode int
}

// Engine holds the collaborators a single request needs: the route cache,
// the backend client, and the configured stage timeouts.
type Engine struct {
	Cache    *routecache.Cache
	Backend  *backendclient.Client
	Timeouts config.Timeouts
	Metrics  *metrics.Metrics
	Log      *logrus.Entry
}

// New returns an Engine ready to serve requests.
func New(cache *routecache.Cache, backend *backendclient.Client, timeouts config.Timeouts, m *metrics.Metrics) *Engine {
	return &Engine{
		Cache:    cache,
		Backend:  backend,
		Timeouts: timeouts,
		Metrics:  m,
		Log:      logrus.WithField("component", "proxyengine"),
	}
}

// Proxy forwards one inbound request to the backend registered for its
// authority, if any, and relays the response back to the client.
func (e *Engine) Proxy(w http.ResponseWriter, r *http.Request) Result {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host, port := splitHostPort(r.Host, scheme)
	authority := net.JoinHostPort(host, port)

	backend, ok := e.Cache.Select(authority)
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		return Result{Outcome: OutcomeOK, StatusCode: http.StatusServiceUnavailable}
	}

	method := headers.CanonicalMethod(r.Method)

	headers.AddForwardingHeaders(r.Header, headers.ForwardingParams{
		PeerAddr: r.RemoteAddr,
		Host:     host,
		Port:     port,
		Scheme:   scheme,
	})

	backendURL := headers.BackendURL(r.URL, backend.Host, backend.Port, backend.Secure)
	// The server layer moves a chunked Transfer-Encoding out of the header
	// map into its own field, so the header check alone misses it.
	hasBody := headers.HasBody(r.Header) || r.ContentLength > 0 || len(r.TransferEncoding) > 0

	// The dial itself is bounded by the backend client's connect timeout;
	// the request context only ties the exchange to the client connection.
	session, err := e.Backend.Start(r.Context(), method, backendURL, r.Header, hasBody)
	if err != nil {
		e.recordError("start")
		w.WriteHeader(http.StatusServiceUnavailable)
		return Result{Outcome: OutcomeOK, StatusCode: http.StatusServiceUnavailable}
	}
	defer session.Close()

	if hasBody {
		if err := e.streamRequestBody(session, r.Body, e.Timeouts.SendingRequestBody); err != nil {
			e.recordError("send_body")
			w.WriteHeader(http.StatusServiceUnavailable)
			return Result{Outcome: OutcomeError, StatusCode: http.StatusServiceUnavailable}
		}
	}

	return e.awaitAndRespond(w, session)
}

// splitHostPort extracts host and port from an inbound authority string,
// defaulting the port for the given scheme when absent.
func splitHostPort(authority, scheme string) (host, port string) {
	h, p, err := net.SplitHostPort(authority)
	if err == nil {
		return h, p
	}
	if scheme == "https" {
		return authority, "443"
	}
	return authority, "80"
}

// streamRequestBody reads the client request body in 4096-byte chunks and
// forwards each to the session; the final read carries isLast so the
// backend can begin producing a response.
func (e *Engine) streamRequestBody(session *backendclient.Session, body io.Reader, timeout time.Duration) error {
	buf := make([]byte, requestChunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			done := make(chan error, 1)
			go func() {
				_, err := session.SendChunk(chunk, rerr == io.EOF)
				done <- err
			}()
			select {
			case err := <-done:
				if err != nil {
					return err
				}
			case <-time.After(timeout):
				return proxyerrors.ErrStageTimeout
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				if n == 0 {
					if _, err := session.SendChunk(nil, true); err != nil {
						return err
					}
				}
				return nil
			}
			return rerr
		}
	}
}

// awaitAndRespond waits for the initial response within the
// waiting_for_response stage timeout, applies the 204/304 shortcut, then
// selects and drives a body handler. The returned BackendUS is the total
// backend exchange duration when a terminal event supplied one, else the
// time to the initial response.
func (e *Engine) awaitAndRespond(w http.ResponseWriter, session *backendclient.Session) Result {
	ev, ok := e.waitEvent(session, e.Timeouts.WaitingForResponse)
	if !ok {
		e.recordError("waiting_for_response")
		w.WriteHeader(http.StatusServiceUnavailable)
		return Result{Outcome: OutcomeError}
	}

	switch ev.Kind {
	case backendclient.EventError:
		e.recordError("initial_response")
		w.WriteHeader(http.StatusServiceUnavailable)
		return Result{Outcome: OutcomeError, BackendUS: ev.DurationUS}

	case backendclient.EventInitialResponse:
		if bodyhandler.ShortCircuit(ev.StatusCode, ev.ResponseHeader) {
			clean := headers.SanitizeResponseHeaders(ev.ResponseHeader)
			for k, v := range clean {
				w.Header()[k] = v
			}
			w.WriteHeader(ev.StatusCode)
			if e.Metrics != nil {
				e.Metrics.ObserveBackend("ok", time.Duration(ev.DurationUS)*time.Microsecond)
			}
			return Result{Outcome: OutcomeOK, BackendUS: ev.DurationUS, StatusCode: ev.StatusCode}
		}

		backendUS := ev.DurationUS
		next := e.nextEventFn(session, e.Timeouts.ReceivingResponse, &backendUS)
		flusher, _ := w.(http.Flusher)

		var runErr error
		switch bodyhandler.Select(ev.ResponseHeader) {
		case bodyhandler.Chunked:
			runErr = bodyhandler.RunChunked(w, flusher, ev.StatusCode, ev.ResponseHeader, next)
		case bodyhandler.Buffered:
			runErr = bodyhandler.RunBuffered(w, ev.StatusCode, ev.ResponseHeader, next)
		default:
			runErr = bodyhandler.RunStreaming(w, flusher, ev.StatusCode, ev.ResponseHeader, next)
		}

		if runErr != nil {
			e.recordError("receiving_response")
			return Result{Outcome: OutcomeError, BackendUS: backendUS, StatusCode: ev.StatusCode}
		}

		if e.Metrics != nil {
			e.Metrics.ObserveBackend("ok", time.Duration(backendUS)*time.Microsecond)
		}
		return Result{Outcome: OutcomeOK, BackendUS: backendUS, StatusCode: ev.StatusCode}

	default:
		e.recordError("protocol")
		w.WriteHeader(http.StatusServiceUnavailable)
		return Result{Outcome: OutcomeError}
	}
}

// waitEvent reads one event off session within timeout.
func (e *Engine) waitEvent(session *backendclient.Session, timeout time.Duration) (backendclient.Event, bool) {
	select {
	case ev, ok := <-session.Events():
		return ev, ok
	case <-time.After(timeout):
		return backendclient.Event{}, false
	}
}

// nextEventFn adapts the session's channel into the pull-style iterator
// expected by bodyhandler, bounding each wait by the stage timeout and
// recording the terminal event's total duration into backendUS.
func (e *Engine) nextEventFn(session *backendclient.Session, timeout time.Duration, backendUS *int64) func() (backendclient.Event, bool, error) {
	return func() (backendclient.Event, bool, error) {
		ev, ok := e.waitEvent(session, timeout)
		if !ok {
			return backendclient.Event{}, false, proxyerrors.ErrStageTimeout
		}
		if (ev.Kind == backendclient.EventDone || ev.Kind == backendclient.EventError) && ev.DurationUS > 0 {
			*backendUS = ev.DurationUS
		}
		return ev, true, nil
	}
}

func (e *Engine) recordError(stage string) {
	if e.Metrics != nil {
		e.Metrics.IncBackendError(stage)
	}
	e.Log.WithField("stage", stage).Warn("backend exchange failed")
}
