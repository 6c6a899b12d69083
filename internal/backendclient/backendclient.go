// Package backendclient performs one outbound HTTP request whose body may
// be streamed in and whose response is delivered to the caller as a lazy,
// ordered event sequence over a channel.
package backendclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	ot "github.com/opentracing/opentracing-go"

	"github.com/OpenAperture/router/internal/proxyerrors"
	"github.com/OpenAperture/router/internal/tracing"
)

// EventKind discriminates the session event sum type.
type EventKind int

const (
	EventInitialResponse EventKind = iota
	EventChunk
	EventDone
	EventError
)

// Event is one element of the ordered sequence:
// InitialResponse -> Chunk* -> (Done | Error), or Error alone.
type Event struct {
	Kind EventKind

	// EventInitialResponse
	StatusCode     int
	ReasonPhrase   string
	ResponseHeader http.Header

	// EventChunk
	Bytes []byte

	// EventDone / EventInitialResponse / EventError
	DurationUS int64

	// EventError
	Err error
}

// Client issues outbound HTTP requests. A single Client is safe for
// concurrent use by many goroutines; it owns no per-request mutable state
// beyond each Session's own channel and pipe.
type Client struct {
	transport *http.Transport

	// ProxyFunc, when non-nil, is applied to the outbound URL to pick an
	// upstream HTTP proxy, except for https destinations and loopback
	// hostnames, which always connect directly.
	// http.ProxyFromEnvironment-compatible signature.
	ProxyFunc func(*http.Request) (*url.URL, error)

	// Tracer, when non-nil, receives one client span per backend exchange.
	// Defaults to opentracing-go's NoopTracer.
	Tracer ot.Tracer
}

// New returns a Client whose dials are bounded by connectTimeout. The
// response header and body waits are governed by the caller's per-stage
// timeouts, not by the transport.
func New(connectTimeout time.Duration) *Client {
	c := &Client{
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			MaxIdleConnsPerHost:   64,
			IdleConnTimeout:       20 * time.Second,
			ExpectContinueTimeout: 30 * time.Second,
		},
	}
	c.transport.Proxy = c.proxy
	return c
}

// bypassHosts are loopback/dev hostnames that are never proxied
// (case-sensitive match, ignoring port).
var bypassHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"lvh.me":    true,
}

func (c *Client) proxy(req *http.Request) (*url.URL, error) {
	if c.ProxyFunc == nil {
		return nil, nil
	}
	if req.URL.Scheme == "https" {
		return nil, nil
	}
	host := req.URL.Hostname()
	if bypassHosts[host] {
		return nil, nil
	}
	return c.ProxyFunc(req)
}

// Session is the state and event channel of one in-flight upstream HTTP
// exchange.
type Session struct {
	events  chan Event
	reqBody *io.PipeWriter
	cancel  context.CancelFunc

	closeOnce sync.Once
	start     time.Time
}

// Events returns the ordered event channel for this session.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Close releases the session's resources: the outbound socket (via context
// cancellation) and the request body pipe, if still open. Safe to call more
// than once and from any goroutine; used on every exit path (success,
// timeout, error, cancellation).
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.reqBody != nil {
			_ = s.reqBody.CloseWithError(errors.New("session closed"))
		}
		s.cancel()
	})
}

func elapsedUS(since time.Time) int64 {
	return time.Since(since).Microseconds()
}

// emit delivers ev unless the session has been abandoned; it reports
// whether delivery happened. Sends must never block past cancellation or
// the producing goroutine would leak once the caller stops reading.
func (s *Session) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Start issues the request on a background goroutine, which opens the
// connection and writes the request line and headers; if !hasBody, the
// request phase needs nothing further from the caller. Start itself does
// not wait for the connection: a dial failure arrives as an Error event. It
// returns a Session whose Events() channel will receive exactly one
// InitialResponse or Error event, followed (for InitialResponse) by Chunk*
// and a terminal Done or Error event.
func (c *Client) Start(ctx context.Context, method string, target *url.URL, header http.Header, hasBody bool) (*Session, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		events: make(chan Event, 16),
		cancel: cancel,
		start:  start,
	}

	var body io.Reader
	if hasBody {
		pr, pw := io.Pipe()
		s.reqBody = pw
		body = pr
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", proxyerrors.ErrBackendStartFailed, err)
	}
	req.Header = header.Clone()
	if hasBody {
		req.ContentLength = -1
	}

	client := &http.Client{Transport: c.transport}

	span, spanCtx := tracing.StartBackendSpan(ctx, c.Tracer, target.Host, method, target.String())
	req = req.WithContext(spanCtx)

	go func() {
		defer close(s.events)

		resp, err := client.Do(req)
		if err != nil {
			tracing.FinishBackendSpan(span, 0, err)
			s.emit(ctx, Event{Kind: EventError, Err: fmt.Errorf("%w: %v", proxyerrors.ErrBackendIO, err), DurationUS: elapsedUS(start)})
			return
		}
		defer resp.Body.Close()
		tracing.FinishBackendSpan(span, resp.StatusCode, nil)

		// The transport moves Transfer-Encoding out of the header map into
		// its own field; restore it so the caller can see a chunked reply.
		respHeader := resp.Header
		if len(resp.TransferEncoding) > 0 {
			respHeader = resp.Header.Clone()
			respHeader.Set("Transfer-Encoding", strings.Join(resp.TransferEncoding, ", "))
		}

		if !s.emit(ctx, Event{
			Kind:           EventInitialResponse,
			StatusCode:     resp.StatusCode,
			ReasonPhrase:   httpReasonPhrase(resp),
			ResponseHeader: respHeader,
			DurationUS:     elapsedUS(start),
		}) {
			return
		}

		buf := make([]byte, 32*1024)
		for {
			n, rerr := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !s.emit(ctx, Event{Kind: EventChunk, Bytes: chunk}) {
					return
				}
			}
			if rerr != nil {
				if rerr == io.EOF {
					s.emit(ctx, Event{Kind: EventDone, DurationUS: elapsedUS(start)})
				} else {
					s.emit(ctx, Event{Kind: EventError, Err: fmt.Errorf("%w: %v", proxyerrors.ErrBackendIO, rerr), DurationUS: elapsedUS(start)})
				}
				return
			}
		}
	}()

	// When !hasBody, body is nil and the request phase is already complete.
	return s, nil
}

// httpReasonPhrase extracts the reason phrase from the response's status
// line, falling back to the standard text for the status code.
func httpReasonPhrase(resp *http.Response) string {
	status := resp.Status
	for i := 0; i < len(status); i++ {
		if status[i] == ' ' {
			return status[i+1:]
		}
	}
	return http.StatusText(resp.StatusCode)
}

// SendChunk writes one body chunk. If isLast, it also finalizes the request
// body so the backend can begin producing a response.
func (s *Session) SendChunk(data []byte, isLast bool) (int64, error) {
	if s.reqBody == nil {
		return elapsedUS(s.start), fmt.Errorf("%w: session has no request body", proxyerrors.ErrBackendIO)
	}

	if len(data) > 0 {
		if _, err := s.reqBody.Write(data); err != nil {
			return elapsedUS(s.start), fmt.Errorf("%w: %v", proxyerrors.ErrBackendIO, err)
		}
	}
	if isLast {
		if err := s.reqBody.Close(); err != nil {
			return elapsedUS(s.start), fmt.Errorf("%w: %v", proxyerrors.ErrBackendIO, err)
		}
	}
	return elapsedUS(s.start), nil
}
