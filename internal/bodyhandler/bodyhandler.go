// Package bodyhandler implements the three response-forwarding
// strategies: Chunked, Buffered, and Streaming.
package bodyhandler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/OpenAperture/router/internal/backendclient"
	"github.com/OpenAperture/router/internal/headers"
	"github.com/OpenAperture/router/internal/proxyerrors"
)

// Kind identifies the selected strategy.
type Kind int

const (
	Chunked Kind = iota
	Buffered
	Streaming
)

// bufferedThreshold is the Content-Length boundary: strictly less than
// this value selects Buffered.
const bufferedThreshold = 102400

// Select picks a strategy from the backend's initial response headers:
// chunked transfer encoding wins, then a small known length buffers,
// everything else streams.
func Select(h http.Header) Kind {
	if te := h.Get("Transfer-Encoding"); strings.Contains(strings.ToLower(te), "chunked") {
		return Chunked
	}
	if cl := h.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n < bufferedThreshold {
			return Buffered
		}
	}
	return Streaming
}

// ShortCircuit reports whether the response is complete at the header
// stage: status 204 or 304 with neither Content-Length nor
// Transfer-Encoding present. Some origins never send a body for these,
// so waiting for one would hang until the stage timeout.
func ShortCircuit(statusCode int, h http.Header) bool {
	if statusCode != http.StatusNoContent && statusCode != http.StatusNotModified {
		return false
	}
	return h.Get("Content-Length") == "" && h.Get("Transfer-Encoding") == ""
}

// writeStatusAndHeaders writes the sanitized status line and headers to w.
// Transfer-Encoding is dropped: the server layer owns the transfer framing
// and re-chunks responses of unknown length on its own.
func writeStatusAndHeaders(w http.ResponseWriter, statusCode int, h http.Header) {
	clean := headers.SanitizeResponseHeaders(h)
	dst := w.Header()
	for k, v := range clean {
		dst[k] = v
	}
	dst.Del("Transfer-Encoding")
	w.WriteHeader(statusCode)
}

// RunChunked forwards each response_chunk as it arrives using chunked
// transfer encoding. It returns once a Done or Error event is observed, or
// ctx-equivalent cancellation occurs via the events channel closing.
func RunChunked(w http.ResponseWriter, flusher http.Flusher, statusCode int, h http.Header, next func() (backendclient.Event, bool, error)) error {
	writeStatusAndHeaders(w, statusCode, h)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		ev, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch ev.Kind {
		case backendclient.EventChunk:
			if _, werr := w.Write(ev.Bytes); werr != nil {
				return fmt.Errorf("%w: %v", proxyerrors.ErrClientIO, werr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		case backendclient.EventDone:
			return nil
		case backendclient.EventError:
			return ev.Err
		}
	}
}

// RunBuffered accumulates chunks in arrival order, then sends a single
// status+headers+body reply once Done arrives.
func RunBuffered(w http.ResponseWriter, statusCode int, h http.Header, next func() (backendclient.Event, bool, error)) error {
	var body []byte
	for {
		ev, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch ev.Kind {
		case backendclient.EventChunk:
			body = append(body, ev.Bytes...)
		case backendclient.EventDone:
			writeStatusAndHeaders(w, statusCode, h)
			if _, werr := w.Write(body); werr != nil {
				return fmt.Errorf("%w: %v", proxyerrors.ErrClientIO, werr)
			}
			return nil
		case backendclient.EventError:
			return ev.Err
		}
	}
}

// RunStreaming writes status+headers immediately (no body), then relays
// response_chunk events to w until Done or Error. Used for bodies of
// unknown or oversized length, never buffered in full.
func RunStreaming(w http.ResponseWriter, flusher http.Flusher, statusCode int, h http.Header, next func() (backendclient.Event, bool, error)) error {
	writeStatusAndHeaders(w, statusCode, h)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		ev, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch ev.Kind {
		case backendclient.EventChunk:
			if _, werr := w.Write(ev.Bytes); werr != nil {
				return fmt.Errorf("%w: %v", proxyerrors.ErrClientIO, werr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		case backendclient.EventDone:
			return nil
		case backendclient.EventError:
			return ev.Err
		}
	}
}
