// Package proxyerrors declares the semantic error kinds of the proxy,
// wrapped with %w into the errors its components return so that they can
// be matched with errors.Is. The proxy engine chooses HTTP status codes by
// the stage at which a request failed, not by these kinds.
package proxyerrors

import "errors"

var (
	// ErrNoRoute: no backend registered for the inbound authority.
	ErrNoRoute = errors.New("no route for authority")

	// ErrBackendStartFailed: could not initiate the upstream request.
	ErrBackendStartFailed = errors.New("backend start failed")

	// ErrBackendIO: failure while streaming the request body or reading a
	// response event.
	ErrBackendIO = errors.New("backend io error")

	// ErrStageTimeout: no event received within the stage's timeout.
	ErrStageTimeout = errors.New("stage timeout")

	// ErrClientIO: failure while writing to the inbound client.
	ErrClientIO = errors.New("client io error")

	// ErrRouteRefresh: failure inside the route refresher.
	ErrRouteRefresh = errors.New("route refresh error")
)
