// Package client is the CLI's view of the safelog HTTP API.
//
// Client is the transport-agnostic contract; HTTPClient implements it with
// net/http and JSON. Login stores the bearer token on the HTTPClient and
// every authenticated call sends it. Calls made before Login fail with
// ErrNotLoggedIn without touching the network.
//
// Status codes map to sentinel errors (ErrUnauthorized, ErrForbidden,
// ErrNotFound, ErrUnavailable); other failures surface as *APIError with the
// server's detail message.
package client
