// Package server provides the loopback HTTP infrastructure for the CLI's
// OAuth2 authorization flow.
//
// When the user runs the auth command, a temporary HTTP server starts on
// localhost, handles the Spotify callback, and shuts down after receiving
// the OAuth token.
//
// [Middleware] wraps handlers in reverse order (last added executes first),
// following the standard Go pattern. The [BasicRouter] implementation uses
// [http.ServeMux] internally with method filtering.
//
// OAuthHandler implements the OAuth2 authorization code callback: it
// validates the state parameter (CSRF protection), exchanges the
// authorization code for tokens, and sends the result through a channel.
// It only processes one callback to prevent replay attacks.
package server

import (
	"net/http"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers.
// Implementations serve one or more path patterns.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}
