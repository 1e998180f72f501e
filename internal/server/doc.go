// Package server assembles the Fiber application that exposes the tree store
// over HTTP. It owns the middleware chain (panic recovery, request IDs) and
// validates the wiring between the logger, the synchronizer and the listen
// port; the concrete store routes live in the routes subpackage so tests can
// mount them onto a bare app.
package server
