// Package http contains the chi HTTP handlers for the verify, admin and
// progress endpoints. Handlers decode and validate payloads, delegate to the
// license engine, and translate domain errors into RFC 7807 responses.
package http
