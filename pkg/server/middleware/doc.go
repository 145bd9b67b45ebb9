// Package middleware provides the HTTP middleware chain for the daemon's
// API: request-id propagation, panic recovery, request logging, per-request
// timeouts and CORS for extension origins.
package middleware
