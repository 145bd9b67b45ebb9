// Package server exposes the gatekeeper daemon's loopback HTTP API:
// page captures in, decisions and settings out, and a per-tab SSE
// stream carrying UI signals back to browser surfaces.
package server
