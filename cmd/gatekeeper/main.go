// Gatekeeper is a local focus-guard daemon for browser surfaces.
//
// It receives page captures from lightweight browser extensions over
// loopback HTTP, classifies each page against the user's focus policy,
// and pushes enforcement signals back to the originating tab over a
// server-sent-event stream:
//   - Schedule, whitelist and blacklist policy with an LLM classifier
//     as the final opinion
//   - Negotiated temporary access through an appeal conversation
//   - Authenticated-encrypted settings with a strict-mode time lock
//
// Usage:
//
//	# Start the daemon with default configuration
//	gatekeeper run
//
//	# Start with a custom configuration file
//	gatekeeper run --config /path/to/config.yaml
//
//	# Inspect the active settings
//	gatekeeper settings show
//
//	# Lock settings for two days
//	gatekeeper settings strict --days 2
//
//	# Show version information
//	gatekeeper version
package main

func main() {
	Execute()
}
