// Package appeal arbitrates conversational requests for temporary access
// to a blocked host.
//
// The arbiter forwards the running conversation plus page context to an
// LLM coach and parses its verdict: a reply for the user, whether access
// is granted, and for how many minutes. Malformed verdicts degrade to a
// denial with fallback text; the arbiter never fails open.
package appeal
