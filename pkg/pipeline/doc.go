// Package pipeline orchestrates the capture-to-enforcement flow.
//
// Each captured page runs through four stages in strict sequence:
//
//	sense    — parse the URL into page features; malformed input aborts
//	classify — consult the LLM classifier, behind a TTL+FIFO cache and
//	           an in-flight group that deduplicates concurrent calls
//	           for the same host|path|hour key
//	decide   — evaluate the pure policy precedence chain
//	enforce  — on a blocking decision, open an appeal session and
//	           signal the tab's UI surface
//
// A stage failure degrades the run rather than halting it: a failed
// classification proceeds with no classifier opinion, a failed decide
// falls back to allow. Only an unparseable URL aborts outright.
package pipeline
