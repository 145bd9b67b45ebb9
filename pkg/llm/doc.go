// Package llm is the chat-completion client for the external language-model
// service.
//
// The service's internal behavior is opaque; only its contract matters
// here. The client speaks the OpenAI-compatible chat completions format, so
// any compatible endpoint (hosted or local) can back the classifier and the
// appeal arbiter. Calls are subject to a timeout and bounded retries; every
// failure surfaces as a typed error that callers degrade from rather than
// propagate.
package llm
