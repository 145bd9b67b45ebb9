// Package policy implements the pure decision engine that turns a page
// observation into an allow/block/prompt-appeal decision.
//
// Evaluation is a fixed precedence chain over the input bundle: schedule
// window, whitelist, temporary allow, blacklist, strict mode, classifier
// opinion, then a fail-open default. The first matching rule wins; no rule
// is re-evaluated. The engine holds no state and performs no I/O, which
// keeps it trivially testable.
package policy
