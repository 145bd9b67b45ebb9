// Package agent provides the capability-based dispatch layer for gatekeeper.
//
// Agents are named handlers that declare the request kinds they support.
// The registry performs synchronous lookup and capability checking, then
// delegates handling to the agent. Every invocation returns a uniform
// ok/error envelope; agents never panic or raise across the dispatch
// boundary.
//
// The registry performs no validation beyond name lookup and the declared
// supported-kinds check. Payload shape validation is each agent's own
// responsibility.
package agent
