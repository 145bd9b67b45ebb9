// Package storage provides the persistence layer for gatekeeper.
//
// The daemon persists exactly two kinds of records: the encrypted settings
// envelope (durable) and an ephemeral-state snapshot (best effort). Both fit
// a small key-value contract, so Backend is a flat KV interface with a
// SQLite implementation for deployments and an in-memory implementation for
// tests.
package storage
