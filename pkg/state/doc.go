// Package state tracks gatekeeper's ephemeral runtime state: temporary
// per-host allow grants with expiry, and active appeal sessions keyed by
// tab.
//
// Grants expire through a per-host timer plus a periodic cron sweep as
// backstop; either path deletes the grant and notifies the expiry hook so
// open tabs on the host can be re-evaluated. Appeal sessions are the sole
// authorization for granting a temporary allow: a grant request is honored
// only if a session exists for the exact (tab, hostname) pair.
//
// State lives in memory and is opportunistically snapshotted to storage on
// shutdown and restored on the next startup. This is a best-effort
// durability measure, not a consistency guarantee: a snapshot may be lost.
package state
