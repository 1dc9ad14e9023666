// Package scope builds the synthetic objects a sandboxed script runs
// against.
//
// A Root is a revocable goja proxy whose property traps forward to a Bag.
// Two bags exist:
//   - Globals resolves names through four tiers (fixed built-ins,
//     evaluation-local bindings, host functions, the persistent global
//     store) and records every tier 4 access in a Tracker.
//   - Instance exposes the read-only `idempotent` flag and the per-instance
//     store, with `refresh` writable in every mode.
//
// Values reached through tiers 1–3 are handed out through a Wrapper so a
// script cannot climb from a built-in back to the real global object.
//
// Nothing in this package is safe for concurrent use; the sandbox calls it
// with its engine lock held.
package scope
