// Package engine implements the reconciliation core that keeps a task
// board in sync with an external system of record.
//
// One reconciliation pass is: fetch source records, list existing board
// items, plan, apply. The engine owns plan and apply; fetching and listing
// belong to the providers and the tracker gateway.
//
// ARCHITECTURE:
//
// Single-threaded planning:
// The Planner normalizes records, matches them against a title index built
// once from the existing snapshot, and computes three disjoint action sets
// (create, update, resolve). Planning runs to completion before any
// mutation is issued, so every decision sees one consistent snapshot.
//
// Pooled execution:
// The Executor dispatches the planned mutations through a bounded worker
// pool. No ordering is guaranteed across actions except that a roll-up
// parent is created before its children, enforced by issuing parent
// creates synchronously before fanning out. A per-item failure is recorded
// in the report and never cancels sibling work.
//
// Idempotence:
// Titles are derived deterministically from source identifiers, so
// re-running a pass against an unchanged board plans nothing. The board
// itself is the durability layer - the engine keeps no state between runs
// and treats every snapshot as possibly stale by the time mutations land.
package engine
