// Package lock provides keyed leases for long-running jobs.
//
// Reconciliation and PSA write-back for a company must not run concurrently:
// both read vendor state and mutate the same snapshot/item rows. A lease
// keyed by company ID serializes them across all console instances.
//
// Leases are backed by redislock with a TTL so a crashed holder cannot wedge
// the key forever. When Redis is not configured (single-instance installs),
// the Locker degrades to no-op leases rather than refusing to run.
package lock
