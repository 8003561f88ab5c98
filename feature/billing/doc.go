// Package billing implements vendor billing reconciliation.
//
// It compares the quantities a company actually consumes across its vendor
// platforms (RMM devices, endpoint security agents, Microsoft 365 tenants
// and licenses) against the quantities on the company's PSA agreement lines,
// and surfaces the differences as reviewable items:
//  1. Vendor counts: aggregated through core/vendor sources over the synced
//     mirror tables.
//  2. PSA lines: fetched live through core/psa.
//  3. Snapshot: one persisted run with its items and summary totals.
//
// # Components
//
//   - Engine: runs one reconciliation pass and persists the snapshot.
//   - MappingResolver: maps vendor product keys to PSA product names, with
//     wildcard fallback.
//   - WriteBackCoordinator: pushes corrected quantities back to PSA lines.
//   - ActivityRecorder: append-only audit log of every billing event.
//   - Exporter: renders a snapshot to XLSX and uploads it to object storage.
//   - Service: operator-facing orchestration with per-company leasing.
//   - Handler: exposes the HTTP endpoints.
//
// # HTTP Endpoints
//
//   - POST /billing/reconcile : Reconcile one company.
//   - POST /billing/reconcile-all : Reconcile every active company.
//   - GET  /billing/snapshots/:id/items : Snapshot items, discrepancies first.
//   - POST /billing/snapshots/:id/export : Export a snapshot to XLSX.
//   - POST /billing/items/:id/approve : Approve a pending item.
//   - POST /billing/items/:id/dismiss : Dismiss a pending item.
//   - POST /billing/writeback : Write a batch of items back to the PSA.
//   - GET  /billing/activity/:companyID : Billing activity log.
package billing
