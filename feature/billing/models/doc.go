// Package models defines the persisted entities of the billing
// reconciliation subsystem: mappings, snapshots, items, activity entries,
// assignments, the local PSA billing-line mirror, and the normalized vendor
// inventory tables read by the count sources.
package models
