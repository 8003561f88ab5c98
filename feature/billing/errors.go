package billing

import "errors"

// Precondition and lookup errors surfaced synchronously to callers.
// These represent configuration problems, not transient faults, and are never
// swallowed.
var (
	// ErrCompanyNotFound means the company ID does not exist.
	ErrCompanyNotFound = errors.New("company not found")

	// ErrItemNotFound means the reconciliation item ID does not exist.
	ErrItemNotFound = errors.New("reconciliation item not found")

	// ErrSnapshotNotFound means the snapshot ID does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrNoIntegrations means the company has no active vendor integrations,
	// so there is nothing to reconcile against.
	ErrNoIntegrations = errors.New("company has no active vendor integrations")

	// ErrNoIntegration means the item's vendor has no active integration for
	// the company, so the live count cannot be re-fetched.
	ErrNoIntegration = errors.New("no active integration for item vendor")

	// ErrMissingPsaLink means the item lacks a linked agreement or billing
	// line identifier and cannot be written back.
	ErrMissingPsaLink = errors.New("item is not linked to a PSA agreement line")

	// ErrInvalidTransition means the requested status change is not allowed
	// from the item's current status.
	ErrInvalidTransition = errors.New("invalid item status transition")

	// ErrRunInProgress means another reconciliation or write-back currently
	// holds the company's lease.
	ErrRunInProgress = errors.New("a reconciliation or write-back is already running for this company")
)
