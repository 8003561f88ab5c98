// Package psa defines the capability interface the reconciliation engine
// consumes from the Professional Services Automation platform (the system of
// record for client contracts and billing), plus a thin default REST client.
//
// The engine reads current billing lines and, on operator-approved write-back,
// pushes corrected quantities. Everything else the console does with the PSA
// (agreement sync, company matching, ticketing) lives outside this package.
package psa
