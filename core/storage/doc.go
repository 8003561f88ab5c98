// Package storage provides the S3-compatible object storage client used for
// exported reconciliation reports.
//
// The Client interface wraps the Minio SDK operations the console needs, so
// handlers and the export service can be tested against the mock in
// storage/mocks without a live endpoint.
package storage
