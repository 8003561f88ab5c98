// Package database manages the MySQL connection used by the record store.
//
// It wraps GORM connection setup with sane pool defaults, DSN-level timeouts,
// and an initial ping so a misconfigured database fails fast at startup
// instead of on the first reconciliation run.
package database
