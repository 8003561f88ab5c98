// Package server holds the HTTP server configuration.
//
// The actual Fiber application is assembled in the start command; this package
// only owns the configuration surface (port and API key) so the config loader
// can bind defaults without importing Fiber.
package server
