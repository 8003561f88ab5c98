// Package middleware groups the Fiber middlewares used by the HTTP surface.
package middleware
