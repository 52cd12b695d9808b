// Package middleware holds the HTTP middleware chain: request IDs, W3C
// access logging, Prometheus metrics, and gzip compression.
package middleware
