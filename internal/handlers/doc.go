// Package handlers implements the HTTP API: object listings, directory
// browsing, file downloads, thumbnails, zip archives, and the admin and
// health endpoints.
package handlers
