// Package startup handles application initialization: build information,
// configuration validation, directory setup, and the structured startup
// and shutdown logging that frames the server's lifecycle.
//
// Configuration values arrive already parsed (the CLI layer owns flags and
// environment variables); Finalize resolves paths, verifies directory
// access, and refuses to start when a required directory is unusable. The
// thumbnail cache root and the database directory must be writable; the
// data and linked directories only produce warnings, since a server with
// no objects yet is still a valid server.
package startup
