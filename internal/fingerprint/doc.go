// Package fingerprint derives stable identity tokens for source files.
//
// A Fingerprint doubles as a cache key component for the thumbnail
// subsystem and as a cache-busting token embedded in generated URLs:
// unchanged sources keep a stable token, changed sources get a new one,
// so no explicit invalidation protocol is needed between the layers.
package fingerprint
