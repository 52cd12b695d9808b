// Package thumbnail implements the thumbnail subsystem: source
// fingerprint-keyed caching of resized image previews.
//
// The pipeline for a cache miss is sniff -> decode -> orient -> resize ->
// encode, run at most once per (fingerprint, size) key no matter how many
// requests arrive concurrently. Results are stored in a disk-backed LRU
// cache with a byte budget; failures are returned to every waiter but are
// never cached.
package thumbnail
