// Package store is the object registry: the durable record of what the
// server shares. An object either owns a directory under the data root or
// links to an existing path elsewhere on disk; each can carry an expiry
// time and an unlisted access key.
package store
