// Package browse lists directories under the served root and watches them
// for changes. Listings are built directly from the filesystem and carry
// versioned thumbnail URLs for image entries.
package browse
