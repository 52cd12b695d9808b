// Package workers provides worker-count sizing and a fixed-capacity pool
// for offloading CPU-bound work (image decode and resize) away from
// request-serving goroutines.
package workers
