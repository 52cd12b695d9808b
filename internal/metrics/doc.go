// Package metrics defines all Prometheus metrics for filedl. Metrics are
// registered via promauto at package init and recorded from the HTTP
// middleware, the thumbnail subsystem, the browse scanner and the object
// store.
package metrics
