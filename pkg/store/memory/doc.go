// Package memory is an in-process implementation of every store the dispatch
// pipeline consumes: recipient profiles, digest configurations and
// subscriptions, notifications, the work queue and digest buckets.
//
// It follows the same contracts as package postgres, including lease-based
// claims and atomic postpone and drain, and is used by tests and by notifyd
// when no database is configured.
package memory
