// Package notification defines the domain model shared by the dispatch
// pipeline: notifications and their per-channel messages, recipient profiles,
// digest configurations and subscriptions, the sentinel error taxonomy, and
// the narrow store interfaces the pipeline consumes.
//
// Errors returned by every package in this module wrap one of ErrNotFound,
// ErrValidation, ErrDelivery or ErrConstraintViolation, so callers can branch
// with errors.Is regardless of the backend.
package notification
