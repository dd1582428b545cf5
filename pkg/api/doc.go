// Package api exposes notification intake over HTTP.
//
//	POST /notifications
//
// The body is a JSON notification. A queued notification answers 202 with its
// id; validation failures answer 400 and duplicate channels 409. Errors use the
// envelope {"error": {"code": "...", "message": "..."}}.
package api
