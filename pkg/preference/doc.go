// Package preference decides, for one message on one channel, whether it is
// sent immediately, dropped, or deferred into a digest bucket.
//
// Evaluate is a pure function over a resolved Input; the dispatcher looks up
// the recipient profile, subscriptions and the consolidation toggle before
// calling it, which keeps every rule testable without stores or transports.
package preference
