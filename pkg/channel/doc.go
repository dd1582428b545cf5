// Package channel provides the delivery transports of the dispatch pipeline.
//
// Every transport implements Sender: it reports its notification.Channel and
// delivers an opaque subject and body to an address. Transport failures come
// back as *DeliveryError, which matches notification.ErrDelivery and records
// whether the failure is permanent. Registry picks the sender for a channel.
//
// Available senders:
//
//   - EmailSender  Postmark transactional email
//   - SMSSender    JSON over HTTP to an SMS gateway, with retries and a circuit breaker
//   - FileSender   writes messages to disk for local development
//
// Senders carry no eligibility rules; those live in package preference.
package channel
