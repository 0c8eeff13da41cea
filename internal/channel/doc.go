// Package channel exposes the upstream notification stream to the bridge.
//
// A Channel hands out Subscriptions filtered by exact-match field
// constraints. A Subscription yields one matching node per blocking Receive
// call and must be released with Unsubscribe.
//
// Implementations:
//   - NATSChannel: live stream over a NATS subject
//   - Memory: in-process broadcast used by tests and embedding code
//   - FileChannel: finite replay of a YAML/JSON node list
package channel
