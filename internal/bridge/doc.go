// Package bridge runs the event-consumption loop shared by the regression
// tracker and the KCIDB sender.
//
// A Bridge owns one subscription for its whole lifetime. It retrieves one
// node at a time, hands it to a Handler, and flushes before the next
// retrieval, so nodes are processed strictly in delivery order.
//
// Error policy:
//   - Malformed records and validation failures are logged and skipped.
//   - Transport and persistence failures stop the loop and are returned.
//   - Cancellation stops the loop cleanly; the in-flight node completes.
//
// The subscription is always released, whichever way Run returns.
package bridge
