// Package kcidb turns checkout nodes into KCIDB revision records and
// forwards them downstream.
//
// The pipeline per node is Transform, then Validate against the embedded
// KCIDB v4 schema, then Submit to a Sink. Invalid revisions are never
// submitted.
package kcidb
