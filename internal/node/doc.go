// Package node provides the record types shared by every bridge component.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import node; node imports nothing internal.
//
// Key design constraints:
//   - Node values are never mutated after decoding; Regression copies them
//   - All JSON tags use snake_case, except the upstream "_id" key
//   - Records are validated at the decode boundary, never mid-logic
//   - Lineage identity is content-addressed (canonical JSON + SHA-256)
package node
