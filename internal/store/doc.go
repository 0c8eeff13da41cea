// Package store provides durable storage for regression records.
//
// Two backends implement RegressionStore:
//   - SQLiteStore (default): one row per regression, nested values stored as
//     canonical JSON TEXT
//   - BadgerStore: CBOR-encoded values with a secondary lineage index
//
// # Critical Patterns
//
// Created Is Write-Once
//   - UpdateRegression never writes the created column/field
//   - The caller's Created value is ignored on update
//
// Deterministic Lookup
//   - LookupByLineage returns the regression with the highest updated_seq,
//     ties broken by id ascending
//   - ListRegressions orders by updated_seq ASC, id ASC
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
