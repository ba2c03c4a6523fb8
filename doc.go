// Package fiscal turns heterogeneous municipal budget extracts into a single
// reconciled, queryable picture of budget versus actual spending. It is
// designed to be deterministic, auditable, and local-first: the same inputs
// always produce the same artifacts, and every normalization decision is
// traceable back to a file, row, and column.
//
// The core functionalities include:
//   - Schema Normalization: Mapping each source system's CSV layout onto one
//     canonical record shape through declarative, year-aware column mappings.
//   - Hierarchy Resolution: Merging fund, department, program, and line-item
//     identities across years into a single tree, recording renames as
//     aliases and reparentings as conflicts.
//   - Reconciliation: Pairing budgeted and actual amounts per fiscal year,
//     entity, and category, classifying each pairing against a variance
//     threshold, and rolling leaf facts up through the hierarchy.
//   - Aggregation: Building small, bounded analytical views over the
//     reconciled facts, grouped by reference dimensions such as fund type or
//     department group.
//   - Publication: Writing entities, facts, and views as Parquet artifacts
//     with a JSON manifest and a human-readable audit report, committed
//     atomically so a consumer never observes a half-written run.
//
// This package serves as the foundational logic for the `fsc` command-line
// tool, ensuring that all operations are consistent and based on a single
// source of truth.
package fiscal

// Version identifies the engine build stamped into every manifest.
const Version = "0.9.0"
