// Package core builds the processed table of SINAN violence notifications
// involving children and adolescents (ages 0 to 17).
//
// # Architecture
//
// A build runs four stages:
//
//  1. Load: a Backend reads the yearly parquet files, keeping only in-scope
//     age codes and the requested columns.
//  2. Decode: the ReferenceProcessor replaces codes with dictionary labels.
//  3. Scope: rows without an affirmative violence flag are dropped.
//  4. Derive: year, state, municipality, violence type, age bucket, sex,
//     relationship and referral columns are added.
//
// # Backends
//
// Backends register themselves with RegisterBackend from init():
//
//	func init() {
//	    core.RegisterBackend(core.BackendDefinition{
//	        Name: "reference",
//	        New:  func(cfg core.BackendConfig) (core.Backend, error) { ... },
//	    })
//	}
//
// The reference backend materialises every file in memory. The duckdb
// backend (cgo builds only) pushes the age predicate into DuckDB. Both
// render values through table.FormatValue and order rows by file name,
// then file row, so they produce identical tables. SelectBackend falls
// back to the reference backend when the fast one cannot run.
//
// # Caching
//
// Service memoises one Result per BuildOptions with a TTL and serialises
// builds through a BuildLimiter. A build that runs out of memory is retried
// once after the cache is cleared. The precomputed artifact (SaveArtifact,
// LoadArtifact) lets a process skip the source files entirely.
//
// # Error codes
//
// MapError turns failures into coded user messages (SRC001, MEM001, ...);
// see error_messages.go for the full list.
package core
