// Package istri wires the Istri marketplace identity service: a document
// store backend (SurrealDB, PostgreSQL, or in-memory), the identifier
// allocation core, the one-time identifier migration, and the HTTP API that
// exposes signup, profile lookup, identifier resolution, and the operator
// migration endpoints.
//
// The package is organized around three subcommands:
//
//	istri run       start the HTTP server
//	istri status    report how many profiles still use old-format keys
//	istri migrate   run the one-time identifier migration
//
// Store and server settings come from flags and environment variables; see
// [Parse].
package istri
