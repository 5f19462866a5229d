// Package models defines the domain entities and identifier types shared by
// every layer of the Istri marketplace: customer/launderer/admin profiles,
// orders, disputes, chat messages, pickup addresses, and the counter and
// mapping documents that back human-readable identifier allocation.
//
// # Identifier scheme
//
// Every account has two identifiers:
//
//   - An external identifier: the opaque, immutable key issued by the
//     authentication provider at signup (for example a 28-character provider
//     UID). It never changes and is never shown to users.
//   - A human-readable identifier ([HumanID]): a short, role-prefixed,
//     sequential key such as CUST-0001 or LAUN-0042 that serves as the
//     application's primary key for the account going forward.
//
// Profiles written under the current scheme always carry the external
// identifier in their external_id field. Profiles created before the scheme
// existed are keyed directly by the external identifier and lack that field;
// [IsLegacyKey] detects them during migration bootstrap.
//
// # Document conversion
//
// Entities are persisted as schemaless documents (map[string]any). [ToDoc] and
// [FromDoc] convert between the typed structs and their document form using
// the structs' JSON field names, so the same shapes round-trip through the
// in-memory, SurrealDB, and PostgreSQL backends.
package models
