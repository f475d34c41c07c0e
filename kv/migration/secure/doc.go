// package secure
//
// This package is the canonical location for all migrations made against the
// hardened credential store (the "secure" storage domain). It deliberately
// never shares a migration, a version, or a store with the general catalog:
// the two domains evolve independently.
//
// The array secure.Migrations contains the list of migration specifications
// which drives the serial set of migration operations required to correctly
// evolve the keys and values held by that store.
//
// This package is arranged like the general catalog:
//
//	doc.go - this piece of documentation.
//	all.go - definition of the Migrations array referencing each of the named migrations in numbered migration files (below).
//	000X_migration_name.go (example) - N files containing the specific implementations of each migration enumerated in all.go.
//	...
//
// The grexmigrate command has a subcommand `create` which automatically
// creates a new migration in the expected location and appends it
// appropriately into the all.go Migrations array.
package secure
