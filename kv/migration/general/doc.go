// package general
//
// This package is the canonical location for all migrations made against the
// general purpose preference store (the "general" storage domain).
//
// The array general.Migrations contains the list of migration specifications
// which drives the serial set of migration operations required to correctly
// evolve the keys and values held by that store.
//
// This package is arranged like so:
//
//	doc.go - this piece of documentation.
//	all.go - definition of the Migrations array referencing each of the named migrations in numbered migration files (below).
//	000X_migration_name.go (example) - N files containing the specific implementations of each migration enumerated in all.go.
//	...
//
// Managing this list of files and all.go can be fiddly.
// The grexmigrate command has a subcommand `create` which automatically
// creates a new migration in the expected location and appends it
// appropriately into the all.go Migrations array.
package general
