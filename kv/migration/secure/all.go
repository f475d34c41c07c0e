package secure

import (
	"github.com/koniz-dev/grex-sub004/kv/migration"
)

// Migrations contains all the migrations required for the hardened
// credential store, in the order they ship.
var Migrations = [...]migration.Spec{
	// move auth token
	Migration0001_MoveAuthToken,
	// seed token created at
	Migration0002_SeedTokenCreatedAt,
	// drop retired pin credentials
	Migration0003_DropRetiredPinCredentials,
	// {{ do_not_edit . }}
}

// Registry returns the ordered migration registry for the secure storage
// domain.
func Registry() *migration.Registry {
	return migration.NewRegistry(Migrations[:]...)
}
