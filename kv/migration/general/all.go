package general

import (
	"github.com/koniz-dev/grex-sub004/kv/migration"
)

// Migrations contains all the migrations required for the general purpose
// preference store, in the order they ship.
var Migrations = [...]migration.Spec{
	// rename username key
	Migration0001_RenameUsernameKey,
	// normalize notification toggle
	Migration0002_NormalizeNotificationToggle,
	// split display preferences
	Migration0003_SplitDisplayPreferences,
	// drop abandoned cache keys
	Migration0004_DropAbandonedCacheKeys,
	// {{ do_not_edit . }}
}

// Registry returns the ordered migration registry for the general storage
// domain.
func Registry() *migration.Registry {
	return migration.NewRegistry(Migrations[:]...)
}
