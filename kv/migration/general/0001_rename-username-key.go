package general

import (
	"github.com/koniz-dev/grex-sub004/kv/migration"
)

// Early releases stored the display name under a bare "username" key; the
// profile screen now reads the namespaced key.
var Migration0001_RenameUsernameKey = migration.RenameKey(0, "username", "profile.display_name")
