package secure

import (
	"github.com/koniz-dev/grex-sub004/kv/migration"
)

// The session layer reads credentials from the "auth." namespace; the bare
// key predates it.
var Migration0001_MoveAuthToken = migration.RenameKey(0, "auth_token", "auth.access_token")
