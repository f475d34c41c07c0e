package secure

import (
	"github.com/koniz-dev/grex-sub004/kv/migration"
)

// PIN unlock was retired two releases ago; the hash and salt have no reader
// left and sensitive material should not outlive its use.
var Migration0003_DropRetiredPinCredentials = migration.RemoveKeys(
	2,
	"drop retired pin credentials",
	"pin_hash",
	"pin_salt",
)
