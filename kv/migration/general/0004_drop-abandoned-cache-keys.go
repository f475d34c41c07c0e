package general

import (
	"github.com/koniz-dev/grex-sub004/kv/migration"
)

// The manifest cache moved to its own file store and the beta program
// closed; none of these keys has a reader anymore.
var Migration0004_DropAbandonedCacheKeys = migration.RemoveKeys(
	3,
	"drop abandoned cache keys",
	"cache.manifest",
	"cache.etag",
	"beta.opt_in",
)
