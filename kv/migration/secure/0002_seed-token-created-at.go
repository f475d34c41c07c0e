package secure

import (
	"context"

	"github.com/koniz-dev/grex-sub004/kv"
	"github.com/koniz-dev/grex-sub004/kv/migration"
)

// Token rotation needs to know how old the stored access token is. Tokens
// that predate rotation get a created-at of zero, which the rotation code
// treats as "rotate at the next opportunity".
//
// The precondition refuses to run while a bare "auth_token" key is present:
// that key only exists if an older build wrote to the store after migration
// 0001 ran, and stamping its token with a fresh created-at would hide it
// from rotation. Holding the version back forces the operator to look.
var Migration0002_SeedTokenCreatedAt = migration.FuncWithPrecondition(
	1,
	"seed token created at",
	func(ctx context.Context, store kv.Store) (bool, error) {
		legacy, err := store.ContainsKey(ctx, "auth_token")
		if err != nil {
			return false, err
		}
		return !legacy, nil
	},
	func(ctx context.Context, store kv.Store) error {
		hasToken, err := store.ContainsKey(ctx, "auth.access_token")
		if err != nil {
			return err
		}
		if !hasToken {
			return nil
		}

		seeded, err := store.ContainsKey(ctx, "auth.token_created_at")
		if err != nil {
			return err
		}
		if seeded {
			return nil
		}

		return store.SetInt(ctx, "auth.token_created_at", 0)
	},
)
