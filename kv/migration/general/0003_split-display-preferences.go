package general

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/koniz-dev/grex-sub004/kv"
	"github.com/koniz-dev/grex-sub004/kv/migration"
	"github.com/koniz-dev/grex-sub004/logger"
)

// The settings screen used to persist its display preferences as a single
// "theme|font scale" pair under "display.prefs". The renderer now reads the
// two values independently.
//
// Once the legacy key is gone the migration is a no-op, so an interrupted
// run can safely pass through here again.
var Migration0003_SplitDisplayPreferences = migration.Func(
	2,
	"split display preferences",
	func(ctx context.Context, store kv.Store) error {
		prefs, err := store.GetString(ctx, "display.prefs")
		if kv.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}

		theme, fontScale := prefs, "1.0"
		if i := strings.IndexByte(prefs, '|'); i >= 0 {
			theme, fontScale = prefs[:i], prefs[i+1:]
		} else if log := logger.FromContext(ctx); log != nil {
			log.Debug("Display preference pair has no separator, keeping the whole value as the theme",
				zap.String("value", prefs))
		}

		if err := store.SetString(ctx, "display.theme", theme); err != nil {
			return err
		}
		if err := store.SetString(ctx, "display.font_scale", fontScale); err != nil {
			return err
		}

		return store.Remove(ctx, "display.prefs")
	},
)
