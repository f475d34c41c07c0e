package general

import (
	"strings"

	"github.com/koniz-dev/grex-sub004/kv/migration"
)

// Older releases persisted whatever string the settings form produced for
// the notification toggle ("yes", "Y", "1", "on", ...). Everything reading
// the key now expects the canonical "true" / "false".
var Migration0002_NormalizeNotificationToggle = migration.TransformString(
	1,
	"normalize notification toggle",
	"notifications.enabled",
	normalizeToggle,
)

func normalizeToggle(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "y", "on", "1":
		return "true", nil
	default:
		return "false", nil
	}
}
