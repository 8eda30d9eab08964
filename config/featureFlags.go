package config

import (
	"os"
	"strings"
)

// BulkSyncEnabled gates the bulk (date-window) sweep endpoint and CLI mode.
//
// Set via env:
// - ENABLE_BULK_VIOLATION_SYNC=true
func BulkSyncEnabled() bool {
	return envBoolDefault("ENABLE_BULK_VIOLATION_SYNC", true)
}

// SkipMigrations disables AutoMigrate on startup.
func SkipMigrations() bool {
	return envBoolDefault("SKIP_MIGRATIONS", false)
}

// PubSubPushEnabled toggles the /pubsub/violation-sync push endpoint.
func PubSubPushEnabled() bool {
	return envBoolDefault("ENABLE_VIOLATION_PUBSUB_PUSH_ENDPOINT", true)
}

// PublishNewViolationEvents toggles the new-violation Pub/Sub notifier.
func PublishNewViolationEvents() bool {
	return envBoolDefault("PUBLISH_NEW_VIOLATION_EVENTS", false)
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
