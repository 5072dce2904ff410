package abilitysystem

import "sync/atomic"

// debugLoggingEnabled guards verbose rejection logging on the apply path.
// Set via EnableDebugLogging() from main.go after parsing config.
var debugLoggingEnabled atomic.Bool

// EnableDebugLogging enables or disables verbose logging for the ability
// system.
func EnableDebugLogging(enabled bool) {
	debugLoggingEnabled.Store(enabled)
}

// IsDebugEnabled returns true if verbose logging is enabled.
//
//	if abilitysystem.IsDebugEnabled() {
//	    slog.Debug("effect rejected", "effect", spec.Name(), "reason", reason)
//	}
func IsDebugEnabled() bool {
	return debugLoggingEnabled.Load()
}
