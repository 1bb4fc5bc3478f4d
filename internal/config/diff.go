package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// FormularyChanged is true if the formulary path or keyword boost changed.
	// Active speech sessions pick up the new drug list on their next keyword push.
	FormularyChanged bool

	// AttributionChanged is true if the default language or the LLM review
	// toggle changed. Applies to consultations started after the reload.
	AttributionChanged bool
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.FormularyChanged || d.AttributionChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Formulary != new.Formulary {
		d.FormularyChanged = true
	}

	if old.Attribution != new.Attribution {
		d.AttributionChanged = true
	}

	return d
}
