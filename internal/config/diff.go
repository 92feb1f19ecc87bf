package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (device format, providers, history backend) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakeChanged is set when the wake threshold or phonetic assist flag
	// changed. A changed wake phrase is deliberately not hot-reloaded
	// because the detector's token list is fixed at construction.
	WakeChanged       bool
	NewThreshold      float64
	NewPhoneticAssist bool

	PersonaChanged bool
	NewPersona     string
}

// Any reports whether the diff carries at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.WakeChanged || d.PersonaChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Wake.Threshold != new.Wake.Threshold || old.Wake.PhoneticAssist != new.Wake.PhoneticAssist {
		d.WakeChanged = true
		d.NewThreshold = new.Wake.Threshold
		d.NewPhoneticAssist = new.Wake.PhoneticAssist
	}

	if old.Assistant.Persona != new.Assistant.Persona {
		d.PersonaChanged = true
		d.NewPersona = new.Assistant.Persona
	}

	return d
}
