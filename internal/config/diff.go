package config

import "fmt"

// ConfigDiff describes what changed between two configs. Threshold and log
// level apply while running; everything else is listed in RestartRequired.
type ConfigDiff struct {
	ThresholdChanged bool
	NewThreshold     float64

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the top-level sections that changed but only
	// take effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.ThresholdChanged && !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Session.Threshold != new.Session.Threshold {
		d.ThresholdChanged = true
		d.NewThreshold = new.Session.Threshold
	}
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	was, now := old.Session, new.Session
	was.Threshold, now.Threshold = 0, 0
	if was != now {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if old.Persona != new.Persona {
		d.RestartRequired = append(d.RestartRequired, "persona")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Actuator != new.Actuator {
		d.RestartRequired = append(d.RestartRequired, "actuator")
	}
	if old.Archive != new.Archive {
		d.RestartRequired = append(d.RestartRequired, "archive")
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "listenAddr")
	}
	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.STT, b.STT) && entryEqual(a.LLM, b.LLM) && entryEqual(a.TTS, b.TTS) &&
		entriesEqual(a.Fallbacks.STT, b.Fallbacks.STT) &&
		entriesEqual(a.Fallbacks.LLM, b.Fallbacks.LLM) &&
		entriesEqual(a.Fallbacks.TTS, b.Fallbacks.TTS)
}

func entriesEqual(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !entryEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(w) {
			return false
		}
	}
	return true
}
