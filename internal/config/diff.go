package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: detection
// thresholds, the follow-up decision threshold, the voice profile, and the
// log level. Provider wiring changes require a restart.
type ConfigDiff struct {
	DetectionChanged bool
	NewDetection     DetectionConfig

	CoverageThresholdChanged bool
	NewCoverageThreshold     float64

	VoiceChanged bool
	NewVoice     VoiceConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.DetectionChanged || d.CoverageThresholdChanged || d.VoiceChanged || d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Detection != new.Detection {
		d.DetectionChanged = true
		d.NewDetection = new.Detection
	}

	if old.Interview.CoverageThresholdPercent != new.Interview.CoverageThresholdPercent {
		d.CoverageThresholdChanged = true
		d.NewCoverageThreshold = new.Interview.CoverageThresholdPercent
	}

	if old.Voice != new.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Voice
	}

	return d
}
