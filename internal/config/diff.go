package config

import "reflect"

// ConfigDiff describes what changed between two configs: the log level and
// graph settings (safe to hot-reload) and whether the provider block differs
// at all. Store and vector settings are not compared.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     string

	GraphChanged bool
	NewGraph     GraphConfig

	ProvidersChanged bool
}

// Diff compares old and new configs and returns what changed. Log level and
// graph changes carry their new values; a provider change (including
// credentials and options) is only flagged via ProvidersChanged, since
// providers require a process restart. Store and vector settings are not
// compared.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Graph != new.Graph {
		d.GraphChanged = true
		d.NewGraph = new.Graph
	}

	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.ProvidersChanged = true
	}

	return d
}
