package config

// ConfigDiff describes what changed between two configs. The serve command
// uses it to tell operators which changes take effect immediately and which
// need a restart.
type ConfigDiff struct {
	ServersChanged  bool         // true if the tool server set changed in any way
	ServerChanges   []ServerDiff // per-server diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
	LLMChanged      bool
}

// ServerDiff describes what changed for a single tool server between two configs.
type ServerDiff struct {
	Name             string
	CommandChanged   bool
	PortChanged      bool
	TransportChanged bool
	URLChanged       bool
	Added            bool
	Removed          bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// LLM provider selection
	if old.LLM.Name != new.LLM.Name || old.LLM.Model != new.LLM.Model || old.LLM.BaseURL != new.LLM.BaseURL {
		d.LLMChanged = true
	}

	// Build server lookup maps keyed by name.
	oldServers := make(map[string]*ToolServerConfig, len(old.Tools.Servers))
	for i := range old.Tools.Servers {
		oldServers[old.Tools.Servers[i].Name] = &old.Tools.Servers[i]
	}
	newServers := make(map[string]*ToolServerConfig, len(new.Tools.Servers))
	for i := range new.Tools.Servers {
		newServers[new.Tools.Servers[i].Name] = &new.Tools.Servers[i]
	}

	// Detect modified and removed servers.
	for name, oldSrv := range oldServers {
		newSrv, exists := newServers[name]
		if !exists {
			d.ServerChanges = append(d.ServerChanges, ServerDiff{
				Name:    name,
				Removed: true,
			})
			d.ServersChanged = true
			continue
		}
		sd := diffServer(name, oldSrv, newSrv)
		if sd.CommandChanged || sd.PortChanged || sd.TransportChanged || sd.URLChanged {
			d.ServerChanges = append(d.ServerChanges, sd)
			d.ServersChanged = true
		}
	}

	// Detect added servers.
	for name := range newServers {
		if _, exists := oldServers[name]; !exists {
			d.ServerChanges = append(d.ServerChanges, ServerDiff{
				Name:  name,
				Added: true,
			})
			d.ServersChanged = true
		}
	}

	return d
}

// diffServer compares two tool server configs with the same name.
func diffServer(name string, old, new *ToolServerConfig) ServerDiff {
	sd := ServerDiff{Name: name}

	if old.Command != new.Command {
		sd.CommandChanged = true
	}
	if old.Port != new.Port {
		sd.PortChanged = true
	}
	if old.Transport != new.Transport {
		sd.TransportChanged = true
	}
	if old.URL != new.URL {
		sd.URLChanged = true
	}

	return sd
}
