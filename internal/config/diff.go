package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	LLMProviderChanged        bool
	EmbeddingsProviderChanged bool

	MCPServersChanged bool
	MCPServerChanges  []MCPServerDiff
}

// MCPServerDiff describes what changed for a single MCP server entry between
// two configs.
type MCPServerDiff struct {
	Name    string
	Added   bool
	Removed bool
	Changed bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !providerEntryEqual(old.Providers.LLM, new.Providers.LLM) {
		d.LLMProviderChanged = true
	}
	if !providerEntryEqual(old.Providers.Embeddings, new.Providers.Embeddings) {
		d.EmbeddingsProviderChanged = true
	}

	oldServers := make(map[string]*MCPServerConfig, len(old.MCP.Servers))
	for i := range old.MCP.Servers {
		oldServers[old.MCP.Servers[i].Name] = &old.MCP.Servers[i]
	}
	newServers := make(map[string]*MCPServerConfig, len(new.MCP.Servers))
	for i := range new.MCP.Servers {
		newServers[new.MCP.Servers[i].Name] = &new.MCP.Servers[i]
	}

	for name, oldSrv := range oldServers {
		newSrv, exists := newServers[name]
		if !exists {
			d.MCPServerChanges = append(d.MCPServerChanges, MCPServerDiff{Name: name, Removed: true})
			d.MCPServersChanged = true
			continue
		}
		if !mcpServerEqual(oldSrv, newSrv) {
			d.MCPServerChanges = append(d.MCPServerChanges, MCPServerDiff{Name: name, Changed: true})
			d.MCPServersChanged = true
		}
	}
	for name := range newServers {
		if _, exists := oldServers[name]; !exists {
			d.MCPServerChanges = append(d.MCPServerChanges, MCPServerDiff{Name: name, Added: true})
			d.MCPServersChanged = true
		}
	}

	return d
}

func mcpServerEqual(a, b *MCPServerConfig) bool {
	return a.Transport == b.Transport &&
		a.Command == b.Command &&
		a.URL == b.URL &&
		maps.Equal(a.Env, b.Env)
}

func providerEntryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		maps.Equal(a.Options, b.Options)
}
