// Package runtime implements the external interfaces of §6: the TOML
// host configuration, the two environment variables a spawned worker
// reads, the replica state machine of §4.9, and the driver loop that
// owns a replica's operator chain plus the network
// multiplexer/demultiplexer lifecycle.
package runtime

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Env var names a spawned remote worker reads at startup (§6
// "Configuration"). Named for this engine rather than ported verbatim
// from the Rust original's RENOIR_* names, since this is a fresh
// implementation, not a literal port.
const (
	EnvHostID = "ENGINE_HOST_ID"
	EnvConfig = "ENGINE_CONFIG"
)

// HostConfig is one `[[host]]` TOML entry.
type HostConfig struct {
	Address      string            `toml:"address"`
	BasePort     int               `toml:"base_port"`
	NumCores     int               `toml:"num_cores"`
	Layer        string            `toml:"layer"`
	Group        string            `toml:"group"`
	Capabilities map[string]string `toml:"capabilities"`
	SSH          *SSHConfig        `toml:"ssh"`
}

// SSHConfig carries the optional remote-launch block for a host; the
// deployment tool that actually opens the connection is out of scope
// (§6 "Deployment tool"), this is just the config surface.
type SSHConfig struct {
	User       string `toml:"user"`
	KeyPath    string `toml:"key_path"`
	RemotePath string `toml:"remote_path"`
}

// GroupConnection restricts cross-group traffic to the named pairs
// (§6: "optional [[group_connections]] edges (from, to)"). An empty
// Config.GroupConnections list means no restriction — every group may
// talk to every other.
type GroupConnection struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// Config is the root TOML document (§6 "Configuration").
type Config struct {
	Hosts             []HostConfig      `toml:"host"`
	GroupConnections  []GroupConnection `toml:"group_connections"`
	TraceDir          string            `toml:"trace_dir"`
	CleanupExecutable bool              `toml:"cleanup_executable"`
}

// LoadConfigFile parses a TOML config from disk.
func LoadConfigFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("runtime: decoding config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadConfigString parses a TOML config already held in memory — the
// form a spawned worker receives via ENGINE_CONFIG so it need not have
// the TOML file on its own filesystem (§6).
func LoadConfigString(doc string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(doc, &cfg); err != nil {
		return nil, fmt.Errorf("runtime: decoding inline config: %w", err)
	}
	return &cfg, nil
}

// Encode serializes cfg back to TOML, e.g. for a launcher to populate
// ENGINE_CONFIG before spawning a remote worker.
func (c *Config) Encode() (string, error) {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return "", fmt.Errorf("runtime: encoding config: %w", err)
	}
	return sb.String(), nil
}

// GroupConnectionAllowed reports whether traffic from group `from` to
// group `to` is permitted. With no configured restrictions, every pair
// is allowed; an empty group name (untagged host) is always allowed to
// reach anything and be reached.
func (c *Config) GroupConnectionAllowed(from, to string) bool {
	if len(c.GroupConnections) == 0 || from == "" || to == "" {
		return true
	}
	for _, gc := range c.GroupConnections {
		if gc.From == from && gc.To == to {
			return true
		}
	}
	return false
}

// HostFromEnv resolves the current process's own HostConfig using
// ENGINE_HOST_ID, returning an error if the variable is missing or
// names a host absent from cfg (§7 "Configuration ... missing env ...
// Surface as fatal").
func (c *Config) HostFromEnv() (HostConfig, error) {
	idStr := os.Getenv(EnvHostID)
	if idStr == "" {
		return HostConfig{}, fmt.Errorf("runtime: %s is not set", EnvHostID)
	}
	var id int
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
		return HostConfig{}, fmt.Errorf("runtime: %s=%q is not an integer: %w", EnvHostID, idStr, err)
	}
	if id < 0 || id >= len(c.Hosts) {
		return HostConfig{}, fmt.Errorf("runtime: %s=%d out of range for %d configured hosts", EnvHostID, id, len(c.Hosts))
	}
	return c.Hosts[id], nil
}

// LoadFromEnv is the entry point a spawned remote worker calls: read
// ENGINE_CONFIG (if set) in preference to a config file, so a remote
// host need not carry the TOML document on disk.
func LoadFromEnv(fallbackPath string) (*Config, error) {
	if doc := os.Getenv(EnvConfig); doc != "" {
		return LoadConfigString(doc)
	}
	if fallbackPath == "" {
		return nil, fmt.Errorf("runtime: neither %s nor a config path was provided", EnvConfig)
	}
	return LoadConfigFile(fallbackPath)
}
