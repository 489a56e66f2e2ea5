// Package config loads dcsd's daemon configuration, the way the teacher's
// project.go loads project.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the parsed contents of <root>/dcsd.yaml.
type Config struct {
	// SocketPath is where the command-protocol UNIX socket is created.
	SocketPath string `yaml:"socketPath"`
	// EndpointSocketDir holds the per-registration side-channel sockets
	// (spec §4.6, §6).
	EndpointSocketDir string `yaml:"endpointSocketDir"`
	// PluginDir is scanned (and fsnotify-watched) for installed plugins.
	PluginDir string `yaml:"pluginDir"`

	// LockQueueDepth is loaded from dcsd.yaml but nothing reads it: the
	// lock manager's waiter queue is unbounded and a Lock request never
	// fails for queue length.
	LockQueueDepth int `yaml:"lockQueueDepth"`

	// SubscribeQueueDepth is loaded from dcsd.yaml but nothing reads it:
	// the fanout keeps a single latest snapshot per subscriber (collapse is
	// the only policy), has no ack timeout, and never drops a subscriber.
	SubscribeQueueDepth int `yaml:"subscribeQueueDepth"`

	// DefaultPermissions is the authorization ceiling for every connecting
	// process: the handshake accepts any requested subset of it. The same
	// set applies to all peers; there is no per-process restriction.
	DefaultPermissions []string `yaml:"defaultPermissions"`
}

// Default returns the configuration used when no dcsd.yaml is present.
func Default(root string) Config {
	return Config{
		SocketPath:          filepath.Join(root, "dcs.sock"),
		EndpointSocketDir:   root,
		PluginDir:           filepath.Join(root, "plugins"),
		LockQueueDepth:      64,
		SubscribeQueueDepth: 4,
		DefaultPermissions: []string{
			"CommandExecution", "ObjectModelRead", "ObjectModelReadWrite",
			"FileSystemAccess", "ReadGCodes", "ManageUserSessions",
			"RegisterHttpEndpoints", "ManagePlugins",
		},
	}
}

// Load reads <root>/dcsd.yaml if present, falling back to Default(root) for
// any field the file doesn't set.
func Load(root string) (Config, error) {
	cfg := Default(root)

	path := filepath.Join(root, "dcsd.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
