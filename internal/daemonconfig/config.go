// Package daemonconfig defines the daemon's config file shape and the
// single TOML decode call that loads it, matching the shape of the
// teacher's own cmd/gvisor-containerd-shim/config.go: a struct plus a
// loadConfig function, nothing more. The file format and parsing rules
// themselves belong to github.com/BurntSushi/toml, not to this package.
package daemonconfig

import (
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon's top-level configuration, loaded once at startup
// and held read-only for the process lifetime.
type Config struct {
	// SocketPath is the Unix domain socket path the daemon listens on for
	// client RPC sessions.
	SocketPath string `toml:"socket_path"`
	// SocketGroup is the group name (or numeric gid as a string) given
	// ownership of SocketPath, letting non-root clients in that group
	// connect without a setuid helper.
	SocketGroup string `toml:"socket_group"`

	// KVRoot is the directory persistent container records are written
	// under (one file per container id).
	KVRoot string `toml:"kv_root"`

	// MaxMessageLen caps an RPC request/response frame's payload size.
	MaxMessageLen int `toml:"max_message_len"`

	// RPCWorkers is the number of concurrent RPC request handlers.
	RPCWorkers int `toml:"rpc_workers"`
	// EventWorkers is the number of event-queue dispatch workers.
	EventWorkers int `toml:"event_workers"`

	// DefaultMaxRespawns is the configured default respawn limit; -1 means
	// unlimited. It is loaded but not applied: a new tree.Container starts
	// with MaxRespawns -1 regardless of this value.
	DefaultMaxRespawns int `toml:"default_max_respawns"`
	// DefaultRespawnDelay is the configured default respawn delay. It is
	// loaded but not applied to any container's RespawnDelayMs.
	DefaultRespawnDelay Duration `toml:"default_respawn_delay"`

	// AgingSweepInterval is how often the daemon walks Dead containers
	// past their aging_time and destroys them.
	AgingSweepInterval Duration `toml:"aging_sweep_interval"`

	// MetricsAddr is the listen address for the /metrics HTTP endpoint; a
	// zero value disables it.
	MetricsAddr string `toml:"metrics_addr"`

	// RequestsPerSecond and Burst feed pkg/session's per-client rate
	// limiter.
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`

	// LogLevel is one of "debug", "info", "warning", "error".
	LogLevel string `toml:"log_level"`
	// LogFile, if set, redirects log output from stderr to this path.
	LogFile string `toml:"log_file"`
}

// Duration wraps time.Duration so it can be decoded from TOML's native
// string syntax ("30s", "5m") instead of raw nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no config file is given,
// matching the values a fresh install should boot with.
func Default() Config {
	return Config{
		SocketPath:          "/run/portod.socket",
		SocketGroup:         "porto",
		KVRoot:              "/var/lib/portod/kvs",
		MaxMessageLen:       4 << 20,
		RPCWorkers:          8,
		EventWorkers:        4,
		DefaultMaxRespawns:  -1,
		DefaultRespawnDelay: Duration{time.Second},
		AgingSweepInterval:  Duration{10 * time.Second},
		MetricsAddr:         "127.0.0.1:9080",
		RequestsPerSecond:   100,
		Burst:               200,
		LogLevel:            "info",
	}
}

// Load reads and decodes the TOML config file at path, starting from
// Default() so an omitted field keeps its default rather than zeroing out.
func Load(path string) (Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}
