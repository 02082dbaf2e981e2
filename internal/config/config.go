// Package config loads the coordinator's runtime configuration.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/viper"
)

// Config is the coordinator's startup configuration. Node identity is the
// configured hostname; the wire endpoint is host:port with the shared port
// unless the host entry carries its own.
type Config struct {
	// Nodes lists camera node hostnames (mDNS names or IPs), optionally with
	// an explicit ":port" suffix.
	Nodes []string `mapstructure:"nodes"`

	// Port is the node port used for entries without an explicit port.
	Port int `mapstructure:"port"`

	// CalibrationDir holds the intrinsics file and per-node pose files.
	CalibrationDir string `mapstructure:"calibrationDir"`

	// IntrinsicsFile is the shared intrinsics filename inside
	// CalibrationDir; per-node overrides are "<node>_<IntrinsicsFile>".
	IntrinsicsFile string `mapstructure:"intrinsicsFile"`

	// MarkerSetSize bounds valid marker ids to [0, MarkerSetSize).
	MarkerSetSize int `mapstructure:"markerSetSize"`

	// TriangulationInterval is the engine cadence, e.g. "100ms".
	TriangulationInterval time.Duration `mapstructure:"triangulationInterval"`

	// MaxObservationAge excludes observations older than this from
	// triangulation; zero uses stale data indefinitely.
	MaxObservationAge time.Duration `mapstructure:"maxObservationAge"`

	// DBPath is the sqlite track-history database ("" disables persistence).
	DBPath string `mapstructure:"dbPath"`

	// Listen is the HTTP status server address ("" disables it).
	Listen string `mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 65432)
	v.SetDefault("calibrationDir", ".")
	v.SetDefault("intrinsicsFile", "distortion_calibration.json")
	v.SetDefault("markerSetSize", 50)
	v.SetDefault("triangulationInterval", "100ms")
	v.SetDefault("maxObservationAge", "0s")
	v.SetDefault("dbPath", "mocap.db")
	v.SetDefault("listen", ":8080")
}

// Load reads configuration from the given file (JSON or YAML by extension).
// An empty path loads pure defaults, which leaves the node list empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.MarkerSetSize <= 0 {
		return fmt.Errorf("config: markerSetSize must be positive, got %d", c.MarkerSetSize)
	}
	if c.TriangulationInterval < 0 {
		return fmt.Errorf("config: triangulationInterval must not be negative")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n == "" {
			return fmt.Errorf("config: empty node entry")
		}
		if seen[n] {
			return fmt.Errorf("config: duplicate node %q", n)
		}
		seen[n] = true
	}
	return nil
}

// NodeAddr returns the wire endpoint for a configured node entry, appending
// the shared port when the entry has none.
func (c *Config) NodeAddr(node string) string {
	for i := len(node) - 1; i >= 0; i-- {
		switch node[i] {
		case ':':
			return node
		case ']':
			// bracketed IPv6 literal without port
			return fmt.Sprintf("%s:%d", node, c.Port)
		}
	}
	return fmt.Sprintf("%s:%d", node, c.Port)
}

// NodeID returns the node identifier for a configured entry: the hostname
// with any explicit port stripped. Calibration pose files are keyed by this
// identifier.
func (c *Config) NodeID(node string) string {
	if host, _, err := net.SplitHostPort(node); err == nil {
		return host
	}
	return node
}
