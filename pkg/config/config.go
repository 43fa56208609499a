// Package config loads the YAML configuration for a rangevault process,
// grounded on _examples/cuemby-warren's own yaml.v3-based config loading
// (its cmd/warren reads cluster config the same way: a single struct,
// defaults filled in after Unmarshal, validated before use).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/rangevault/pkg/recovery"
)

// Coordinator is the on-disk configuration for a coordinator process.
type Coordinator struct {
	Location      string        `yaml:"location"`
	DataDir       string        `yaml:"data_dir"`
	BindAddr      string        `yaml:"bind_addr"`
	RaftBindAddr  string        `yaml:"raft_bind_addr"`
	ServerDir     string        `yaml:"server_dir"`
	ErrorDir      string        `yaml:"error_dir"`
	TestMode      bool          `yaml:"test_mode"`
	QuorumPercent int           `yaml:"quorum_percent"`
	PhaseTimeout  time.Duration `yaml:"phase_timeout"`
	RecoveryTick  time.Duration `yaml:"recovery_tick"`
	LogLevel      string        `yaml:"log_level"`
	LogJSON       bool          `yaml:"log_json"`

	// WithdrawnDestPolicy is "assume_complete" (default) or "rebalance";
	// see DESIGN.md, Q2.
	WithdrawnDestPolicy string `yaml:"withdrawn_dest_policy"`
}

// RangeServer is the on-disk configuration for a range-server process.
type RangeServer struct {
	Location     string `yaml:"location"`
	DataDir      string `yaml:"data_dir"`
	BindAddr     string `yaml:"bind_addr"`
	MasterAddr   string `yaml:"master_addr"`
	LogLevel     string `yaml:"log_level"`
	LogJSON      bool   `yaml:"log_json"`
}

// LoadCoordinator reads and validates a Coordinator config from path,
// filling in defaults for anything the file omits.
func LoadCoordinator(path string) (*Coordinator, error) {
	cfg := &Coordinator{
		DataDir:             "/var/lib/rangevault",
		BindAddr:            "0.0.0.0:9100",
		RaftBindAddr:        "0.0.0.0:9101",
		ServerDir:           "/rangevault/servers",
		ErrorDir:            "/rangevault/errors",
		QuorumPercent:       51,
		PhaseTimeout:        30 * time.Second,
		RecoveryTick:        2 * time.Second,
		LogLevel:            "info",
		WithdrawnDestPolicy: "assume_complete",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Location == "" {
		return nil, fmt.Errorf("config: location is required")
	}
	switch cfg.WithdrawnDestPolicy {
	case "assume_complete", "rebalance":
	default:
		return nil, fmt.Errorf("config: withdrawn_dest_policy must be assume_complete or rebalance, got %q", cfg.WithdrawnDestPolicy)
	}
	return cfg, nil
}

// LoadRangeServer reads and validates a RangeServer config from path.
func LoadRangeServer(path string) (*RangeServer, error) {
	cfg := &RangeServer{
		DataDir:  "/var/lib/rangevault",
		BindAddr: "0.0.0.0:9200",
		LogLevel: "info",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Location == "" {
		return nil, fmt.Errorf("config: location is required")
	}
	if cfg.MasterAddr == "" {
		return nil, fmt.Errorf("config: master_addr is required")
	}
	return cfg, nil
}

// WithdrawnPolicy translates the config's string policy into
// recovery.WithdrawnDestinationPolicy.
func (c *Coordinator) WithdrawnPolicy() recovery.WithdrawnDestinationPolicy {
	if c.WithdrawnDestPolicy == "rebalance" {
		return recovery.Rebalance
	}
	return recovery.AssumeComplete
}
