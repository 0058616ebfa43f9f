package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the daemon's service configuration. The dispenser's on-chain
// configuration (admin, token, reward, cooldown) is not here: that record is
// write-once persistent state owned by the node.
type Config struct {
	RPCAddress       string `toml:"RPCAddress"`
	DataDir          string `toml:"DataDir"`
	NetworkName      string `toml:"NetworkName"`
	ClaimsPerMinute  int    `toml:"ClaimsPerMinute"`
	ClaimBurst       int    `toml:"ClaimBurst"`
	ShutdownGraceSec int    `toml:"ShutdownGraceSec"`
}

const (
	defaultRPCAddress      = "127.0.0.1:8546"
	defaultDataDir         = "./tapfaucet-data"
	defaultNetworkName     = "tapfaucet-local"
	defaultClaimsPerMinute = 60
	defaultClaimBurst      = 10
	defaultShutdownGrace   = 5
)

// Load reads the configuration from path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = defaultNetworkName
	}
	if c.ClaimsPerMinute <= 0 {
		c.ClaimsPerMinute = defaultClaimsPerMinute
	}
	if c.ClaimBurst <= 0 {
		c.ClaimBurst = defaultClaimBurst
	}
	if c.ShutdownGraceSec <= 0 {
		c.ShutdownGraceSec = defaultShutdownGrace
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
