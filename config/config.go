// Package config loads the list-provider's configuration surface (§6):
// per-network deployment floors, poller cadence overrides, the pending
// period, and the secrets layered in from the environment. It follows the
// teacher's main.go convention of a godotenv-loaded .env layered under a
// viper-loaded YAML file, matching the sibling DAG-node reference's
// config/config.yaml + viper.ReadInConfig() shape.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultQueueShieldsDelay is C8's cadence absent an override (§6).
	DefaultQueueShieldsDelay = 20 * time.Minute
	// DefaultValidateShieldsDelay is C9's cadence absent an override (§6).
	DefaultValidateShieldsDelay = 30 * time.Second
	// DefaultPendingPeriodHours is the minimum shield age before validation
	// absent an explicit HOURS_SHIELD_PENDING_PERIOD.
	DefaultPendingPeriodHours = 24
)

// NetworkConfig is the per-network slice of the configuration surface: the
// RPC endpoint, the on-chain shield contract address, and the deployment
// block floor used when no status-store cursor exists yet (§4.3 step 1).
type NetworkConfig struct {
	Name                  string `mapstructure:"name"`
	RPCURL                string `mapstructure:"rpcUrl"`
	ShieldContractAddress string `mapstructure:"shieldContractAddress"`
	DeploymentBlock       uint64 `mapstructure:"deploymentBlock"`
}

// Config is the list provider's full configuration surface (§6).
type Config struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`

	DataDir string `mapstructure:"dataDir"`
	KeyFile string `mapstructure:"keyFile"`

	Networks []NetworkConfig `mapstructure:"networks"`

	QueueShieldsOverrideDelayMsec    int64 `mapstructure:"queueShieldsOverrideDelayMsec"`
	ValidateShieldsOverrideDelayMsec int64 `mapstructure:"validateShieldsOverrideDelayMsec"`
	HoursShieldPendingPeriod         int64 `mapstructure:"HOURS_SHIELD_PENDING_PERIOD"`

	HealthAddr string `mapstructure:"healthAddr"`

	// BlockedAddresses and BlockReason configure the reference Policy Gate
	// (policygate.AddressBlocklist). A list operator supplying their own
	// Gate implementation can leave these unset.
	BlockedAddresses []string `mapstructure:"blockedAddresses"`
	BlockReason      string   `mapstructure:"blockReason"`

	AlertWebhookURL string `mapstructure:"-"`
	InfoWebhookURL  string `mapstructure:"-"`
}

// Load reads the YAML config at path via viper and layers in secrets from
// the process environment (loaded from a .env file the way the teacher's
// main.go does with godotenv.Load), then validates the result.
func Load(path string) (*Config, error) {
	// A missing .env is not fatal here - unlike the teacher's main.go, which
	// panics, because a deployed list-provider may source secrets from the
	// environment directly rather than a checked-in file.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("dataDir", "./data")
	v.SetDefault("healthAddr", ":8090")
	v.SetDefault("HOURS_SHIELD_PENDING_PERIOD", DefaultPendingPeriodHours)

	v.SetEnvPrefix("POI")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}

	cfg.AlertWebhookURL = v.GetString("ALERT_WEBHOOK_URL")
	cfg.InfoWebhookURL = v.GetString("INFO_WEBHOOK_URL")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("config: NETWORK_NAMES must name at least one network")
	}
	seen := map[string]bool{}
	for _, n := range c.Networks {
		if n.Name == "" {
			return fmt.Errorf("config: network entry missing a name")
		}
		if seen[n.Name] {
			return fmt.Errorf("config: duplicate network %q", n.Name)
		}
		seen[n.Name] = true
	}
	if c.KeyFile == "" {
		return fmt.Errorf("config: keyFile is required")
	}
	return nil
}

// QueueShieldsDelay resolves C8's cadence: the configured override, or the
// default (§6).
func (c *Config) QueueShieldsDelay() time.Duration {
	if c.QueueShieldsOverrideDelayMsec > 0 {
		return time.Duration(c.QueueShieldsOverrideDelayMsec) * time.Millisecond
	}
	return DefaultQueueShieldsDelay
}

// ValidateShieldsDelay resolves C9's cadence. Per the REDESIGN FLAG in §9,
// this reads validateShieldsOverrideDelayMsec - the source's read of the
// queue-shields override here was a typo, not intended behavior.
func (c *Config) ValidateShieldsDelay() time.Duration {
	if c.ValidateShieldsOverrideDelayMsec > 0 {
		return time.Duration(c.ValidateShieldsOverrideDelayMsec) * time.Millisecond
	}
	return DefaultValidateShieldsDelay
}

// PendingPeriod is the minimum shield age, as a duration, before a shield
// becomes eligible for validation (§4.4 step 1).
func (c *Config) PendingPeriod() time.Duration {
	hours := c.HoursShieldPendingPeriod
	if hours <= 0 {
		hours = DefaultPendingPeriodHours
	}
	return time.Duration(hours) * time.Hour
}

// NetworkNames returns the configured network identifiers in order, the
// NETWORK_NAMES option from §6.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for _, n := range c.Networks {
		names = append(names, n.Name)
	}
	return names
}

// Network looks up one network's configuration by name.
func (c *Config) Network(name string) (NetworkConfig, bool) {
	for _, n := range c.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return NetworkConfig{}, false
}

// RPCURL and ShieldContractAddress implement chainobserver.NetworkEndpoints,
// letting *Config double as the EVM observer's endpoint resolver rather than
// introducing a parallel lookup type.

func (c *Config) RPCURL(network string) (string, error) {
	n, ok := c.Network(network)
	if !ok {
		return "", fmt.Errorf("config: unknown network %q", network)
	}
	if n.RPCURL == "" {
		return "", fmt.Errorf("config: network %q has no rpcUrl configured", network)
	}
	return n.RPCURL, nil
}

func (c *Config) ShieldContractAddress(network string) (common.Address, error) {
	n, ok := c.Network(network)
	if !ok {
		return common.Address{}, fmt.Errorf("config: unknown network %q", network)
	}
	if n.ShieldContractAddress == "" {
		return common.Address{}, fmt.Errorf("config: network %q has no shieldContractAddress configured", network)
	}
	return common.HexToAddress(n.ShieldContractAddress), nil
}
