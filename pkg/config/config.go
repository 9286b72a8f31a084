// Package config loads the node's typed configuration from file and
// environment, grounded on the teacher's pkg/config/config.go viper
// pattern, extended per spec.md §6 with the node-id, static validator
// list, data directory, and registered contract code names a BFT
// validator needs at startup.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the ledger node.
type Config struct {
	Node     NodeConfig     `mapstructure:"node"`
	Network  NetworkConfig  `mapstructure:"network"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Genesis  GenesisConfig  `mapstructure:"genesis"`
	CAS      CASConfig      `mapstructure:"cas"`
	API      APIConfig      `mapstructure:"api"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// NodeConfig identifies this validator within the static validator set.
type NodeConfig struct {
	ID         string   `mapstructure:"id"`
	Validators []string `mapstructure:"validators"`
	PrimaryID  string   `mapstructure:"primary_id"`
	DataDir    string   `mapstructure:"data_dir"`
	LogLevel   string   `mapstructure:"log_level"`
}

// NetworkConfig configures the flood broadcast transport.
type NetworkConfig struct {
	ListenAddress string   `mapstructure:"listen_address"`
	Bootstrap     []string `mapstructure:"bootstrap"`
}

// StorageConfig configures the persistent store.
type StorageConfig struct {
	Engine string `mapstructure:"engine"`
	Path   string `mapstructure:"path"`
}

// GenesisConfig configures the optional genesis-time contract deployment
// (spec.md §6: "Optionally, genesis deploys one built-in contract").
type GenesisConfig struct {
	Contract string                 `mapstructure:"contract"`
	Args     map[string]interface{} `mapstructure:"args"`
}

// CASConfig configures the MinIO-backed evidence attachment store.
type CASConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// APIConfig configures the HTTP query/submission surface.
type APIConfig struct {
	Address string   `mapstructure:"address"`
	CORS    []string `mapstructure:"cors"`
}

// SecurityConfig configures ambient security concerns (internal/security).
type SecurityConfig struct {
	TLSEnabled   bool   `mapstructure:"tls_enabled"`
	CertFile     string `mapstructure:"cert_file"`
	KeyFile      string `mapstructure:"key_file"`
	CAFile       string `mapstructure:"ca_file"`
	HSMEnabled   bool   `mapstructure:"hsm_enabled"`
	AuditEnabled bool   `mapstructure:"audit_enabled"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID:         "node-a",
			Validators: []string{"node-a", "node-b", "node-c", "node-d"},
			PrimaryID:  "node-a",
			DataDir:    "./data",
			LogLevel:   "info",
		},
		Network: NetworkConfig{
			ListenAddress: "/ip4/0.0.0.0/tcp/26656",
			Bootstrap:     []string{},
		},
		Storage: StorageConfig{
			Engine: "badger",
			Path:   "./data/chain",
		},
		Genesis: GenesisConfig{
			Contract: "PharmaContract",
			Args: map[string]interface{}{
				"min_temp": -2000,
				"max_temp": 800,
			},
		},
		CAS: CASConfig{
			Enabled:   false,
			Endpoint:  "localhost:9000",
			Bucket:    "coldchain-evidence",
			AccessKey: "coldchain",
			SecretKey: "coldchain123",
			UseSSL:    false,
		},
		API: APIConfig{
			Address: "0.0.0.0:1317",
			CORS:    []string{"*"},
		},
		Security: SecurityConfig{
			TLSEnabled:   false,
			HSMEnabled:   false,
			AuditEnabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadConfig reads configuration from configPath (if non-empty) layered
// over DefaultConfig, then applies COLDCHAIN_-prefixed environment
// variable overrides.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetDefault("node.id", cfg.Node.ID)
	v.SetDefault("node.validators", cfg.Node.Validators)
	v.SetDefault("node.primary_id", cfg.Node.PrimaryID)
	v.SetDefault("node.data_dir", cfg.Node.DataDir)
	v.SetDefault("node.log_level", cfg.Node.LogLevel)
	v.SetDefault("network.listen_address", cfg.Network.ListenAddress)
	v.SetDefault("network.bootstrap", cfg.Network.Bootstrap)
	v.SetDefault("storage.engine", cfg.Storage.Engine)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("genesis.contract", cfg.Genesis.Contract)
	v.SetDefault("genesis.args", cfg.Genesis.Args)
	v.SetDefault("cas.enabled", cfg.CAS.Enabled)
	v.SetDefault("cas.endpoint", cfg.CAS.Endpoint)
	v.SetDefault("cas.bucket", cfg.CAS.Bucket)
	v.SetDefault("cas.access_key", cfg.CAS.AccessKey)
	v.SetDefault("cas.secret_key", cfg.CAS.SecretKey)
	v.SetDefault("cas.use_ssl", cfg.CAS.UseSSL)
	v.SetDefault("api.address", cfg.API.Address)
	v.SetDefault("api.cors", cfg.API.CORS)
	v.SetDefault("security.tls_enabled", cfg.Security.TLSEnabled)
	v.SetDefault("security.hsm_enabled", cfg.Security.HSMEnabled)
	v.SetDefault("security.audit_enabled", cfg.Security.AuditEnabled)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetEnvPrefix("COLDCHAIN")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
