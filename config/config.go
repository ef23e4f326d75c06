package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress   string `toml:"RPCAddress"`
	DataDir      string `toml:"DataDir"`
	GenesisFile  string `toml:"GenesisFile"`
	ChainID      string `toml:"ChainID"`
	ContractName string `toml:"ContractName"`
	Environment  string `toml:"Environment"`
	// Paused rejects every execute message while queries stay available.
	Paused bool `toml:"Paused"`

	RPC       RPC       `toml:"RPC"`
	Log       Log       `toml:"Log"`
	Telemetry Telemetry `toml:"Telemetry"`
	Indexer   Indexer   `toml:"Indexer"`
	Webhook   Webhook   `toml:"Webhook"`
	Archive   Archive   `toml:"Archive"`
	Quota     Quota     `toml:"Quota"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		RPCAddress:   ":8080",
		DataDir:      "./rmt-data",
		GenesisFile:  "",
		ChainID:      "rmt-local",
		ContractName: "restricted-marker-transfer",
		RPC: RPC{
			RequestsPerMinute: 600,
			Burst:             60,
			ReadTimeout:       15,
			WriteTimeout:      15,
		},
		Log: Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5},
		Indexer: Indexer{
			Exchange:      "rmt.events",
			RoutingPrefix: "rmt",
		},
	}
}

// Load loads the configuration from the given path, writing the defaults
// there first when the file does not exist. Environment overrides are applied
// after decoding.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		applyEnv(cfg)
		return cfg, cfg.Validate()
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("RMT_ENV")); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv("RMT_RPC_TOKEN")); v != "" {
		cfg.RPC.AuthToken = v
	}
	if v := strings.TrimSpace(os.Getenv("RMT_JWT_SECRET")); v != "" {
		cfg.RPC.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("RMT_AMQP_URL")); v != "" {
		cfg.Indexer.AMQPURL = v
	}
	if v := strings.TrimSpace(os.Getenv("RMT_WEBHOOK_SECRET")); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("RMT_ARCHIVE_DSN")); v != "" {
		cfg.Archive.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); v != "" {
		cfg.Telemetry.Headers = v
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
