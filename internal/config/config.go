// Package config loads service configuration from defaults, an optional
// YAML or JSON file, a .env file and AUTORENEW_* environment variables.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"autorenew/internal/domain"
)

type Config struct {
	Server    ServerConfig                `json:"server"`
	Storage   StorageConfig               `json:"storage"`
	Logging   LoggingConfig               `json:"logging"`
	Contract  ContractConfig              `json:"contract"`
	Registry  RegistryConfig              `json:"registry"`
	Scheduler SchedulerConfig             `json:"scheduler"`
	Setup     SetupConfig                 `json:"setup"`
	Assets    map[string]domain.AssetInfo `json:"assets"`
	Remote    RemoteConfig                `json:"remote"`
	Devnet    DevnetConfig                `json:"devnet"`
	Auth      AuthConfig                  `json:"auth"`
}

type ServerConfig struct {
	Addr            string `json:"addr" validate:"required"`
	Debug           bool   `json:"debug"`
	ReadTimeout     string `json:"read_timeout"`
	WriteTimeout    string `json:"write_timeout"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

type StorageConfig struct {
	Path        string `json:"path" validate:"required"`
	BusyTimeout string `json:"busy_timeout"`
}

type LoggingConfig struct {
	Level   string `json:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Console bool   `json:"console"`
}

type ContractConfig struct {
	// Address is the module's own address.
	Address string `json:"address" validate:"required"`
	// Account is the owning account proxied calls are issued from.
	Account string `json:"account" validate:"required"`
	Admin   string `json:"admin"`
	Version string `json:"version"`
}

type RegistryConfig struct {
	Address      string `json:"address" validate:"required"`
	TariffAmount string `json:"tariff_amount" validate:"required,numeric"`
	TariffDenom  string `json:"tariff_denom"`
}

type SchedulerConfig struct {
	Address  string `json:"address" validate:"required"`
	GasLimit uint64 `json:"gas_limit"`
}

// SetupConfig is the instantiate message sent on first start.
type SetupConfig struct {
	AutoInstantiate    bool   `json:"auto_instantiate"`
	NativeAsset        string `json:"native_asset" validate:"required_if=AutoInstantiate true"`
	TaskCreationAmount string `json:"task_creation_amount" validate:"omitempty,numeric"`
	RefillThreshold    string `json:"refill_threshold" validate:"omitempty,numeric"`
	Count              int32  `json:"count"`
}

type RemoteConfig struct {
	Endpoint string  `json:"endpoint" validate:"omitempty,url"`
	Timeout  string  `json:"timeout"`
	RPS      float64 `json:"rps" validate:"gte=0"`
	Burst    int     `json:"burst" validate:"gte=0"`
}

type DevnetConfig struct {
	Enabled        bool     `json:"enabled"`
	Agents         []string `json:"agents" validate:"required_if=Enabled true,dive,required"`
	Workers        int      `json:"workers" validate:"gte=0"`
	Rotation       string   `json:"rotation"`
	TriggerTimeout string   `json:"trigger_timeout"`
}

// AuthConfig lists who may call the state-changing API routes. With no API
// keys and no JWT secret every such call is rejected.
type AuthConfig struct {
	JWTSecret string         `json:"jwt_secret" validate:"omitempty,min=32"`
	Issuer    string         `json:"issuer"`
	APIKeys   []APIKeyConfig `json:"api_keys" validate:"dive"`
}

type APIKeyConfig struct {
	Key     string `json:"key" validate:"required,min=16"`
	Address string `json:"address" validate:"required"`
	Role    string `json:"role" validate:"omitempty,oneof=user operator scheduler"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "10s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "5s",
		},
		Storage: StorageConfig{Path: "autorenew.db", BusyTimeout: "5s"},
		Logging: LoggingConfig{Level: "info", Console: true},
		Contract: ContractConfig{
			Address: "archway1autorenew",
			Account: "archway1account",
			Version: "0.1.0",
		},
		Registry: RegistryConfig{
			Address:      "archway1registry",
			TariffAmount: "1000000000000000000",
		},
		Scheduler: SchedulerConfig{Address: "archway1scheduler", GasLimit: 300_000},
		Setup: SetupConfig{
			NativeAsset:        "archway>arch",
			TaskCreationAmount: "0",
			RefillThreshold:    "0",
		},
		Assets: map[string]domain.AssetInfo{
			"archway>arch":  {Native: "aarch"},
			"archway>const": {Native: "aconst"},
		},
		Remote: RemoteConfig{Timeout: "30s", RPS: 10, Burst: 5},
		Devnet: DevnetConfig{
			Agents:         []string{"archway1agent0", "archway1agent1"},
			Workers:        4,
			Rotation:       "1h",
			TriggerTimeout: "30s",
		},
		Auth: AuthConfig{Issuer: "autorenew"},
	}
}

// Load builds the configuration. An empty path skips the file; a missing
// .env is ignored.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeInto(cfg, path, data); err != nil {
			return nil, err
		}
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decodeInto(cfg *Config, path string, data []byte) error {
	raw, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode %s config: %w", format, err)
	}
	return nil
}
