package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "AUTORENEW_"

func loadFromEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) error {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = b
		}
		return nil
	}

	str("ADDR", &cfg.Server.Addr)
	str("DB_PATH", &cfg.Storage.Path)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("CONTRACT_ADDRESS", &cfg.Contract.Address)
	str("ACCOUNT_ADDRESS", &cfg.Contract.Account)
	str("ADMIN", &cfg.Contract.Admin)
	str("REGISTRY_ADDRESS", &cfg.Registry.Address)
	str("TARIFF_AMOUNT", &cfg.Registry.TariffAmount)
	str("TARIFF_DENOM", &cfg.Registry.TariffDenom)
	str("SCHEDULER_ADDRESS", &cfg.Scheduler.Address)
	str("NATIVE_ASSET", &cfg.Setup.NativeAsset)
	str("TASK_CREATION_AMOUNT", &cfg.Setup.TaskCreationAmount)
	str("REFILL_THRESHOLD", &cfg.Setup.RefillThreshold)
	str("REMOTE_ENDPOINT", &cfg.Remote.Endpoint)
	str("REMOTE_TIMEOUT", &cfg.Remote.Timeout)
	str("DEVNET_ROTATION", &cfg.Devnet.Rotation)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("JWT_ISSUER", &cfg.Auth.Issuer)

	for key, dst := range map[string]*bool{
		"DEBUG":            &cfg.Server.Debug,
		"LOG_CONSOLE":      &cfg.Logging.Console,
		"AUTO_INSTANTIATE": &cfg.Setup.AutoInstantiate,
		"DEVNET":           &cfg.Devnet.Enabled,
	} {
		if err := boolean(key, dst); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "GAS_LIMIT"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sGAS_LIMIT: %w", envPrefix, err)
		}
		cfg.Scheduler.GasLimit = n
	}
	if v, ok := os.LookupEnv(envPrefix + "REMOTE_RPS"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sREMOTE_RPS: %w", envPrefix, err)
		}
		cfg.Remote.RPS = f
	}
	if v, ok := os.LookupEnv(envPrefix + "DEVNET_AGENTS"); ok {
		cfg.Devnet.Agents = cfg.Devnet.Agents[:0]
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.Devnet.Agents = append(cfg.Devnet.Agents, a)
			}
		}
	}
	return nil
}
