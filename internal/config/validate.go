package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"autorenew/internal/app"
	"autorenew/internal/auth"
	"autorenew/internal/devnet"
	"autorenew/internal/domain"
	"autorenew/internal/msg"
	"autorenew/internal/remote"
)

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	if _, err := domain.ParseAmount(c.Registry.TariffAmount); err != nil {
		errs = append(errs, fmt.Errorf("registry.tariff_amount: %w", err))
	}
	for path, raw := range map[string]string{
		"setup.task_creation_amount": c.Setup.TaskCreationAmount,
		"setup.refill_threshold":     c.Setup.RefillThreshold,
	} {
		if raw == "" {
			continue
		}
		if _, err := domain.ParseAmount(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	for path, raw := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"storage.busy_timeout":    c.Storage.BusyTimeout,
		"remote.timeout":          c.Remote.Timeout,
		"devnet.rotation":         c.Devnet.Rotation,
		"devnet.trigger_timeout":  c.Devnet.TriggerTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if !c.Devnet.Enabled && c.Remote.Endpoint == "" {
		errs = append(errs, errors.New("remote.endpoint is required unless devnet is enabled"))
	}
	if c.Setup.AutoInstantiate {
		if _, ok := c.Assets[c.Setup.NativeAsset]; !ok {
			errs = append(errs, fmt.Errorf("setup.native_asset: %q is not in assets", c.Setup.NativeAsset))
		}
	}
	seen := make(map[string]bool, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		if seen[k.Key] {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d]: duplicate key", i))
		}
		seen[k.Key] = true
	}
	for name, a := range c.Assets {
		if (a.Native == "") == (a.CW20 == "") {
			errs = append(errs, fmt.Errorf("assets.%s: exactly one of native and cw20 must be set", name))
		}
	}
	return errors.Join(errs...)
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// duration assumes Validate already accepted raw.
func duration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func amount(raw string) domain.Amount {
	a, err := domain.ParseAmount(raw)
	if err != nil {
		return domain.ZeroAmount()
	}
	return a
}

func (c *Config) ReadTimeout() time.Duration {
	return duration(c.Server.ReadTimeout, 10*time.Second)
}

func (c *Config) WriteTimeout() time.Duration {
	return duration(c.Server.WriteTimeout, 30*time.Second)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 5*time.Second)
}

func (c *Config) BusyTimeout() time.Duration {
	return duration(c.Storage.BusyTimeout, 5*time.Second)
}

func (c *Config) Settings() app.Settings {
	return app.Settings{
		Version:      c.Contract.Version,
		Registry:     domain.Addr(c.Registry.Address),
		TariffAmount: amount(c.Registry.TariffAmount),
		TariffDenom:  c.Registry.TariffDenom,
		Scheduler:    domain.Addr(c.Scheduler.Address),
		GasLimit:     c.Scheduler.GasLimit,
		Assets:       c.Assets,
	}
}

func (c *Config) InstantiateMsg() msg.InstantiateMsg {
	return msg.InstantiateMsg{
		Count:              c.Setup.Count,
		NativeAsset:        c.Setup.NativeAsset,
		TaskCreationAmount: amount(c.Setup.TaskCreationAmount),
		RefillThreshold:    amount(c.Setup.RefillThreshold),
		Admin:              domain.Addr(c.Contract.Admin),
	}
}

func (c *Config) RemoteOptions() remote.Options {
	return remote.Options{
		Endpoint: c.Remote.Endpoint,
		Timeout:  duration(c.Remote.Timeout, 30*time.Second),
		RPS:      c.Remote.RPS,
		Burst:    c.Remote.Burst,
	}
}

// DevnetOptions needs the native denom to price names when no tariff denom
// is configured.
func (c *Config) DevnetOptions() devnet.Options {
	denom := c.Registry.TariffDenom
	if denom == "" {
		denom = c.Assets[c.Setup.NativeAsset].Native
	}
	agents := make([]domain.Addr, 0, len(c.Devnet.Agents))
	for _, a := range c.Devnet.Agents {
		agents = append(agents, domain.Addr(a))
	}
	return devnet.Options{
		RegistryAddr:   domain.Addr(c.Registry.Address),
		SchedulerAddr:  domain.Addr(c.Scheduler.Address),
		Tariff:         domain.NewCoin(denom, amount(c.Registry.TariffAmount)),
		Agents:         agents,
		Workers:        c.Devnet.Workers,
		Rotation:       duration(c.Devnet.Rotation, 0),
		TriggerTimeout: duration(c.Devnet.TriggerTimeout, 30*time.Second),
	}
}

// AuthOptions assumes Validate already accepted the roles.
func (c *Config) AuthOptions() auth.Options {
	keys := make([]auth.APIKey, 0, len(c.Auth.APIKeys))
	for _, k := range c.Auth.APIKeys {
		role, _ := auth.ParseRole(k.Role)
		keys = append(keys, auth.APIKey{Key: k.Key, Address: domain.Addr(k.Address), Role: role})
	}
	return auth.Options{APIKeys: keys, JWTSecret: c.Auth.JWTSecret, Issuer: c.Auth.Issuer}
}
