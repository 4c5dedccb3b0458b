package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorenew/internal/auth"
	"autorenew/internal/domain"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "autorenew.yaml", `
server:
  addr: ":9090"
registry:
  address: archway1reg
  tariff_amount: "250"
  tariff_denom: aconst
remote:
  endpoint: http://gateway.local:1317
  rps: 2
setup:
  auto_instantiate: true
  native_asset: archway>const
  task_creation_amount: "5000000"
assets:
  archway>usdc:
    cw20: archway1usdc
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "archway1reg", cfg.Registry.Address)
	assert.Equal(t, "http://gateway.local:1317", cfg.Remote.Endpoint)
	assert.Equal(t, domain.AssetInfo{CW20: "archway1usdc"}, cfg.Assets["archway>usdc"])
	assert.Equal(t, domain.AssetInfo{Native: "aarch"}, cfg.Assets["archway>arch"])

	s := cfg.Settings()
	assert.Equal(t, "250", s.TariffAmount.String())
	assert.Equal(t, "aconst", s.TariffDenom)
	assert.Equal(t, domain.Addr("archway1scheduler"), s.Scheduler)

	in := cfg.InstantiateMsg()
	assert.Equal(t, "archway>const", in.NativeAsset)
	assert.Equal(t, "5000000", in.TaskCreationAmount.String())

	opts := cfg.RemoteOptions()
	assert.Equal(t, 2.0, opts.RPS)
	assert.Equal(t, 30*time.Second, opts.Timeout)
}

func TestLoadJSONRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "autorenew.json", `{"server":{"addr":":1","bogus":true}}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUTORENEW_DEVNET", "true")
	t.Setenv("AUTORENEW_DEVNET_AGENTS", "archway1a, archway1b")
	t.Setenv("AUTORENEW_GAS_LIMIT", "123")
	t.Setenv("AUTORENEW_DB_PATH", "/tmp/x.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Devnet.Enabled)
	assert.Equal(t, []string{"archway1a", "archway1b"}, cfg.Devnet.Agents)
	assert.Equal(t, uint64(123), cfg.Scheduler.GasLimit)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.Path)

	opts := cfg.DevnetOptions()
	assert.Equal(t, "aarch", opts.Tariff.Denom)
	assert.Equal(t, []domain.Addr{"archway1a", "archway1b"}, opts.Agents)
	assert.Equal(t, time.Hour, opts.Rotation)
}

func TestEnvRejectsBadBool(t *testing.T) {
	t.Setenv("AUTORENEW_DEVNET", "maybe")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateCrossFieldChecks(t *testing.T) {
	cfg := DefaultConfig()
	assert.ErrorContains(t, cfg.Validate(), "remote.endpoint")

	cfg.Devnet.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg.Registry.TariffAmount = "340282366920938463463374607431768211456"
	assert.ErrorContains(t, cfg.Validate(), "registry.tariff_amount")

	cfg = DefaultConfig()
	cfg.Devnet.Enabled = true
	cfg.Server.ReadTimeout = "soon"
	assert.ErrorContains(t, cfg.Validate(), "server.read_timeout")

	cfg = DefaultConfig()
	cfg.Devnet.Enabled = true
	cfg.Setup.AutoInstantiate = true
	cfg.Setup.NativeAsset = "missing>asset"
	assert.ErrorContains(t, cfg.Validate(), "setup.native_asset")

	cfg = DefaultConfig()
	cfg.Devnet.Enabled = true
	cfg.Assets["broken"] = domain.AssetInfo{}
	assert.ErrorContains(t, cfg.Validate(), "assets.broken")
}

func TestValidateStructTags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Devnet.Enabled = true
	cfg.Logging.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Devnet.Enabled = true
	cfg.Devnet.Agents = nil
	assert.Error(t, cfg.Validate())
}

func TestLoadAuthSection(t *testing.T) {
	path := writeFile(t, "autorenew.yaml", `
devnet:
  enabled: true
auth:
  jwt_secret: 0123456789abcdef0123456789abcdef
  api_keys:
    - key: admin-key-0123456789
      address: archway1admin
    - key: agent-key-0123456789
      address: archway1agent
      role: scheduler
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	opts := cfg.AuthOptions()
	require.Len(t, opts.APIKeys, 2)
	assert.Equal(t, auth.RoleUser, opts.APIKeys[0].Role)
	assert.Equal(t, auth.RoleScheduler, opts.APIKeys[1].Role)
	assert.Equal(t, domain.Addr("archway1agent"), opts.APIKeys[1].Address)
	assert.Equal(t, "autorenew", opts.Issuer)
	assert.True(t, auth.New(opts).Enabled())
}

func TestValidateAuth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Devnet.Enabled = true
	cfg.Auth.JWTSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Devnet.Enabled = true
	cfg.Auth.APIKeys = []APIKeyConfig{{Key: "admin-key-0123456789", Address: "archway1admin", Role: "root"}}
	assert.Error(t, cfg.Validate())

	cfg.Auth.APIKeys = []APIKeyConfig{
		{Key: "admin-key-0123456789", Address: "archway1admin"},
		{Key: "admin-key-0123456789", Address: "archway1other"},
	}
	assert.ErrorContains(t, cfg.Validate(), "duplicate key")
}
