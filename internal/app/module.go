// Package app is the auto-renewal module: instantiate, execute, query and
// migrate handlers over one request's transaction.
package app

import (
	"context"
	"time"

	"autorenew/internal/domain"
	"autorenew/internal/gate"
	"autorenew/internal/names"
	"autorenew/internal/schedule"
	"autorenew/internal/store"
	"autorenew/internal/tasks"
)

// Settings are per-deployment constants resolved at startup.
type Settings struct {
	Version      string
	Registry     domain.Addr
	TariffAmount domain.Amount
	// TariffDenom falls back to the configured native denom when empty.
	TariffDenom string
	Scheduler   domain.Addr
	GasLimit    uint64
	Assets      map[string]domain.AssetInfo
}

// Env describes where the module runs.
type Env struct {
	Contract domain.Addr
	// Account is the owning account that proxied calls are issued from.
	Account domain.Addr
	Time    time.Time
}

// Info describes the caller of one request.
type Info struct {
	Sender domain.Addr
	Funds  []domain.Coin
}

// Querier runs read-only smart queries against other contracts.
type Querier interface {
	QueryContract(ctx context.Context, contract domain.Addr, query any, out any) error
}

// Deps is what a handler may touch during one request.
type Deps struct {
	Tx      store.Tx
	Querier Querier
}

type Module struct {
	settings Settings
	factory  schedule.Factory
}

func New(s Settings) *Module {
	return &Module{settings: s, factory: schedule.NewFactory(s.GasLimit)}
}

func (m *Module) Settings() Settings { return m.settings }

func (m *Module) builder(cfg domain.Config) names.Builder {
	denom := m.settings.TariffDenom
	if denom == "" {
		denom = cfg.NativeDenom
	}
	return names.NewBuilder(m.settings.Registry, domain.NewCoin(denom, m.settings.TariffAmount))
}

func (m *Module) renewalGate(deps Deps) gate.Gate {
	return gate.New(schedule.Client{Scheduler: m.settings.Scheduler, Querier: deps.Querier})
}

func registry(deps Deps) tasks.Registry { return tasks.New(deps.Tx) }
