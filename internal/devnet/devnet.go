package devnet

import (
	"context"
	"time"

	"autorenew/internal/domain"
	"autorenew/internal/host"
)

type Options struct {
	RegistryAddr   domain.Addr
	SchedulerAddr  domain.Addr
	Tariff         domain.Coin
	Agents         []domain.Addr
	Workers        int
	Rotation       time.Duration
	TriggerTimeout time.Duration
}

type Devnet struct {
	Network   *Network
	Registry  *Registry
	Scheduler *Scheduler
}

func New(o Options) *Devnet {
	net := NewNetwork()
	reg := NewRegistry(o.Tariff)
	sched := NewScheduler(net, SchedulerOptions{
		Agents:         o.Agents,
		Workers:        o.Workers,
		Rotation:       o.Rotation,
		TriggerTimeout: o.TriggerTimeout,
	})
	net.Deploy(o.RegistryAddr, reg)
	net.Deploy(o.SchedulerAddr, sched)
	return &Devnet{Network: net, Registry: reg, Scheduler: sched}
}

// Bind makes the module served by h reachable at addr.
func (d *Devnet) Bind(addr domain.Addr, h *host.Host) {
	d.Network.BindHost(addr, h)
}

func (d *Devnet) Start(ctx context.Context) {
	d.Scheduler.Start(ctx)
}

func (d *Devnet) Stop() {
	d.Scheduler.Stop()
}
