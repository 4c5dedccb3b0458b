package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"autorenew/internal/domain"
	"autorenew/internal/gate"
	"autorenew/internal/msg"
)

func (m *Module) Execute(ctx context.Context, deps Deps, env Env, info Info, in msg.ExecuteMsg) (*Response, error) {
	if _, err := in.Variant(); err != nil {
		return nil, err
	}
	switch {
	case in.Increment != nil:
		return m.increment(ctx, deps)
	case in.Reset != nil:
		return m.reset(ctx, deps, info, in.Reset.Count)
	case in.UpdateConfig != nil:
		return m.updateConfig(ctx, deps, info, *in.UpdateConfig)
	case in.UpdateDefaultID != nil:
		return m.updateDefaultID(ctx, deps, info, in.UpdateDefaultID.Name)
	case in.RegisterDomain != nil:
		return m.registerDomain(ctx, deps, env, info, in.RegisterDomain.DesiredName)
	case in.RegisterDomain2 != nil:
		return m.registerDomainProxied(ctx, deps, env, info, in.RegisterDomain2.DesiredName)
	case in.CreateAutoRenewalTask != nil:
		return m.createAutoRenewalTask(ctx, deps, env, info, *in.CreateAutoRenewalTask)
	case in.RenewDomain != nil:
		return m.renewDomain(ctx, deps, env, info, in.RenewDomain.TaskID)
	case in.CancelAutoRenewalTask != nil:
		return nil, fmt.Errorf("%w: cancel_auto_renewal_task", domain.ErrUnsupported)
	case in.UpdateAutoRenewalTask != nil:
		return nil, fmt.Errorf("%w: update_auto_renewal_task", domain.ErrUnsupported)
	}
	return nil, domain.ErrInvalidMessage
}

func (m *Module) increment(ctx context.Context, deps Deps) (*Response, error) {
	n, err := deps.Tx.IncrementCount(ctx)
	if err != nil {
		return nil, err
	}
	return newResponse("increment").attr("count", strconv.FormatInt(int64(n), 10)), nil
}

func (m *Module) reset(ctx context.Context, deps Deps, info Info, count int32) (*Response, error) {
	if err := gate.Require(ctx, deps.Tx, info.Sender, gate.RoleAdmin); err != nil {
		return nil, err
	}
	if err := deps.Tx.SaveCount(ctx, count); err != nil {
		return nil, err
	}
	return newResponse("reset").attr("count", strconv.FormatInt(int64(count), 10)), nil
}

func (m *Module) updateConfig(ctx context.Context, deps Deps, info Info, in msg.UpdateConfigMsg) (*Response, error) {
	if err := gate.Require(ctx, deps.Tx, info.Sender, gate.RoleAdmin); err != nil {
		return nil, err
	}
	cfg, err := deps.Tx.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	resp := newResponse("update_config")
	if in.TaskCreationAmount != nil {
		cfg.TaskCreationAmount = *in.TaskCreationAmount
		resp.attr("task_creation_amount", cfg.TaskCreationAmount.String())
	}
	if in.RefillThreshold != nil {
		cfg.RefillThreshold = *in.RefillThreshold
		resp.attr("refill_threshold", cfg.RefillThreshold.String())
	}
	if err := deps.Tx.SaveConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return resp, nil
}

// updateDefaultID lets the registered owner of a name pick it as their default.
func (m *Module) updateDefaultID(ctx context.Context, deps Deps, info Info, name string) (*Response, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty name", domain.ErrInvalidName)
	}
	cfg, err := deps.Tx.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	record, err := m.builder(cfg).Resolve(ctx, deps.Querier, name)
	if err != nil {
		return nil, err
	}
	if record.Address == nil || *record.Address != info.Sender {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotNameOwner, name)
	}
	if err := deps.Tx.PutDefaultID(ctx, info.Sender, name); err != nil {
		return nil, err
	}
	return newResponse("update_default_id").
		attr("sender", info.Sender.String()).
		attr("default_id", name), nil
}

// registerDomain forwards the attached tariff to the registry from the module address.
func (m *Module) registerDomain(ctx context.Context, deps Deps, env Env, info Info, name string) (*Response, error) {
	cfg, err := deps.Tx.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	b := m.builder(cfg)
	if err := b.CoversTariff(info.Funds); err != nil {
		return nil, err
	}
	call, err := b.BuildRegister(name)
	if err != nil {
		return nil, err
	}
	return newResponse("register_domain").
		direct(env, call).
		attr("sender", info.Sender.String()).
		attr("domain_name", name), nil
}

// registerDomainProxied has the owning account register and pay for the name.
func (m *Module) registerDomainProxied(ctx context.Context, deps Deps, env Env, info Info, name string) (*Response, error) {
	cfg, err := deps.Tx.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	call, err := m.builder(cfg).BuildRegister(name)
	if err != nil {
		return nil, err
	}
	return newResponse("register_domain").
		proxied(env, call).
		attr("sender", info.Sender.String()).
		attr("domain_name", name), nil
}

// createAutoRenewalTask binds a new task id and registers it with the
// scheduler in the same request. The task is registered from the module
// address, which is the owner renewDomain later looks the executor up under.
// If the registration sub-call fails the whole request, binding included, is
// rolled back by the host.
func (m *Module) createAutoRenewalTask(ctx context.Context, deps Deps, env Env, info Info, in msg.CreateAutoRenewalTaskMsg) (*Response, error) {
	if err := gate.Require(ctx, deps.Tx, info.Sender, gate.RoleAdmin); err != nil {
		return nil, err
	}
	cfg, err := deps.Tx.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}

	reg := registry(deps)
	id, err := reg.Allocate(ctx)
	if err != nil {
		return nil, err
	}
	entry := domain.TaskEntry{Frequency: in.Frequency, DomainName: in.DomainName}
	if err := reg.Bind(ctx, id, entry); err != nil {
		return nil, err
	}

	funding := domain.NewCoin(cfg.NativeDenom, cfg.TaskCreationAmount)
	registration, err := m.factory.BuildRecurringRenewal(env.Contract, in.Frequency, id, funding)
	if err != nil {
		return nil, err
	}
	call, err := registration.Call(m.settings.Scheduler)
	if err != nil {
		return nil, err
	}

	return newResponse("create_auto_renewal_task").
		direct(env, call).
		attr("sender", info.Sender.String()).
		attr("task_id", id.Tag()).
		attr("domain_name", in.DomainName), nil
}

// renewDomain is the scheduler's callback. Only the executor the scheduler
// has on record for task id may call it.
func (m *Module) renewDomain(ctx context.Context, deps Deps, env Env, info Info, id domain.TaskID) (*Response, error) {
	if err := m.renewalGate(deps).Authorize(ctx, id, info.Sender, env.Contract); err != nil {
		return nil, err
	}
	entry, err := registry(deps).Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg, err := deps.Tx.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	call, err := m.builder(cfg).BuildRenew(entry.DomainName)
	if err != nil {
		return nil, err
	}
	return newResponse("renew_domain").
		proxied(env, call).
		attr("sender", info.Sender.String()).
		attr("task_id", id.Tag()).
		attr("domain_name", entry.DomainName), nil
}
