// Package host runs module requests one at a time, each in its own
// transaction, and dispatches the outbound messages they emit.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"autorenew/internal/app"
	"autorenew/internal/domain"
	"autorenew/internal/msg"
	"autorenew/internal/store"
)

// Transport delivers outbound messages and smart queries to other contracts.
type Transport interface {
	Execute(ctx context.Context, m app.Message) (json.RawMessage, error)
	QueryContract(ctx context.Context, contract domain.Addr, query any, out any) error
}

// Result is what a successful execute returns. Replies line up with
// Response.Messages.
type Result struct {
	Response *app.Response     `json:"response"`
	Replies  []json.RawMessage `json:"replies"`
}

type Stats struct {
	Executed uint64 `json:"executed"`
	Failed   uint64 `json:"failed"`
	Rejected uint64 `json:"rejected"`
	Queries  uint64 `json:"queries"`
	// Orphaned counts requests whose messages were delivered but whose
	// commit then failed.
	Orphaned uint64 `json:"orphaned"`
}

type Host struct {
	mu        sync.Mutex
	store     *store.Store
	module    *app.Module
	transport Transport
	env       app.Env
	now       func() time.Time

	executed atomic.Uint64
	failed   atomic.Uint64
	rejected atomic.Uint64
	queries  atomic.Uint64
	orphaned atomic.Uint64
}

func New(st *store.Store, module *app.Module, transport Transport, contract, account domain.Addr) *Host {
	return &Host{
		store:     st,
		module:    module,
		transport: transport,
		env:       app.Env{Contract: contract, Account: account},
		now:       time.Now,
	}
}

func (h *Host) Env() app.Env { return h.env }

func (h *Host) Stats() Stats {
	return Stats{
		Executed: h.executed.Load(),
		Failed:   h.failed.Load(),
		Rejected: h.rejected.Load(),
		Queries:  h.queries.Load(),
		Orphaned: h.orphaned.Load(),
	}
}

func (h *Host) Instantiate(ctx context.Context, sender domain.Addr, in msg.InstantiateMsg) (*Result, error) {
	info := app.Info{Sender: sender}
	return h.run(ctx, "instantiate", info, func(deps app.Deps, env app.Env) (*app.Response, error) {
		return h.module.Instantiate(ctx, deps, env, info, in)
	})
}

// Instantiated reports whether the module has a persisted config.
func (h *Host) Instantiated(ctx context.Context) (bool, error) {
	ok := false
	err := h.store.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.LoadConfig(ctx)
		if err == nil {
			ok = true
			return nil
		}
		if errors.Is(err, domain.ErrNotInstantiated) {
			return nil
		}
		return err
	})
	return ok, err
}

func (h *Host) Migrate(ctx context.Context) (*Result, error) {
	return h.run(ctx, "migrate", app.Info{}, func(deps app.Deps, env app.Env) (*app.Response, error) {
		return h.module.Migrate(ctx, deps, env, msg.MigrateMsg{})
	})
}

func (h *Host) Execute(ctx context.Context, sender domain.Addr, funds []domain.Coin, in msg.ExecuteMsg) (*Result, error) {
	action, err := in.Variant()
	if err != nil {
		return nil, err
	}
	info := app.Info{Sender: sender, Funds: funds}
	return h.run(ctx, action, info, func(deps app.Deps, env app.Env) (*app.Response, error) {
		return h.module.Execute(ctx, deps, env, info, in)
	})
}

func (h *Host) ExecuteJSON(ctx context.Context, sender domain.Addr, funds []domain.Coin, raw []byte) (*Result, error) {
	var in msg.ExecuteMsg
	if err := msg.Decode(raw, &in); err != nil {
		return nil, err
	}
	return h.Execute(ctx, sender, funds, in)
}

func (h *Host) Query(ctx context.Context, in msg.QueryMsg) (json.RawMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queries.Add(1)

	env := h.env
	env.Time = h.now()
	var out json.RawMessage
	err := h.store.InTx(ctx, func(tx store.Tx) error {
		v, err := h.module.Query(ctx, app.Deps{Tx: tx, Querier: h.transport}, env, in)
		if err != nil {
			return err
		}
		out, err = json.Marshal(v)
		return err
	})
	return out, err
}

func (h *Host) QueryJSON(ctx context.Context, raw []byte) (json.RawMessage, error) {
	var in msg.QueryMsg
	if err := msg.Decode(raw, &in); err != nil {
		return nil, err
	}
	return h.Query(ctx, in)
}

// run executes handler and then every message it emitted, inside one
// transaction. Any failure, local or remote, rolls the whole request back.
// Delivered messages cannot be recalled, so a commit that fails after
// dispatch is logged with every message it leaves behind.
func (h *Host) run(ctx context.Context, action string, info app.Info, handler func(app.Deps, app.Env) (*app.Response, error)) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	env := h.env
	env.Time = h.now()
	start := time.Now()

	var (
		res        Result
		dispatched bool
	)
	err := h.store.InTx(ctx, func(tx store.Tx) error {
		resp, err := handler(app.Deps{Tx: tx, Querier: h.transport}, env)
		if err != nil {
			return err
		}
		res.Response = resp
		for i, m := range resp.Messages {
			reply, err := h.transport.Execute(ctx, m)
			if err != nil {
				return domain.Remote(m.Call.Contract, fmt.Sprintf("message %d", i), err)
			}
			res.Replies = append(res.Replies, reply)
		}
		dispatched = true
		return nil
	})
	if err != nil && dispatched {
		h.orphaned.Add(1)
		h.logOrphaned(action, res.Response, err)
	}

	var ev *zerolog.Event
	if err != nil {
		switch domain.Classify(err) {
		case domain.ClassAuthorization, domain.ClassValidation, domain.ClassNotFound, domain.ClassUnsupported:
			h.rejected.Add(1)
			ev = log.Warn().Err(err)
		default:
			h.failed.Add(1)
			ev = log.Error().Err(err)
		}
	} else {
		h.executed.Add(1)
		ev = log.Info().Int("messages", len(res.Response.Messages))
		if id, ok := res.Response.Attr("task_id"); ok {
			ev = ev.Str("task_id", id)
		}
	}
	ev.Str("action", action).
		Str("sender", info.Sender.String()).
		Dur("took", time.Since(start)).
		Msg("execute")

	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (h *Host) logOrphaned(action string, resp *app.Response, err error) {
	for i, m := range resp.Messages {
		ev := log.Error().Err(err).
			Str("action", action).
			Int("message", i).
			Str("contract", m.Call.Contract.String()).
			Str("origin", m.Origin.String()).
			RawJSON("msg", m.Call.Msg)
		if id, ok := resp.Attr("task_id"); ok {
			ev = ev.Str("task_id", id)
		}
		ev.Msg("commit failed after dispatch; remote side effect has no local record")
	}
}
