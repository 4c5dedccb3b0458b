// Package names builds the outbound calls made to the name registry.
package names

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"autorenew/internal/domain"
	"autorenew/internal/msg"
)

// Builder knows the registry address and its fixed one-year tariff.
// It holds no other state: equal inputs give byte-identical calls.
type Builder struct {
	Registry domain.Addr
	Tariff   domain.Coin
}

func NewBuilder(registry domain.Addr, tariff domain.Coin) Builder {
	return Builder{Registry: registry, Tariff: tariff}
}

func (b Builder) BuildRegister(name string) (msg.RemoteCall, error) {
	return b.build(msg.RegistryExecuteMsg{Register: &msg.NameMsg{Name: name}})
}

func (b Builder) BuildRenew(name string) (msg.RemoteCall, error) {
	return b.build(msg.RegistryExecuteMsg{RenewRegistration: &msg.NameMsg{Name: name}})
}

func (b Builder) build(m msg.RegistryExecuteMsg) (msg.RemoteCall, error) {
	name := ""
	switch {
	case m.Register != nil:
		name = m.Register.Name
	case m.RenewRegistration != nil:
		name = m.RenewRegistration.Name
	}
	if strings.TrimSpace(name) == "" {
		return msg.RemoteCall{}, fmt.Errorf("%w: empty name", domain.ErrInvalidName)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return msg.RemoteCall{}, err
	}
	return msg.RemoteCall{
		Contract: b.Registry,
		Msg:      raw,
		Funds:    []domain.Coin{b.Tariff},
	}, nil
}

// CoversTariff reports whether funds sent with a request pay for one year.
func (b Builder) CoversTariff(funds []domain.Coin) error {
	paid := domain.AmountOf(funds, b.Tariff.Denom)
	if paid.Cmp(b.Tariff.Amount) < 0 {
		return fmt.Errorf("%w: need %s, got %s%s", domain.ErrInsufficientFunds, b.Tariff, paid, b.Tariff.Denom)
	}
	return nil
}

// Querier runs a read-only smart query against a contract.
type Querier interface {
	QueryContract(ctx context.Context, contract domain.Addr, query any, out any) error
}

// Resolve passes a ResolveRecord query through to the registry.
func (b Builder) Resolve(ctx context.Context, q Querier, name string) (msg.ResolveRecordResponse, error) {
	var resp msg.ResolveRecordResponse
	query := msg.RegistryQueryMsg{ResolveRecord: &msg.NameMsg{Name: name}}
	if err := q.QueryContract(ctx, b.Registry, query, &resp); err != nil {
		return msg.ResolveRecordResponse{}, domain.Remote(b.Registry, "resolve_record", err)
	}
	return resp, nil
}
