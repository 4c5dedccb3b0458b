// Package devnet is an in-process stand-in for the chain: a name registry,
// a task scheduler and a router that delivers messages between them and the
// module.
package devnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"autorenew/internal/app"
	"autorenew/internal/domain"
	"autorenew/internal/host"
)

var ErrUnknownContract = errors.New("unknown contract")

// Contract is anything the network can route an execute or query to.
type Contract interface {
	Execute(ctx context.Context, sender domain.Addr, funds []domain.Coin, raw json.RawMessage) (json.RawMessage, error)
	Query(ctx context.Context, raw json.RawMessage) (json.RawMessage, error)
}

// Network routes by contract address. It never holds its lock while a
// contract runs, so contracts may call back into the network.
type Network struct {
	mu        sync.RWMutex
	contracts map[domain.Addr]Contract
}

func NewNetwork() *Network {
	return &Network{contracts: make(map[domain.Addr]Contract)}
}

func (n *Network) Deploy(addr domain.Addr, c Contract) {
	n.mu.Lock()
	n.contracts[addr] = c
	n.mu.Unlock()
}

// BindHost deploys the module served by h at addr.
func (n *Network) BindHost(addr domain.Addr, h *host.Host) {
	n.Deploy(addr, hostContract{h: h})
}

func (n *Network) lookup(addr domain.Addr) (Contract, error) {
	n.mu.RLock()
	c, ok := n.contracts[addr]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, addr)
	}
	return c, nil
}

// Execute delivers m with its origin as the sender.
func (n *Network) Execute(ctx context.Context, m app.Message) (json.RawMessage, error) {
	c, err := n.lookup(m.Call.Contract)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, m.Origin, m.Call.Funds, m.Call.Msg)
}

func (n *Network) QueryContract(ctx context.Context, contract domain.Addr, query any, out any) error {
	c, err := n.lookup(contract)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(query)
	if err != nil {
		return err
	}
	resp, err := c.Query(ctx, raw)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp, out)
}

type hostContract struct {
	h *host.Host
}

func (c hostContract) Execute(ctx context.Context, sender domain.Addr, funds []domain.Coin, raw json.RawMessage) (json.RawMessage, error) {
	res, err := c.h.ExecuteJSON(ctx, sender, funds, raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (c hostContract) Query(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return c.h.QueryJSON(ctx, raw)
}
