// Package tasks owns task id allocation and the task id to domain binding.
package tasks

import (
	"context"
	"fmt"
	"strings"

	"autorenew/internal/domain"
	"autorenew/internal/store"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 30
)

// Registry wraps the store transaction of the current request.
type Registry struct {
	tx store.Tx
}

func New(tx store.Tx) Registry { return Registry{tx: tx} }

// Allocate hands out the next task id. The counter advances in a single
// statement, so two requests can never observe the same value.
func (r Registry) Allocate(ctx context.Context) (domain.TaskID, error) {
	return r.tx.NextTaskID(ctx)
}

// Bind stores the entry for id. An existing binding is never overwritten.
func (r Registry) Bind(ctx context.Context, id domain.TaskID, e domain.TaskEntry) error {
	if strings.TrimSpace(e.DomainName) == "" {
		return fmt.Errorf("%w: empty domain name", domain.ErrInvalidName)
	}
	if strings.TrimSpace(e.Frequency) == "" {
		return fmt.Errorf("%w: empty frequency", domain.ErrInvalidSchedule)
	}
	return r.tx.InsertTask(ctx, id, e)
}

func (r Registry) Resolve(ctx context.Context, id domain.TaskID) (domain.TaskEntry, error) {
	return r.tx.GetTask(ctx, id)
}

func (r Registry) Next(ctx context.Context) (domain.TaskID, error) {
	return r.tx.PeekTaskID(ctx)
}

func (r Registry) List(ctx context.Context, startAfter *domain.TaskID, limit uint32) ([]store.TaskRecord, error) {
	n := DefaultPageLimit
	if limit > 0 {
		n = int(limit)
	}
	if n > MaxPageLimit {
		n = MaxPageLimit
	}
	return r.tx.ListTasks(ctx, startAfter, n)
}
