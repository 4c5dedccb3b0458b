// Package gate holds the access checks: the admin capability check and the
// renewal authorization that asks the scheduler who may trigger a task.
package gate

import (
	"context"
	"fmt"

	"autorenew/internal/domain"
)

type Role int

const (
	RoleAdmin Role = iota + 1
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// AdminSource yields the current admin address.
type AdminSource interface {
	LoadAdmin(ctx context.Context) (domain.Addr, error)
}

// Require is called at the top of every privileged operation.
func Require(ctx context.Context, admins AdminSource, caller domain.Addr, role Role) error {
	switch role {
	case RoleAdmin:
		admin, err := admins.LoadAdmin(ctx)
		if err != nil {
			return err
		}
		if admin.Empty() || admin != caller {
			return domain.ErrNotAdmin
		}
		return nil
	default:
		return fmt.Errorf("unknown role %s", role)
	}
}

// ExecutorLookup asks the scheduler for the executor of a task.
type ExecutorLookup interface {
	ExecutorFor(ctx context.Context, owner domain.Addr, id domain.TaskID) (domain.Addr, error)
}

// Gate authorizes renewal triggers.
type Gate struct {
	lookup ExecutorLookup
}

func New(lookup ExecutorLookup) Gate { return Gate{lookup: lookup} }

// Authorize returns nil only when caller is exactly the executor the scheduler
// has on record for task id owned by self. The lookup runs on every call since
// the scheduler may rotate executors between triggers.
func (g Gate) Authorize(ctx context.Context, id domain.TaskID, caller, self domain.Addr) error {
	expected, err := g.lookup.ExecutorFor(ctx, self, id)
	if err != nil {
		return err
	}
	if expected.Empty() || expected != caller {
		return &domain.NotManagerError{Caller: caller, Expected: expected}
	}
	return nil
}
