// Package schedule builds recurring-task registrations for the external
// scheduler and looks up who the scheduler lets trigger a task.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"autorenew/internal/domain"
	"autorenew/internal/msg"
)

const DefaultGasLimit uint64 = 300_000

type Factory struct {
	GasLimit uint64
}

func NewFactory(gasLimit uint64) Factory {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	return Factory{GasLimit: gasLimit}
}

// Registration is a create_task request plus the funds attached to it.
type Registration struct {
	Task    msg.CreateTaskMsg
	Funding []domain.Coin
}

// BuildRecurringRenewal registers one unconditional action: a self-call to
// renew_domain for id. stop_on_fail is always set. The schedule is passed
// through verbatim; only the scheduler decides which expressions it accepts.
func (f Factory) BuildRecurringRenewal(self domain.Addr, schedule string, id domain.TaskID, funding domain.Coin) (Registration, error) {
	if self.Empty() {
		return Registration{}, fmt.Errorf("%w: empty contract address", domain.ErrInvalidMessage)
	}
	if strings.TrimSpace(schedule) == "" {
		return Registration{}, fmt.Errorf("%w: empty schedule", domain.ErrInvalidSchedule)
	}
	payload, err := json.Marshal(msg.ExecuteMsg{RenewDomain: &msg.RenewDomainMsg{TaskID: id}})
	if err != nil {
		return Registration{}, err
	}
	gas := f.GasLimit
	return Registration{
		Task: msg.CreateTaskMsg{
			Tag: id.Tag(),
			Task: msg.TaskRequest{
				Interval:   msg.Interval{Cron: schedule},
				StopOnFail: true,
				Actions: []msg.Action{{
					Msg:      msg.RemoteCall{Contract: self, Msg: payload, Funds: []domain.Coin{}},
					GasLimit: &gas,
				}},
			},
		},
		Funding: []domain.Coin{funding},
	}, nil
}

// Call wraps the registration as an execute call on the scheduler contract.
func (r Registration) Call(scheduler domain.Addr) (msg.RemoteCall, error) {
	task := r.Task
	raw, err := json.Marshal(msg.SchedulerExecuteMsg{CreateTask: &task})
	if err != nil {
		return msg.RemoteCall{}, err
	}
	return msg.RemoteCall{Contract: scheduler, Msg: raw, Funds: r.Funding}, nil
}

// Querier runs a read-only smart query against a contract.
type Querier interface {
	QueryContract(ctx context.Context, contract domain.Addr, query any, out any) error
}

// Client reads task state back from the scheduler.
type Client struct {
	Scheduler domain.Addr
	Querier   Querier
}

// ExecutorFor returns the address currently allowed to trigger task id of owner.
func (c Client) ExecutorFor(ctx context.Context, owner domain.Addr, id domain.TaskID) (domain.Addr, error) {
	var resp msg.ExecutorForResponse
	q := msg.SchedulerQueryMsg{ExecutorFor: &msg.ExecutorForQuery{Owner: owner, Tag: id.Tag()}}
	if err := c.Querier.QueryContract(ctx, c.Scheduler, q, &resp); err != nil {
		return "", domain.Remote(c.Scheduler, "executor_for", err)
	}
	return resp.Executor, nil
}
