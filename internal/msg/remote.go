package msg

import (
	"encoding/json"

	"autorenew/internal/domain"
)

// RemoteCall is an execute call against another contract, with attached funds.
type RemoteCall struct {
	Contract domain.Addr     `json:"contract_addr"`
	Msg      json.RawMessage `json:"msg"`
	Funds    []domain.Coin   `json:"funds"`
}

// Registry wire messages.

type NameMsg struct {
	Name string `json:"name"`
}

type RegistryExecuteMsg struct {
	Register          *NameMsg `json:"register,omitempty"`
	RenewRegistration *NameMsg `json:"renew_registration,omitempty"`
}

func (m RegistryExecuteMsg) Variant() (string, error) { return variant(m) }

type RegistryQueryMsg struct {
	ResolveRecord *NameMsg `json:"resolve_record,omitempty"`
}

func (m RegistryQueryMsg) Variant() (string, error) { return variant(m) }

// ResolveRecordResponse is passed through to callers unchanged.
type ResolveRecordResponse struct {
	Address    *domain.Addr `json:"address"`
	Expiration uint64       `json:"expiration"`
}

// Scheduler wire messages.

type Interval struct {
	Cron string `json:"cron"`
}

type Boundary struct {
	Start *uint64 `json:"start,omitempty"`
	End   *uint64 `json:"end,omitempty"`
}

type Action struct {
	Msg      RemoteCall `json:"msg"`
	GasLimit *uint64    `json:"gas_limit,omitempty"`
}

type TaskRequest struct {
	Interval   Interval          `json:"interval"`
	Boundary   *Boundary         `json:"boundary,omitempty"`
	StopOnFail bool              `json:"stop_on_fail"`
	Actions    []Action          `json:"actions"`
	Queries    []json.RawMessage `json:"queries,omitempty"`
	Transforms []json.RawMessage `json:"transforms,omitempty"`
}

type CreateTaskMsg struct {
	Tag  string      `json:"tag"`
	Task TaskRequest `json:"task"`
}

type SchedulerExecuteMsg struct {
	CreateTask *CreateTaskMsg `json:"create_task,omitempty"`
}

func (m SchedulerExecuteMsg) Variant() (string, error) { return variant(m) }

type ExecutorForQuery struct {
	Owner domain.Addr `json:"owner"`
	Tag   string      `json:"tag"`
}

type SchedulerQueryMsg struct {
	ExecutorFor *ExecutorForQuery `json:"executor_for,omitempty"`
}

func (m SchedulerQueryMsg) Variant() (string, error) { return variant(m) }

type ExecutorForResponse struct {
	Executor domain.Addr `json:"executor"`
}

type CreateTaskResponse struct {
	Tag string `json:"tag"`
}
