// Package msg holds the wire messages of the module and of the two remote
// services it talks to. Unions are externally tagged JSON objects with a
// single snake_case key, e.g. {"renew_domain":{"task_id":0}}.
package msg

import (
	"encoding/json"
	"fmt"
	"reflect"

	"autorenew/internal/domain"
)

type InstantiateMsg struct {
	Count              int32         `json:"count"`
	NativeAsset        string        `json:"native_asset"`
	TaskCreationAmount domain.Amount `json:"task_creation_amount"`
	RefillThreshold    domain.Amount `json:"refill_threshold"`
	// Admin defaults to the instantiating sender.
	Admin domain.Addr `json:"admin,omitempty"`
}

type MigrateMsg struct{}

type Empty struct{}

type ResetMsg struct {
	Count int32 `json:"count"`
}

type UpdateConfigMsg struct {
	TaskCreationAmount *domain.Amount `json:"task_creation_amount,omitempty"`
	RefillThreshold    *domain.Amount `json:"refill_threshold,omitempty"`
}

type UpdateDefaultIDMsg struct {
	Name string `json:"name"`
}

type RegisterDomainMsg struct {
	DesiredName string `json:"desired_name"`
}

type CreateAutoRenewalTaskMsg struct {
	Frequency  string `json:"frequency"`
	DomainName string `json:"domain_name"`
}

type RenewDomainMsg struct {
	TaskID domain.TaskID `json:"task_id"`
}

type CancelAutoRenewalTaskMsg struct {
	TaskID domain.TaskID `json:"task_id"`
}

type UpdateAutoRenewalTaskMsg struct {
	TaskID     domain.TaskID `json:"task_id"`
	Frequency  *string       `json:"frequency,omitempty"`
	DomainName *string       `json:"domain_name,omitempty"`
}

// ExecuteMsg is the union of execute entry points. Exactly one field is set.
type ExecuteMsg struct {
	Increment             *Empty                    `json:"increment,omitempty"`
	Reset                 *ResetMsg                 `json:"reset,omitempty"`
	UpdateConfig          *UpdateConfigMsg          `json:"update_config,omitempty"`
	UpdateDefaultID       *UpdateDefaultIDMsg       `json:"update_default_id,omitempty"`
	RegisterDomain        *RegisterDomainMsg        `json:"register_domain,omitempty"`
	RegisterDomain2       *RegisterDomainMsg        `json:"register_domain2,omitempty"`
	CreateAutoRenewalTask *CreateAutoRenewalTaskMsg `json:"create_auto_renewal_task,omitempty"`
	RenewDomain           *RenewDomainMsg           `json:"renew_domain,omitempty"`
	CancelAutoRenewalTask *CancelAutoRenewalTaskMsg `json:"cancel_auto_renewal_task,omitempty"`
	UpdateAutoRenewalTask *UpdateAutoRenewalTaskMsg `json:"update_auto_renewal_task,omitempty"`
}

func (m ExecuteMsg) Variant() (string, error) { return variant(m) }

type DefaultIDQuery struct {
	Address domain.Addr `json:"address"`
}

type NameResolutionQuery struct {
	DomainName string `json:"domain_name"`
}

type TaskQuery struct {
	TaskID domain.TaskID `json:"task_id"`
}

type TasksQuery struct {
	StartAfter *domain.TaskID `json:"start_after,omitempty"`
	Limit      *uint32        `json:"limit,omitempty"`
}

// QueryMsg is the union of query entry points. Exactly one field is set.
type QueryMsg struct {
	Config         *Empty               `json:"config,omitempty"`
	Count          *Empty               `json:"count,omitempty"`
	NameResolution *NameResolutionQuery `json:"name_resolution,omitempty"`
	DefaultID      *DefaultIDQuery      `json:"default_id,omitempty"`
	Task           *TaskQuery           `json:"task,omitempty"`
	Tasks          *TasksQuery          `json:"tasks,omitempty"`
}

func (m QueryMsg) Variant() (string, error) { return variant(m) }

type ConfigResponse struct {
	NativeDenom        string        `json:"native_denom"`
	TaskCreationAmount domain.Amount `json:"task_creation_amount"`
	RefillThreshold    domain.Amount `json:"refill_threshold"`
	Admin              domain.Addr   `json:"admin"`
}

type CountResponse struct {
	Count      int32         `json:"count"`
	NextTaskID domain.TaskID `json:"next_task_id"`
}

type NameResolutionResponse struct {
	QueryResp ResolveRecordResponse `json:"query_resp"`
}

type DefaultIDResponse struct {
	DefaultID string `json:"default_id"`
}

type TaskResponse struct {
	TaskID domain.TaskID    `json:"task_id"`
	Entry  domain.TaskEntry `json:"entry"`
}

type TasksResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// variant returns the json tag of the single non-nil pointer field of a union.
func variant(v any) (string, error) {
	rv := reflect.ValueOf(v)
	rt := rv.Type()
	name := ""
	for i := 0; i < rt.NumField(); i++ {
		if rv.Field(i).IsNil() {
			continue
		}
		if name != "" {
			return "", fmt.Errorf("%w: more than one variant set", domain.ErrInvalidMessage)
		}
		name = jsonName(rt.Field(i))
	}
	if name == "" {
		return "", fmt.Errorf("%w: no variant set", domain.ErrInvalidMessage)
	}
	return name, nil
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i]
		}
	}
	return tag
}

// Decode parses a union message and rejects unknown variants.
func Decode(raw []byte, out interface{ Variant() (string, error) }) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}
	if len(keys) != 1 {
		return fmt.Errorf("%w: expected exactly one variant, got %d", domain.ErrInvalidMessage, len(keys))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}
	if _, err := out.Variant(); err != nil {
		return fmt.Errorf("%w: unknown variant", domain.ErrInvalidMessage)
	}
	return nil
}
