package app

import (
	"context"

	"autorenew/internal/domain"
	"autorenew/internal/msg"
)

func (m *Module) Query(ctx context.Context, deps Deps, _ Env, in msg.QueryMsg) (any, error) {
	if _, err := in.Variant(); err != nil {
		return nil, err
	}
	switch {
	case in.Config != nil:
		return m.queryConfig(ctx, deps)
	case in.Count != nil:
		return m.queryCount(ctx, deps)
	case in.NameResolution != nil:
		return m.queryNameResolution(ctx, deps, in.NameResolution.DomainName)
	case in.DefaultID != nil:
		name, err := deps.Tx.GetDefaultID(ctx, in.DefaultID.Address)
		if err != nil {
			return nil, err
		}
		return msg.DefaultIDResponse{DefaultID: name}, nil
	case in.Task != nil:
		entry, err := registry(deps).Resolve(ctx, in.Task.TaskID)
		if err != nil {
			return nil, err
		}
		return msg.TaskResponse{TaskID: in.Task.TaskID, Entry: entry}, nil
	case in.Tasks != nil:
		return m.queryTasks(ctx, deps, *in.Tasks)
	}
	return nil, domain.ErrInvalidMessage
}

func (m *Module) queryConfig(ctx context.Context, deps Deps) (msg.ConfigResponse, error) {
	cfg, err := deps.Tx.LoadConfig(ctx)
	if err != nil {
		return msg.ConfigResponse{}, err
	}
	admin, err := deps.Tx.LoadAdmin(ctx)
	if err != nil {
		return msg.ConfigResponse{}, err
	}
	return msg.ConfigResponse{
		NativeDenom:        cfg.NativeDenom,
		TaskCreationAmount: cfg.TaskCreationAmount,
		RefillThreshold:    cfg.RefillThreshold,
		Admin:              admin,
	}, nil
}

func (m *Module) queryCount(ctx context.Context, deps Deps) (msg.CountResponse, error) {
	n, err := deps.Tx.LoadCount(ctx)
	if err != nil {
		return msg.CountResponse{}, err
	}
	next, err := registry(deps).Next(ctx)
	if err != nil {
		return msg.CountResponse{}, err
	}
	return msg.CountResponse{Count: n, NextTaskID: next}, nil
}

func (m *Module) queryNameResolution(ctx context.Context, deps Deps, name string) (msg.NameResolutionResponse, error) {
	cfg, err := deps.Tx.LoadConfig(ctx)
	if err != nil {
		return msg.NameResolutionResponse{}, err
	}
	resp, err := m.builder(cfg).Resolve(ctx, deps.Querier, name)
	if err != nil {
		return msg.NameResolutionResponse{}, err
	}
	return msg.NameResolutionResponse{QueryResp: resp}, nil
}

func (m *Module) queryTasks(ctx context.Context, deps Deps, q msg.TasksQuery) (msg.TasksResponse, error) {
	var limit uint32
	if q.Limit != nil {
		limit = *q.Limit
	}
	records, err := registry(deps).List(ctx, q.StartAfter, limit)
	if err != nil {
		return msg.TasksResponse{}, err
	}
	out := msg.TasksResponse{Tasks: make([]msg.TaskResponse, 0, len(records))}
	for _, r := range records {
		out.Tasks = append(out.Tasks, msg.TaskResponse{TaskID: r.ID, Entry: r.Entry})
	}
	return out, nil
}
