package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"autorenew/internal/domain"
	"autorenew/internal/msg"
)

func (m *Module) Instantiate(ctx context.Context, deps Deps, env Env, info Info, in msg.InstantiateMsg) (*Response, error) {
	if _, err := deps.Tx.LoadConfig(ctx); err == nil {
		return nil, domain.ErrAlreadyInstantiated
	} else if !errors.Is(err, domain.ErrNotInstantiated) {
		return nil, err
	}

	denom, err := m.resolveNativeDenom(in.NativeAsset)
	if err != nil {
		return nil, err
	}

	admin := in.Admin
	if admin.Empty() {
		admin = info.Sender
	}
	if admin.Empty() {
		return nil, fmt.Errorf("%w: no admin", domain.ErrInvalidMessage)
	}

	cfg := domain.Config{
		NativeDenom:        denom,
		TaskCreationAmount: in.TaskCreationAmount,
		RefillThreshold:    in.RefillThreshold,
	}
	if err := deps.Tx.SaveConfig(ctx, cfg); err != nil {
		return nil, err
	}
	if err := deps.Tx.SaveCount(ctx, in.Count); err != nil {
		return nil, err
	}
	if err := deps.Tx.SaveAdmin(ctx, admin); err != nil {
		return nil, err
	}
	if err := deps.Tx.SaveVersion(ctx, m.settings.Version); err != nil {
		return nil, err
	}

	return newResponse("instantiate").
		attr("native_denom", denom).
		attr("admin", admin.String()).
		attr("count", strconv.FormatInt(int64(in.Count), 10)), nil
}

// resolveNativeDenom looks a named asset up in the asset name service.
func (m *Module) resolveNativeDenom(name string) (string, error) {
	asset, ok := m.settings.Assets[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownAsset, name)
	}
	if !asset.IsNative() {
		return "", fmt.Errorf("%w: %q", domain.ErrNotNativeAsset, name)
	}
	return asset.Native, nil
}

func (m *Module) Migrate(ctx context.Context, deps Deps, _ Env, _ msg.MigrateMsg) (*Response, error) {
	if _, err := deps.Tx.LoadConfig(ctx); err != nil {
		return nil, err
	}
	prev, err := deps.Tx.LoadVersion(ctx)
	if err != nil {
		return nil, err
	}
	if err := deps.Tx.SaveVersion(ctx, m.settings.Version); err != nil {
		return nil, err
	}
	return newResponse("migrate").
		attr("from_version", prev).
		attr("to_version", m.settings.Version), nil
}
