package devnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"autorenew/internal/domain"
	"autorenew/internal/msg"
)

const RegistrationPeriod = 365 * 24 * time.Hour

var ErrNameTaken = errors.New("name already registered")

type Record struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Owner      domain.Addr `json:"owner"`
	Expiration time.Time   `json:"expiration"`
	Renewals   int         `json:"renewals"`
}

// Registry sells names for a fixed yearly tariff.
type Registry struct {
	mu      sync.Mutex
	tariff  domain.Coin
	now     func() time.Time
	records map[string]*Record
}

func NewRegistry(tariff domain.Coin) *Registry {
	return &Registry{tariff: tariff, now: time.Now, records: make(map[string]*Record)}
}

func (r *Registry) Record(name string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

func (r *Registry) Execute(_ context.Context, sender domain.Addr, funds []domain.Coin, raw json.RawMessage) (json.RawMessage, error) {
	var in msg.RegistryExecuteMsg
	if err := msg.Decode(raw, &in); err != nil {
		return nil, err
	}
	if err := r.checkTariff(funds); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	switch {
	case in.Register != nil:
		name := in.Register.Name
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		if rec, ok := r.records[name]; ok && rec.Expiration.After(now) {
			return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
		}
		rec := &Record{ID: uuid.NewString(), Name: name, Owner: sender, Expiration: now.Add(RegistrationPeriod)}
		r.records[name] = rec
		log.Info().Str("name", name).Str("owner", sender.String()).Time("expiration", rec.Expiration).Msg("devnet name registered")
		return json.Marshal(rec)

	case in.RenewRegistration != nil:
		rec, ok := r.records[in.RenewRegistration.Name]
		if !ok {
			return nil, fmt.Errorf("%w: name %s", domain.ErrNotFound, in.RenewRegistration.Name)
		}
		from := rec.Expiration
		if from.Before(now) {
			from = now
		}
		rec.Expiration = from.Add(RegistrationPeriod)
		rec.Renewals++
		log.Info().Str("name", rec.Name).Str("payer", sender.String()).Time("expiration", rec.Expiration).Msg("devnet name renewed")
		return json.Marshal(rec)
	}
	return nil, domain.ErrInvalidMessage
}

func (r *Registry) checkTariff(funds []domain.Coin) error {
	paid := domain.AmountOf(funds, r.tariff.Denom)
	if paid.Cmp(r.tariff.Amount) < 0 {
		return fmt.Errorf("%w: need %s, got %s%s", domain.ErrInsufficientFunds, r.tariff, paid, r.tariff.Denom)
	}
	return nil
}

func (r *Registry) Query(_ context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var in msg.RegistryQueryMsg
	if err := msg.Decode(raw, &in); err != nil {
		return nil, err
	}
	if in.ResolveRecord == nil {
		return nil, domain.ErrInvalidMessage
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var resp msg.ResolveRecordResponse
	if rec, ok := r.records[in.ResolveRecord.Name]; ok && rec.Expiration.After(r.now()) {
		owner := rec.Owner
		resp.Address = &owner
		resp.Expiration = uint64(rec.Expiration.Unix())
	}
	return json.Marshal(resp)
}
