package domain

import (
	"strconv"
	"strings"
)

// Addr is a bech32-style account or contract address. Comparison is byte-for-byte.
type Addr string

func (a Addr) String() string { return string(a) }

func (a Addr) Empty() bool { return strings.TrimSpace(string(a)) == "" }

// TaskID identifies one auto-renewal task. Ids start at 0 and are never reused.
type TaskID uint64

func (id TaskID) Next() TaskID { return id + 1 }

// Tag renders the id the way it is registered with the scheduler.
func (id TaskID) Tag() string { return strconv.FormatUint(uint64(id), 10) }

func ParseTag(tag string) (TaskID, error) {
	n, err := strconv.ParseUint(tag, 10, 64)
	if err != nil {
		return 0, err
	}
	return TaskID(n), nil
}

type TaskEntry struct {
	Frequency  string `json:"frequency"`
	DomainName string `json:"domain_name"`
}

type Coin struct {
	Denom  string `json:"denom"`
	Amount Amount `json:"amount"`
}

func NewCoin(denom string, amount Amount) Coin { return Coin{Denom: denom, Amount: amount} }

func (c Coin) String() string { return c.Amount.String() + c.Denom }

// AmountOf sums every coin of the given denom.
func AmountOf(coins []Coin, denom string) Amount {
	total := ZeroAmount()
	for _, c := range coins {
		if c.Denom == denom {
			total = total.Add(c.Amount)
		}
	}
	return total
}

// Config is the module configuration persisted at instantiate.
// NativeDenom never changes after that.
type Config struct {
	NativeDenom        string `json:"native_denom"`
	TaskCreationAmount Amount `json:"task_creation_amount"`
	RefillThreshold    Amount `json:"refill_threshold"`
}

// AssetInfo is what the asset name service resolves a named asset to.
// Exactly one of Native and CW20 is set.
type AssetInfo struct {
	Native string `json:"native,omitempty" yaml:"native,omitempty"`
	CW20   Addr   `json:"cw20,omitempty" yaml:"cw20,omitempty"`
}

func (a AssetInfo) IsNative() bool { return a.Native != "" && a.CW20 == "" }
