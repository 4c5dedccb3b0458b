package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Amount is a non-negative 128-bit token amount. It encodes as a decimal JSON
// string. The zero value is 0 and values are never mutated in place.
type Amount struct {
	v *big.Int
}

func ZeroAmount() Amount { return Amount{} }

func NewAmount(n uint64) Amount { return Amount{v: new(big.Int).SetUint64(n)} }

// ParseAmount parses a base-10 integer in [0, 2^128).
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("amount: empty string")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("amount: %q is not a decimal integer", s)
	}
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("amount: %q is negative", s)
	}
	if v.Cmp(maxUint128) > 0 {
		return Amount{}, fmt.Errorf("amount: %q overflows uint128", s)
	}
	return Amount{v: v}, nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

func (a Amount) IsZero() bool { return a.v == nil || a.v.Sign() == 0 }

func (a Amount) Cmp(b Amount) int { return a.big().Cmp(b.big()) }

func (a Amount) Equal(b Amount) bool { return a.Cmp(b) == 0 }

func (a Amount) Add(b Amount) Amount { return Amount{v: new(big.Int).Add(a.big(), b.big())} }

func (a Amount) String() string { return a.big().String() }

func (a Amount) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("amount: expected string: %w", err)
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
