package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
)

// BigUnsigned is an unbounded unsigned integer for token amounts and
// prices. It is stored as a decimal string and never silently truncated;
// zero is a permitted value. The zero value of BigUnsigned reads as 0 in
// every method below; Zero() is the explicit constructor for it.
type BigUnsigned struct {
	v *big.Int
}

// Zero returns the BigUnsigned value 0.
func Zero() BigUnsigned { return BigUnsigned{v: big.NewInt(0)} }

// FromBigInt wraps an existing *big.Int. A nil input yields Zero(). The
// caller's *big.Int is copied so later mutation of it does not alias.
func FromBigInt(v *big.Int) BigUnsigned {
	if v == nil {
		return Zero()
	}
	return BigUnsigned{v: new(big.Int).Set(v)}
}

// FromUint64 constructs a BigUnsigned from a machine integer.
func FromUint64(v uint64) BigUnsigned {
	return BigUnsigned{v: new(big.Int).SetUint64(v)}
}

// ParseBigUnsigned parses a base-10 decimal string. It rejects negative
// values since the type models unsigned on-chain quantities.
func ParseBigUnsigned(s string) (BigUnsigned, error) {
	if s == "" {
		return Zero(), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return BigUnsigned{}, fmt.Errorf("invalid decimal amount %q", s)
	}
	if v.Sign() < 0 {
		return BigUnsigned{}, fmt.Errorf("negative amount %q", s)
	}
	return BigUnsigned{v: v}, nil
}

// Int returns the underlying *big.Int. The returned value is a copy; callers
// may mutate it freely.
func (b BigUnsigned) Int() *big.Int {
	if b.v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(b.v)
}

func (b BigUnsigned) String() string {
	if b.v == nil {
		return "0"
	}
	return b.v.String()
}

// IsZero reports whether b represents the value zero.
func (b BigUnsigned) IsZero() bool {
	return b.v == nil || b.v.Sign() == 0
}

// Add returns b + other.
func (b BigUnsigned) Add(other BigUnsigned) BigUnsigned {
	return FromBigInt(new(big.Int).Add(b.Int(), other.Int()))
}

// Sub returns b - other, clamped to zero if the result would be negative —
// matches the protocol's invariant that normalised balances never go
// negative (a draining event beyond the stored balance is a data anomaly,
// not a reason to panic).
func (b BigUnsigned) Sub(other BigUnsigned) BigUnsigned {
	r := new(big.Int).Sub(b.Int(), other.Int())
	if r.Sign() < 0 {
		return Zero()
	}
	return FromBigInt(r)
}

// Mul returns b * other.
func (b BigUnsigned) Mul(other BigUnsigned) BigUnsigned {
	return FromBigInt(new(big.Int).Mul(b.Int(), other.Int()))
}

// Cmp compares b and other per big.Int.Cmp semantics.
func (b BigUnsigned) Cmp(other BigUnsigned) int {
	return b.Int().Cmp(other.Int())
}

// DivFloor returns floor(b / denom) and reports false if denom is zero.
func (b BigUnsigned) DivFloor(denom BigUnsigned) (BigUnsigned, bool) {
	d := denom.Int()
	if d.Sign() == 0 {
		return Zero(), false
	}
	return FromBigInt(new(big.Int).Div(b.Int(), d)), true
}

// MarshalJSON renders b as a quoted decimal string, since a plain JSON
// number would silently lose precision beyond 2^53 for large balances.
func (b BigUnsigned) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON parses the decimal string MarshalJSON produces.
func (b *BigUnsigned) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseBigUnsigned(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Value implements database/sql/driver.Valuer, persisting as a decimal string.
func (b BigUnsigned) Value() (driver.Value, error) {
	return b.String(), nil
}

// Scan implements sql.Scanner, parsing a decimal string or NULL (treated as
// zero, matching nullable sparse columns that default to "no amount").
func (b *BigUnsigned) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*b = Zero()
		return nil
	case string:
		parsed, err := ParseBigUnsigned(v)
		if err != nil {
			return err
		}
		*b = parsed
		return nil
	case []byte:
		parsed, err := ParseBigUnsigned(string(v))
		if err != nil {
			return err
		}
		*b = parsed
		return nil
	case int64:
		*b = FromUint64(uint64(v))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into BigUnsigned", src)
	}
}
