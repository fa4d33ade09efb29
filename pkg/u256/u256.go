// Package u256 provides the 256-bit unsigned integer used for wei amounts and
// NFT token ids. Values are copyable, overflow-checked and persist as decimal
// strings so every SQL dialect can store them losslessly.
package u256

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow  = errors.New("u256: overflow")
	ErrUnderflow = errors.New("u256: underflow")
	ErrDivByZero = errors.New("u256: division by zero")
	ErrSyntax    = errors.New("u256: invalid decimal")
)

// Int is an unsigned 256-bit integer with value semantics.
type Int struct{ v uint256.Int }

// Zero is the additive identity.
var Zero = Int{}

func New(x uint64) Int {
	var out Int
	out.v.SetUint64(x)
	return out
}

// Parse reads a base-10 string. Leading/trailing spaces are ignored.
func Parse(s string) (Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Int{}, ErrSyntax
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Int{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return Int{v: *v}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Int {
	out, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return out
}

// FromBig converts a non-negative big.Int that fits in 256 bits.
func FromBig(b *big.Int) (Int, error) {
	if b == nil {
		return Int{}, nil
	}
	if b.Sign() < 0 {
		return Int{}, ErrUnderflow
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Int{}, ErrOverflow
	}
	return Int{v: *v}, nil
}

func (x Int) Big() *big.Int     { return x.v.ToBig() }
func (x Int) String() string    { return x.v.Dec() }
func (x Int) IsZero() bool      { return x.v.IsZero() }
func (x Int) Cmp(y Int) int     { return x.v.Cmp(&y.v) }
func (x Int) Lt(y Int) bool     { return x.v.Lt(&y.v) }
func (x Int) Gt(y Int) bool     { return x.v.Gt(&y.v) }
func (x Int) Eq(y Int) bool     { return x.v.Eq(&y.v) }
func (x Int) Uint64() uint64    { return x.v.Uint64() }
func (x Int) IsUint64() bool    { return x.v.IsUint64() }
func (x Int) Bytes32() [32]byte { return x.v.Bytes32() }

func (x Int) Add(y Int) (Int, error) {
	var out Int
	if _, overflow := out.v.AddOverflow(&x.v, &y.v); overflow {
		return Int{}, ErrOverflow
	}
	return out, nil
}

func (x Int) Sub(y Int) (Int, error) {
	var out Int
	if _, underflow := out.v.SubOverflow(&x.v, &y.v); underflow {
		return Int{}, ErrUnderflow
	}
	return out, nil
}

func (x Int) Mul(y Int) (Int, error) {
	var out Int
	if _, overflow := out.v.MulOverflow(&x.v, &y.v); overflow {
		return Int{}, ErrOverflow
	}
	return out, nil
}

// MulDiv returns floor(x*y/d) using a 512-bit intermediate.
func (x Int) MulDiv(y, d Int) (Int, error) {
	if d.IsZero() {
		return Int{}, ErrDivByZero
	}
	var out Int
	if _, overflow := out.v.MulDivOverflow(&x.v, &y.v, &d.v); overflow {
		return Int{}, ErrOverflow
	}
	return out, nil
}

// Max returns the larger of x and y.
func Max(x, y Int) Int {
	if x.Lt(y) {
		return y
	}
	return x
}

// Min returns the smaller of x and y.
func Min(x, y Int) Int {
	if x.Gt(y) {
		return y
	}
	return x
}

// Value stores the decimal representation.
func (x Int) Value() (driver.Value, error) { return x.v.Dec(), nil }

func (x *Int) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*x = Int{}
		return nil
	case string:
		out, err := Parse(v)
		if err != nil {
			return err
		}
		*x = out
		return nil
	case []byte:
		out, err := Parse(string(v))
		if err != nil {
			return err
		}
		*x = out
		return nil
	case int64:
		if v < 0 {
			return ErrUnderflow
		}
		*x = New(uint64(v))
		return nil
	default:
		return fmt.Errorf("u256: cannot scan %T", src)
	}
}

// MarshalJSON encodes as a quoted decimal so JavaScript clients keep precision.
func (x Int) MarshalJSON() ([]byte, error) {
	return []byte(`"` + x.v.Dec() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimals.
func (x *Int) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*x = Int{}
		return nil
	}
	s = strings.Trim(s, `"`)
	out, err := Parse(s)
	if err != nil {
		return err
	}
	*x = out
	return nil
}
