package types

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DisplayDecimals is the scale of the token: one display unit equals
// 10^24 atomic units.
const DisplayDecimals = 24

// Token is an unsigned quantity of atomic token units. Amounts at full
// token-supply scale exceed 64 bits, so the value is arbitrary width.
// The zero value is zero tokens and is ready to use.
type Token struct {
	atomic *big.Int
}

func (t Token) value() *big.Int {
	if t.atomic == nil {
		return new(big.Int)
	}
	return t.atomic
}

// ZeroToken returns a zero-valued Token.
func ZeroToken() Token {
	return Token{atomic: new(big.Int)}
}

// FromAtomic builds a Token from an atomic-unit integer.
func FromAtomic(v *big.Int) (Token, error) {
	if v == nil {
		return Token{}, &Error{
			Code:    ErrInvalidAmount,
			Message: "amount is nil",
		}
	}
	if v.Sign() < 0 {
		return Token{}, &Error{
			Code:    ErrInvalidAmount,
			Message: fmt.Sprintf("amount must be non-negative, got %s", v),
		}
	}
	return Token{atomic: new(big.Int).Set(v)}, nil
}

// ParseAtomic parses an unsigned integer string of atomic units.
func ParseAtomic(s string) (Token, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Token{}, &Error{
			Code:    ErrInvalidAmount,
			Message: fmt.Sprintf("invalid atomic amount %q", s),
		}
	}
	return FromAtomic(v)
}

// ParseDisplay parses a display-unit decimal string into a Token. The
// conversion is exact: the decimal is scaled by 10^24 via exact decimal
// arithmetic and truncated toward zero, never rounded through a float.
func ParseDisplay(s string) (Token, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Token{}, &Error{
			Code:    ErrInvalidAmount,
			Message: fmt.Sprintf("invalid display amount %q: %v", s, err),
		}
	}
	return FromDisplay(d)
}

// FromDisplay converts a display-unit decimal into a Token, truncating
// anything below one atomic unit.
func FromDisplay(d decimal.Decimal) (Token, error) {
	if d.IsNegative() {
		return Token{}, &Error{
			Code:    ErrInvalidAmount,
			Message: fmt.Sprintf("amount must be non-negative, got %s", d),
		}
	}
	return FromAtomic(d.Shift(DisplayDecimals).BigInt())
}

// Add returns t + other.
func (t Token) Add(other Token) Token {
	return Token{atomic: new(big.Int).Add(t.value(), other.value())}
}

// Sub returns t - other, failing with UNDERFLOW when the result would be
// negative. Amounts never wrap.
func (t Token) Sub(other Token) (Token, error) {
	if t.value().Cmp(other.value()) < 0 {
		return Token{}, &Error{
			Code:    ErrUnderflow,
			Message: fmt.Sprintf("cannot subtract %s from %s", other, t),
		}
	}
	return Token{atomic: new(big.Int).Sub(t.value(), other.value())}, nil
}

// Cmp compares t and other, returning -1, 0 or 1.
func (t Token) Cmp(other Token) int {
	return t.value().Cmp(other.value())
}

// LessThan reports whether t < other.
func (t Token) LessThan(other Token) bool {
	return t.Cmp(other) < 0
}

// IsZero reports whether t is zero.
func (t Token) IsZero() bool {
	return t.value().Sign() == 0
}

// Atomic returns the atomic-unit value as a fresh big.Int.
func (t Token) Atomic() *big.Int {
	return new(big.Int).Set(t.value())
}

// Display returns the display-unit value (atomic / 10^24). Lossy only in
// the sense that callers printing it may choose fewer digits.
func (t Token) Display() decimal.Decimal {
	return decimal.NewFromBigInt(t.value(), -DisplayDecimals)
}

// String returns the atomic-unit value in decimal notation.
func (t Token) String() string {
	return t.value().String()
}

// MarshalJSON encodes the token as a string of atomic units, the wire
// representation used by channel records and the provider's state endpoint.
func (t Token) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.value().String() + `"`), nil
}

// UnmarshalJSON accepts an atomic-unit amount as either a JSON string or a
// bare integer.
func (t *Token) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseAtomic(s)
	if err != nil {
		return err
	}
	t.atomic = parsed.atomic
	return nil
}
