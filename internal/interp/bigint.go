package interp

import (
	"math"
	"math/big"
)

// Ints that do not fit in int64 are *big.Int values. Every operation hands
// back an int64 again as soon as the result fits, so a *big.Int never
// holds a value in int64 range.

// maxIntBits caps the size of ints built by ** and <<.
const maxIntBits = 1 << 22

func normInt(b *big.Int) Value {
	if b.IsInt64() {
		return b.Int64()
	}
	return b
}

func isBig(v Value) bool {
	_, ok := v.(*big.Int)
	return ok
}

// asBig converts any int, bools included.
func asBig(v Value) (*big.Int, bool) {
	if b, ok := v.(*big.Int); ok {
		return b, true
	}
	if i, ok := asInt(v); ok {
		return big.NewInt(i), true
	}
	return nil, false
}

func bigFloat(b *big.Int) float64 {
	f, _ := new(big.Float).SetInt(b).Float64()
	return f
}

// floatToInt truncates f toward zero.
func floatToInt(f float64) (Value, error) {
	if math.IsInf(f, 0) {
		return nil, NewError(OverflowErrorClass, "cannot convert float infinity to integer")
	}
	if math.IsNaN(f) {
		return nil, NewError(ValueErrorClass, "cannot convert float NaN to integer")
	}
	if math.Abs(f) < 1<<63 {
		return int64(f), nil
	}
	b, _ := big.NewFloat(f).Int(nil)
	return normInt(b), nil
}

func tooLarge() error {
	return NewError(OverflowErrorClass, "integer result too large")
}

// floorDivMod divides with the quotient rounded toward negative infinity.
func floorDivMod(a, b *big.Int) (*big.Int, *big.Int) {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 && r.Sign() != b.Sign() {
		q.Sub(q, big.NewInt(1))
		r.Add(r, b)
	}
	return q, r
}

func bigOp(op string, a, b *big.Int) (Value, error) {
	switch op {
	case "+":
		return normInt(new(big.Int).Add(a, b)), nil
	case "-":
		return normInt(new(big.Int).Sub(a, b)), nil
	case "*":
		return normInt(new(big.Int).Mul(a, b)), nil
	case "/":
		if b.Sign() == 0 {
			return nil, NewError(ZeroDivisionErrorClass, "division by zero")
		}
		f, _ := new(big.Rat).SetFrac(a, b).Float64()
		if math.IsInf(f, 0) {
			return nil, NewError(OverflowErrorClass, "integer division result too large for a float")
		}
		return f, nil
	case "//", "%":
		if b.Sign() == 0 {
			if op == "%" {
				return nil, NewError(ZeroDivisionErrorClass, "integer modulo by zero")
			}
			return nil, NewError(ZeroDivisionErrorClass, "integer division or modulo by zero")
		}
		q, r := floorDivMod(a, b)
		if op == "//" {
			return normInt(q), nil
		}
		return normInt(r), nil
	case "**":
		return bigPow(a, b)
	case "&":
		return normInt(new(big.Int).And(a, b)), nil
	case "|":
		return normInt(new(big.Int).Or(a, b)), nil
	case "^":
		return normInt(new(big.Int).Xor(a, b)), nil
	case "<<":
		if b.Sign() < 0 {
			return nil, NewError(ValueErrorClass, "negative shift count")
		}
		if a.Sign() == 0 {
			return int64(0), nil
		}
		if !b.IsInt64() || int64(a.BitLen())+b.Int64() > maxIntBits {
			return nil, tooLarge()
		}
		return normInt(new(big.Int).Lsh(a, uint(b.Int64()))), nil
	case ">>":
		if b.Sign() < 0 {
			return nil, NewError(ValueErrorClass, "negative shift count")
		}
		if !b.IsInt64() || b.Int64() > int64(a.BitLen()) {
			if a.Sign() < 0 {
				return int64(-1), nil
			}
			return int64(0), nil
		}
		return normInt(new(big.Int).Rsh(a, uint(b.Int64()))), nil
	}
	return nil, NewError(TypeErrorClass, "unsupported operand type(s) for %s: 'int' and 'int'", op)
}

func bigPow(a, b *big.Int) (Value, error) {
	if b.Sign() < 0 {
		if a.Sign() == 0 {
			return nil, NewError(ZeroDivisionErrorClass, "zero to a negative power")
		}
		return math.Pow(bigFloat(a), bigFloat(b)), nil
	}
	switch {
	case b.Sign() == 0:
		return int64(1), nil
	case a.Sign() == 0 || a.Cmp(big.NewInt(1)) == 0:
		return normInt(a), nil
	case a.Cmp(big.NewInt(-1)) == 0:
		if b.Bit(0) == 0 {
			return int64(1), nil
		}
		return int64(-1), nil
	}
	if !b.IsInt64() || int64(a.BitLen()-1)*b.Int64() > maxIntBits {
		return nil, tooLarge()
	}
	return normInt(new(big.Int).Exp(a, b, nil)), nil
}

// bigPowMod implements pow(b, e, m) with the result taking the sign of m.
func bigPowMod(b, e, m *big.Int) (Value, error) {
	if m.Sign() == 0 {
		return nil, NewError(ValueErrorClass, "pow() 3rd argument cannot be 0")
	}
	if e.Sign() < 0 {
		return nil, NewError(ValueErrorClass, "pow() negative exponent with modulus is not supported")
	}
	mod := new(big.Int).Abs(m)
	_, base := floorDivMod(b, mod)
	r := new(big.Int).Exp(base, e, mod)
	if m.Sign() < 0 && r.Sign() != 0 {
		r.Add(r, m)
	}
	return normInt(r), nil
}

// bigRound rounds n to a multiple of 10**-digits, halves to even.
func bigRound(n *big.Int, digits int64) Value {
	if digits >= 0 {
		return normInt(n)
	}
	if -digits > maxIntBits {
		return int64(0)
	}
	p := new(big.Int).Exp(big.NewInt(10), big.NewInt(-digits), nil)
	q, r := floorDivMod(n, p)
	twice := new(big.Int).Lsh(r, 1)
	if c := twice.Cmp(p); c > 0 || (c == 0 && q.Bit(0) == 1) {
		q.Add(q, big.NewInt(1))
	}
	return normInt(q.Mul(q, p))
}
