package mtcrypto

import (
	"errors"
	"math/big"
	"math/rand"
)

// FactorPQ splits the server-chosen pq (≤ 63 bits, per spec.md §4.2 step 2)
// into its two prime factors p < q using Pollard's rho, which is more than
// enough for numbers this small — MTProto deliberately keeps pq tiny so
// clients can factor it in milliseconds.
func FactorPQ(pq uint64) (p, q uint64, err error) {
	if pq < 2 {
		return 0, 0, errors.New("mtcrypto: pq too small to factor")
	}
	if pq%2 == 0 {
		return normalizeValues(2, pq/2)
	}

	n := new(big.Int).SetUint64(pq)
	d := pollardRho(n)
	if d == nil || d.Cmp(n) == 0 || d.Sign() == 0 {
		return 0, 0, errors.New("mtcrypto: failed to factor pq")
	}
	a := d.Uint64()
	b := pq / a
	return normalizeValues(a, b)
}

func normalizeValues(a, b uint64) (uint64, uint64, error) {
	if a == 0 || b == 0 {
		return 0, 0, errors.New("mtcrypto: degenerate factorization")
	}
	if a > b {
		a, b = b, a
	}
	return a, b, nil
}

func pollardRho(n *big.Int) *big.Int {
	if n.BitLen() < 2 {
		return nil
	}
	one := big.NewInt(1)
	for attempt := int64(1); attempt < 10; attempt++ {
		x := big.NewInt(2 + rand.Int63n(1<<20))
		y := new(big.Int).Set(x)
		c := big.NewInt(1 + rand.Int63n(1<<20))
		d := big.NewInt(1)

		f := func(v *big.Int) *big.Int {
			r := new(big.Int).Mul(v, v)
			r.Add(r, c)
			r.Mod(r, n)
			return r
		}

		for d.Cmp(one) == 0 {
			x = f(x)
			y = f(f(y))
			diff := new(big.Int).Sub(x, y)
			diff.Abs(diff)
			if diff.Sign() == 0 {
				break
			}
			d = new(big.Int).GCD(nil, nil, diff, n)
		}
		if d.Cmp(one) != 0 && d.Cmp(n) != 0 {
			return d
		}
	}
	return nil
}
