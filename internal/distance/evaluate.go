package distance

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Evaluate scores one record. Every reference field must be present on the
// record with the same number of elements.
func (p *Params) Evaluate(doc Fields) (float64, error) {
	rec, err := p.recordVector(doc)
	if err != nil {
		return 0, err
	}

	var score decimal.Decimal
	switch p.kind {
	case Euclidean:
		score = euclidean(p.referenceVector(), rec).Round(p.scale)
	case Cosine:
		score, err = cosine(p.referenceVector(), rec, p.scale)
		if err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unsupported distance kind %v", p.kind)
	}

	f, _ := score.Float64()
	return f, nil
}

func (p *Params) referenceVector() []int64 {
	out := make([]int64, 0, p.dim)
	for _, f := range p.fields {
		out = append(out, f.Values...)
	}
	return out
}

func (p *Params) recordVector(doc Fields) ([]int64, error) {
	out := make([]int64, 0, p.dim)
	for _, f := range p.fields {
		v, ok := doc.Field(f.Name)
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, f.Name)
		}
		values, err := toInts(v, p.separator)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidField, f.Name, err)
		}
		if len(values) != len(f.Values) {
			return nil, &DimensionError{Field: f.Name, Expected: len(f.Values), Actual: len(values)}
		}
		out = append(out, values...)
	}
	return out, nil
}

// euclidean returns the unrounded distance. The sum of squares is exact; the
// square root is the only floating-point step.
func euclidean(a, b []int64) decimal.Decimal {
	sum := decimal.Zero
	for i := range a {
		d := decimal.NewFromInt(a[i]).Sub(decimal.NewFromInt(b[i]))
		sum = sum.Add(d.Mul(d))
	}
	return sqrt(sum)
}

// cosine returns dot(a, b) / (|a| * |b|) divided exactly and rounded half-up to scale.
func cosine(a, b []int64, scale int32) (decimal.Decimal, error) {
	dot, normA, normB := decimal.Zero, decimal.Zero, decimal.Zero
	for i := range a {
		x, y := decimal.NewFromInt(a[i]), decimal.NewFromInt(b[i])
		dot = dot.Add(x.Mul(y))
		normA = normA.Add(x.Mul(x))
		normB = normB.Add(y.Mul(y))
	}

	na, nb := sqrt(normA), sqrt(normB)
	if na.IsZero() || nb.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: cosine distance is undefined for a zero-magnitude vector", ErrZeroVector)
	}
	return dot.DivRound(na.Mul(nb), scale), nil
}

func sqrt(d decimal.Decimal) decimal.Decimal {
	f, _ := d.Float64()
	return exactDecimal(math.Sqrt(f))
}

// exactDecimal expands a finite float64 to the decimal it denotes exactly.
// decimal.NewFromFloat picks the shortest round-tripping string instead, which
// can move a value across a rounding boundary.
func exactDecimal(f float64) decimal.Decimal {
	if f == 0 {
		return decimal.Zero
	}
	frac, exp := math.Frexp(f)
	mant := big.NewInt(int64(frac * (1 << 53)))
	exp -= 53
	if exp >= 0 {
		return decimal.NewFromBigInt(mant.Lsh(mant, uint(exp)), 0)
	}
	// mant / 2^k == mant * 5^k / 10^k
	k := int64(-exp)
	pow := new(big.Int).Exp(big.NewInt(5), big.NewInt(k), nil)
	return decimal.NewFromBigInt(pow.Mul(pow, mant), int32(-k))
}
