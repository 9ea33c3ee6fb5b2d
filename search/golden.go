package search

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// goldenRatio is (sqrt(5)-1)/2, the golden-section search contraction
// factor.
var goldenRatio = (math.Sqrt(5) - 1) / 2

// maxGoldenIterations bounds golden-section search per candidate path
// (spec.md §4.F step 3: "bounded iteration count (e.g. 24)"; S2 requires
// converging to 1 ppm within this bound).
const maxGoldenIterations = 24

// ProfitFunc evaluates the profit (possibly negative) of swapping the
// given input amount along a path. Implementations clone a MarketState
// per worker and never mutate the shared mirror.
type ProfitFunc func(in *uint256.Int) (profit float64, err error)

// goldenSectionSearch finds the input amount in [lo, hi] maximizing f,
// assuming f is unimodal on that range (spec.md §4.F step 3). Amounts
// are represented as float64 during the search and converted back to
// uint256 only at the evaluation boundary, since golden-section search
// operates over a continuous interval rather than integer steps.
func goldenSectionSearch(lo, hi float64, f func(x float64) float64) (bestX, bestVal float64) {
	if hi <= lo {
		return lo, f(lo)
	}

	x1 := hi - goldenRatio*(hi-lo)
	x2 := lo + goldenRatio*(hi-lo)
	f1 := f(x1)
	f2 := f(x2)

	for i := 0; i < maxGoldenIterations; i++ {
		if f1 < f2 {
			lo = x1
			x1 = x2
			f1 = f2
			x2 = lo + goldenRatio*(hi-lo)
			f2 = f(x2)
		} else {
			hi = x2
			x2 = x1
			f2 = f1
			x1 = hi - goldenRatio*(hi-lo)
			f1 = f(x1)
		}
		if hi-lo < 1e-9*hi {
			break
		}
	}

	if f1 > f2 {
		return x1, f1
	}
	return x2, f2
}

// SearchAmount runs golden-section search over [inMin, inMax] for the
// input amount maximizing profit, evaluating via fn at each step. It
// returns the best amount found and its profit.
func SearchAmount(inMin, inMax *uint256.Int, fn ProfitFunc) (*uint256.Int, float64, error) {
	lo := uint256ToFloat(inMin)
	hi := uint256ToFloat(inMax)

	var firstErr error
	wrapped := func(x float64) float64 {
		amt := floatToUint256(x)
		profit, err := fn(amt)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return math.Inf(-1)
		}
		return profit
	}

	bestX, bestVal := goldenSectionSearch(lo, hi, wrapped)
	if math.IsInf(bestVal, -1) && firstErr != nil {
		return nil, 0, firstErr
	}
	return floatToUint256(bestX), bestVal, nil
}

func uint256ToFloat(v *uint256.Int) float64 {
	f := new(big.Float).SetInt(v.ToBig())
	out, _ := f.Float64()
	return out
}

func floatToUint256(x float64) *uint256.Int {
	if x < 0 {
		x = 0
	}
	bf := new(big.Float).SetFloat64(x)
	bi, _ := bf.Int(nil)
	out, overflow := uint256.FromBig(bi)
	if overflow {
		return uint256.NewInt(0).SetAllOne()
	}
	return out
}
