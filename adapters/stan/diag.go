package stan

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// splitRHat computes the split potential scale reduction factor for one
// parameter across chains. Each chain is halved so within-chain drift shows
// up as between-half variance; values near 1 indicate the chains mixed.
func splitRHat(chains [][]float64) float64 {
	var halves [][]float64
	for _, chain := range chains {
		if len(chain) < 4 {
			return math.NaN()
		}
		mid := len(chain) / 2
		halves = append(halves, chain[:mid], chain[mid:mid*2])
	}

	m := len(halves)
	n := len(halves[0])

	means := make([]float64, m)
	variances := make([]float64, m)
	for i, half := range halves {
		means[i] = stat.Mean(half, nil)
		variances[i] = stat.Variance(half, nil)
	}

	w := stat.Mean(variances, nil)
	b := float64(n) * stat.Variance(means, nil)

	if w <= 0 {
		// Zero within-half variance: either a degenerate posterior or a
		// stuck sampler; both warrant the non-convergent path
		return math.Inf(1)
	}

	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	return math.Sqrt(varPlus / w)
}

// maxSplitRHat computes split R-hat per coefficient and returns the worst.
// chains[c][m][l] is draw m of chain c, coefficient l.
func maxSplitRHat(chains [][][]float64, dim int) float64 {
	worst := 0.0
	series := make([][]float64, len(chains))
	for l := 0; l < dim; l++ {
		for c, chain := range chains {
			col := make([]float64, len(chain))
			for m, draw := range chain {
				col[m] = draw[l]
			}
			series[c] = col
		}
		if r := splitRHat(series); math.IsNaN(r) || r > worst {
			if math.IsNaN(r) {
				return math.NaN()
			}
			worst = r
		}
	}
	return worst
}
