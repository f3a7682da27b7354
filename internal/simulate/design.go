package simulate

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"sbcheck/domain/model"
)

// RandomDesign generates a choice design with independent standard-normal
// attribute levels. The design is fixed for the lifetime of a study; only
// the parameter vector and observations are redrawn per run.
func RandomDesign(rng *rand.Rand, n, p, l int) model.ChoiceDesign {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}

	x := make([][][]float64, n)
	for i := range x {
		x[i] = make([][]float64, p)
		for j := range x[i] {
			row := make([]float64, l)
			for k := range row {
				row[k] = dist.Rand()
			}
			x[i][j] = row
		}
	}

	return model.ChoiceDesign{N: n, P: p, L: l, X: x}
}
