package stan

import (
	"encoding/json"
	"fmt"
	"os"

	"sbcheck/domain/model"
)

// ParamName is the coefficient vector name declared by the choice model;
// draw columns come back as beta.1 .. beta.L
const ParamName = "beta"

// DefaultChoiceModel is the multinomial-logit model shipped with the
// harness: independent normal priors on the coefficients, categorical
// likelihood over softmax utilities. The text is opaque to the core; only
// the declared data field names must match what dataJSON supplies.
const DefaultChoiceModel = `data {
  int<lower=1> N;
  int<lower=2> P;
  int<lower=1> L;
  array[N] int<lower=1, upper=P> Y;
  array[N] matrix[P, L] X;
  real<lower=0> prior_scale;
}
parameters {
  vector[L] beta;
}
model {
  beta ~ normal(0, prior_scale);
  for (n in 1:N)
    Y[n] ~ categorical_logit(X[n] * beta);
}
`

// WriteModel writes the default model source to path if no file exists there
func WriteModel(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(DefaultChoiceModel), 0o644)
}

// dataJSON serializes the data contract (N, P, L, Y, X) the way the engine's
// JSON reader expects. Choice indices are shifted to 1-based to match the
// model's categorical declaration.
func dataJSON(data model.ChoiceData, priorScale float64) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("invalid data contract: %w", err)
	}

	y := make([]int, len(data.Y))
	for n, v := range data.Y {
		y[n] = v + 1
	}

	payload := map[string]interface{}{
		"N":           data.Design.N,
		"P":           data.Design.P,
		"L":           data.Design.L,
		"Y":           y,
		"X":           data.Design.X,
		"prior_scale": priorScale,
	}
	return json.Marshal(payload)
}
