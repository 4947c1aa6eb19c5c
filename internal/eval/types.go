package eval

// #region eval-config
// EvalConfig holds thresholds for post-run validation of a generated story.
type EvalConfig struct {
	MinVerifiedRatio  float64 `koanf:"min_verified_ratio"`  // fail if fewer steps verified
	MaxMeanRetries    float64 `koanf:"max_mean_retries"`    // fail if positions needed more retries on average
	MinDistinctLabels int     `koanf:"min_distinct_labels"` // fail if the story uses fewer labels
	MinLogLikelihood  float64 `koanf:"min_log_likelihood"`  // warn if the path is unlikely under the model
}

// DefaultEvalConfig returns defaults tuned for stories of 10-20 positions.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinVerifiedRatio:  0.6,
		MaxMeanRetries:    1.5,
		MinDistinctLabels: 3,
		MinLogLikelihood:  -3.0,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Pass     bool    `json:"pass"`
	Blocking bool    `json:"blocking"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-run validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// Metric returns the named metric.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion eval-result
