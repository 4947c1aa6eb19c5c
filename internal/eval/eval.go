// Package eval validates a finished generation run with internal metrics that
// need no external collaborator.
package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region eval-harness
// EvalHarness runs lightweight post-run validation on committed steps.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run validates steps planned over model. model may be nil, in which case the
// likelihood check is skipped.
func (h *EvalHarness) Run(steps []narrative.Step, model *narrative.Trajectory) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string

	check := func(name string, value float64, pass, blocking bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass, Blocking: blocking})
		if !pass && blocking {
			passed = false
			failReasons = append(failReasons, reason)
		}
	}

	n := len(steps)
	if n == 0 {
		return EvalResult{Passed: false, Reason: "eval failed: no committed steps"}
	}

	var verified, retries int
	var confidence float64
	distinct := make(map[narrative.Label]bool)
	for _, s := range steps {
		if s.Verified {
			verified++
		}
		retries += s.Retries
		confidence += s.Confidence
		distinct[s.Label] = true
	}

	// 1. Verified ratio
	ratio := float64(verified) / float64(n)
	check("verified_ratio", ratio, ratio >= h.config.MinVerifiedRatio, true,
		fmt.Sprintf("verified ratio %.2f below %.2f", ratio, h.config.MinVerifiedRatio))

	// 2. Retries per position
	meanRetries := float64(retries) / float64(n)
	check("mean_retries", meanRetries, meanRetries <= h.config.MaxMeanRetries, true,
		fmt.Sprintf("mean retries %.2f exceeds %.2f", meanRetries, h.config.MaxMeanRetries))

	// 3. Structural variety
	check("distinct_labels", float64(len(distinct)), len(distinct) >= min(h.config.MinDistinctLabels, n), true,
		fmt.Sprintf("%d distinct labels, want %d", len(distinct), h.config.MinDistinctLabels))

	// 4. Informational
	check("mean_confidence", confidence/float64(n), true, false, "")
	check("unverified_commits", float64(n-verified), true, false, "")
	if model != nil && n > 1 {
		ll := MeanLogLikelihood(model, narrative.Labels(steps))
		if math.IsInf(ll, -1) {
			// results are persisted as JSON, which has no -Inf
			ll = -math.MaxFloat64
		}
		check("mean_log_likelihood", ll, ll >= h.config.MinLogLikelihood, false, "")
	}

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region likelihood
// MeanLogLikelihood averages log P(label[i-1] -> label[i]) over the bins the
// path's positions fall into. Labels outside the model score as -Inf.
func MeanLogLikelihood(model *narrative.Trajectory, labels []narrative.Label) float64 {
	if len(labels) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(labels); i++ {
		m, _ := model.MatrixForPosition(i, len(labels))
		p := m.Prob(labels[i-1], labels[i])
		if p <= 0 {
			return math.Inf(-1)
		}
		sum += math.Log(p)
	}
	return sum / float64(len(labels)-1)
}

// #endregion likelihood
