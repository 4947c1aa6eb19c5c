package heuristic

// #region imports
import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #endregion

// #region failure-types

// FailureType names the degenerate outputs the heuristics recognize.
type FailureType string

const (
	FailureNone       FailureType = "none"
	FailureEmpty      FailureType = "empty"
	FailureRepetition FailureType = "repetition"
	FailureMeta       FailureType = "meta"
	FailureTooShort   FailureType = "too_short"
)

// #endregion

// #region meta-patterns

// metaPatterns catch a generator talking about the task instead of telling the story.
var metaPatterns = []string{
	"as an ai",
	"as a language model",
	"i cannot",
	"i can't write",
	"here is the next",
	"here's the next",
	"in this section",
	"this paragraph",
	"the story continues with",
	"sure! here",
	"certainly! here",
}

// #endregion

// #region detect-failure

// DetectFailure classifies degenerate generator output.
func DetectFailure(text string) FailureType {
	trimmed := strings.TrimSpace(text)
	if len(strings.TrimFunc(trimmed, unicode.IsSpace)) == 0 {
		return FailureEmpty
	}
	lower := strings.ToLower(trimmed)

	if hasRepetition(lower) {
		return FailureRepetition
	}

	metaCount := 0
	for _, p := range metaPatterns {
		if strings.Contains(lower, p) {
			metaCount++
		}
	}
	if metaCount > 0 {
		return FailureMeta
	}

	if len(strings.Fields(trimmed)) < 5 {
		return FailureTooShort
	}
	return FailureNone
}

// #endregion

// #region repetition-check

func hasRepetition(lower string) bool {
	// 3+ identical sentences
	sentences := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	if len(sentences) < 3 {
		return false
	}
	counts := make(map[string]int)
	for _, s := range sentences {
		trimmed := strings.TrimSpace(s)
		if len(trimmed) > 10 {
			counts[trimmed]++
		}
	}
	for _, c := range counts {
		if c >= 3 {
			return true
		}
	}
	return false
}

// #endregion

// #region quality-score

// Quality scores prose in [0,1] from length adequacy, lexical variety and
// sentence variety.
func Quality(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	wordCount := len(words)

	// Under 20 words = linear to 0.5, 20-120 = linear to 1.0
	var lengthAdequacy float64
	switch {
	case wordCount < 20:
		lengthAdequacy = 0.5 * float64(wordCount) / 20.0
	case wordCount <= 120:
		lengthAdequacy = 0.5 + 0.5*float64(wordCount-20)/100.0
	default:
		lengthAdequacy = 1.0
	}

	distinct := make(map[string]bool, wordCount)
	for _, w := range words {
		distinct[strings.Trim(w, ".,;:!?\"'")] = true
	}
	variety := float64(len(distinct)) / float64(max(wordCount, 1))

	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	var sentenceScore float64
	switch n := len(sentences); {
	case n == 0:
		sentenceScore = 0
	case n == 1:
		sentenceScore = 0.5
	default:
		sentenceScore = 1
	}

	q := 0.4*lengthAdequacy + 0.4*variety + 0.2*sentenceScore
	return min(max(q, 0), 1)
}

// #endregion

// #region verifier

// Verifier accepts text that is not degenerate and carries markers of the
// target label.
type Verifier struct {
	classifier *Classifier
}

// NewVerifier creates a verifier sharing the classifier's keyword tables.
func NewVerifier(alpha *narrative.Alphabet) *Verifier {
	return &Verifier{classifier: NewClassifier(alpha)}
}

// Verify implements collab.Verifier.
func (v *Verifier) Verify(ctx context.Context, text string, target narrative.Label) (collab.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return collab.Verdict{}, err
	}
	if DetectFailure(text) != FailureNone {
		return collab.Verdict{Verified: false, Confidence: 0}, nil
	}
	quality := Quality(text)
	if v.hasMarkers(text, target) || v.classifier.classify(text) == target {
		return collab.Verdict{Verified: true, Confidence: 0.5 + 0.5*quality}, nil
	}
	return collab.Verdict{Verified: false, Confidence: 0.5 * quality}, nil
}

func (v *Verifier) hasMarkers(text string, target narrative.Label) bool {
	if target == narrative.Dialogue {
		return isDialogue(text) || strings.ContainsAny(text, "\"“”")
	}
	lower := strings.ToLower(text)
	for _, r := range labelRules {
		if r.label == target {
			return countHits(lower, r.keywords) > 0
		}
	}
	return false
}

// #endregion

// #region evaluator

// Evaluator scores a finished story from its text and committed steps.
type Evaluator struct{}

// NewEvaluator creates a heuristic evaluator.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate implements collab.Evaluator. Values: quality, verified_ratio,
// label_variety and repetition (1 when the full text repeats itself).
func (e *Evaluator) Evaluate(ctx context.Context, text string, steps []narrative.Step) (collab.Scores, error) {
	if err := ctx.Err(); err != nil {
		return collab.Scores{}, err
	}
	verified := 0
	distinct := make(map[narrative.Label]bool)
	for _, s := range steps {
		if s.Verified {
			verified++
		}
		distinct[s.Label] = true
	}
	n := max(len(steps), 1)

	failure := DetectFailure(text)
	repetition := 0.0
	if failure == FailureRepetition {
		repetition = 1
	}
	scores := collab.Scores{
		Values: map[string]float64{
			"quality":        Quality(text),
			"verified_ratio": float64(verified) / float64(n),
			"label_variety":  float64(len(distinct)) / float64(n),
			"repetition":     repetition,
		},
	}
	if failure != FailureNone {
		scores.Notes = fmt.Sprintf("failure: %s", failure)
	}
	return scores, nil
}

// #endregion
