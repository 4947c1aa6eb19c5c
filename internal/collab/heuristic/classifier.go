// Package heuristic provides offline collaborators built on keyword tables and
// string analysis. No model call.
package heuristic

// #region imports
import (
	"context"
	"strings"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #endregion

// #region keywords

var endingKeywords = []string{
	"the end", "ever after", "years later", "and so it ended", "epilogue",
}

var resolutionKeywords = []string{
	"at last", "finally", "peace", "forgave", "returned home", "healed",
	"settled", "reconciled", "made amends", "rebuilt", "in the aftermath",
}

var climaxKeywords = []string{
	"final battle", "all or nothing", "showdown", "at the last moment",
	"with everything", "last stand", "decisive", "confronted", "face to face",
}

var revelationKeywords = []string{
	"realized", "discovered that", "the truth", "all along", "revealed",
	"understood now", "had never known", "confessed", "secret was",
}

var twistKeywords = []string{
	"suddenly", "but then", "unexpectedly", "to her surprise", "to his surprise",
	"to their surprise", "without warning", "it turned out", "betrayed",
}

var conflictKeywords = []string{
	"fight", "argued", "attack", "struggle", "enemy", "threat", "refused",
	"shouted", "clash", "against", "war", "danger",
}

var incitingKeywords = []string{
	"one day", "until", "letter arrived", "news came", "disappeared",
	"changed everything", "for the first time", "was summoned",
}

var introductionKeywords = []string{
	"once upon a time", "there was", "there lived", "long ago", "in a village",
	"was born", "in the kingdom of", "lived a",
}

var risingKeywords = []string{
	"journey", "set out", "began to", "searched", "travelled", "traveled",
	"trained", "prepared", "followed", "pressed on",
}

var descriptionKeywords = []string{
	"the sky", "the air", "the room", "the forest", "smelled", "glowed",
	"silent", "colour", "color", "light", "shadows", "walls",
}

// #endregion

// #region rules

// labelRule maps a keyword table to a label. Rules are checked in order and
// the label with the most hits wins; ties keep the earlier rule.
type labelRule struct {
	label    narrative.Label
	keywords []string
}

var labelRules = []labelRule{
	{narrative.StoryEnd, endingKeywords},
	{narrative.Climax, climaxKeywords},
	{narrative.Revelation, revelationKeywords},
	{narrative.Twist, twistKeywords},
	{narrative.Resolution, resolutionKeywords},
	{narrative.Conflict, conflictKeywords},
	{narrative.IncitingIncident, incitingKeywords},
	{narrative.Introduction, introductionKeywords},
	{narrative.RisingAction, risingKeywords},
	{narrative.Description, descriptionKeywords},
}

// #endregion

// #region classifier

// Classifier labels segments by keyword hits. Quoted speech dominating the
// segment is Dialogue. Labels outside the alphabet are never returned.
type Classifier struct {
	alphabet *narrative.Alphabet
	fallback narrative.Label
}

// NewClassifier creates a keyword classifier restricted to alpha. Segments
// with no hits are labelled Description.
func NewClassifier(alpha *narrative.Alphabet) *Classifier {
	return &Classifier{alphabet: alpha, fallback: narrative.Description}
}

// Classify implements collab.Classifier.
func (c *Classifier) Classify(ctx context.Context, text string) (narrative.Label, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.classify(text), nil
}

func (c *Classifier) classify(text string) narrative.Label {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return c.fallback
	}

	if isDialogue(text) && c.alphabet.Contains(narrative.Dialogue) {
		return narrative.Dialogue
	}

	best, bestHits := c.fallback, 0
	for _, r := range labelRules {
		if !c.alphabet.Contains(r.label) {
			continue
		}
		hits := countHits(lower, r.keywords)
		if hits > bestHits {
			best, bestHits = r.label, hits
		}
	}
	return best
}

// #endregion

// #region helpers

func countHits(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

// isDialogue reports whether at least half of the characters sit inside quotes.
func isDialogue(text string) bool {
	quoted, total := 0, 0
	inside := false
	for _, r := range text {
		switch r {
		case '"', '“', '”':
			inside = !inside
			continue
		}
		total++
		if inside {
			quoted++
		}
	}
	return total > 0 && quoted*2 >= total
}

// #endregion
