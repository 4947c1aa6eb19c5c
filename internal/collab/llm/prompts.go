package llm

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region label-descriptions

var labelDescriptions = map[narrative.Label]string{
	narrative.Introduction:     "introduces the setting and main characters",
	narrative.IncitingIncident: "an event that disrupts the status quo and starts the story",
	narrative.RisingAction:     "builds tension as the characters pursue their goal",
	narrative.Conflict:         "characters clash with each other or with obstacles",
	narrative.Dialogue:         "told mainly through spoken exchanges between characters",
	narrative.Description:      "describes places, objects or atmosphere",
	narrative.Twist:            "an unexpected turn that changes the direction of the story",
	narrative.Revelation:       "a hidden truth comes to light",
	narrative.Climax:           "the moment of highest tension where the central conflict peaks",
	narrative.Resolution:       "the conflict is settled and loose ends are tied up",
	narrative.StoryEnd:         "a closing passage that ends the story",
}

func describe(l narrative.Label) string {
	if d, ok := labelDescriptions[l]; ok {
		return d
	}
	return "a story segment"
}

// #endregion

// #region system-prompts

const classifierSystem = "You label segments of stories with their narrative function. " +
	"Answer with exactly one label from the list and nothing else."

const generatorSystem = "You are a fiction writer continuing a story one passage at a time. " +
	"Write only the passage itself, in prose, without headings or commentary."

const verifierSystem = "You check whether a story passage fulfils a requested narrative function. " +
	`Answer with a JSON object {"verified": boolean, "confidence": number between 0 and 1}.`

const evaluatorSystem = "You are a literary critic scoring a complete short story. " +
	`Answer with a JSON object {"scores": {"coherence": n, "engagement": n, "structure": n}, "notes": "..."} ` +
	"where every n is between 0 and 1."

// #endregion

// #region user-prompts

func classifyPrompt(alpha *narrative.Alphabet, text string) string {
	var b strings.Builder
	b.WriteString("Labels:\n")
	for _, l := range alpha.Labels() {
		fmt.Fprintf(&b, "- %s: %s\n", l, describe(l))
	}
	fmt.Fprintf(&b, "\nSegment:\n%s\n\nLabel:", text)
	return b.String()
}

func generatePrompt(req collab.GenerateRequest) string {
	var b strings.Builder
	if strings.TrimSpace(req.Context) == "" {
		b.WriteString("Begin a new story.\n")
	} else {
		fmt.Fprintf(&b, "Story so far:\n%s\n\n", req.Context)
	}
	fmt.Fprintf(&b, "Write passage %d of %d. It must be a %s passage: %s.\n",
		req.Position+1, req.Length, req.Target, describe(req.Target))
	if req.Foreshadow != "" {
		fmt.Fprintf(&b, "The following passage will likely be %s, so you may hint at it.\n", req.Foreshadow)
	}
	return b.String()
}

func verifyPrompt(text string, target narrative.Label) string {
	return fmt.Sprintf("Requested function: %s (%s)\n\nPassage:\n%s", target, describe(target), text)
}

func evaluatePrompt(text string, steps []narrative.Step) string {
	labels := make([]string, len(steps))
	for i, s := range steps {
		labels[i] = string(s.Label)
	}
	return fmt.Sprintf("Planned structure: %s\n\nStory:\n%s", strings.Join(labels, " -> "), text)
}

// #endregion
