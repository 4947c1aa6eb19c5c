package miner

import "github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"

// #region features

// pathFeatures are the motifs the naming rules look at.
type pathFeatures struct {
	opening       narrative.Label
	ending        narrative.Label
	conflicts     int
	twist         bool
	revelation    bool
	climax        bool
	dialogueShare float64
}

func featuresOf(seq []narrative.Label) pathFeatures {
	var f pathFeatures
	if len(seq) == 0 {
		return f
	}
	f.opening, f.ending = seq[0], seq[len(seq)-1]
	dialogue := 0
	for _, l := range seq {
		switch l {
		case narrative.Conflict:
			f.conflicts++
		case narrative.Twist:
			f.twist = true
		case narrative.Revelation:
			f.revelation = true
		case narrative.Climax:
			f.climax = true
		case narrative.Dialogue:
			dialogue++
		}
	}
	f.dialogueShare = float64(dialogue) / float64(len(seq))
	return f
}

func (f pathFeatures) resolved() bool {
	return f.ending == narrative.Resolution || f.ending == narrative.StoryEnd
}

// #endregion features

// #region rules

// FallbackPathName is used when no naming rule matches.
const FallbackPathName = "Structural Variant"

// namingRules are evaluated in order; the first match names the path.
var namingRules = []struct {
	name  string
	match func(pathFeatures) bool
}{
	{"Twist Climax", func(f pathFeatures) bool { return f.twist && f.climax }},
	{"Hidden Truth", func(f pathFeatures) bool { return f.revelation }},
	{"Twist Tale", func(f pathFeatures) bool { return f.twist }},
	{"Conflict Saga", func(f pathFeatures) bool { return f.conflicts >= 3 }},
	{"Dialogue Drama", func(f pathFeatures) bool { return f.dialogueShare >= 0.4 }},
	{"Classic Arc", func(f pathFeatures) bool { return f.climax && f.resolved() }},
	{"Unresolved Tension", func(f pathFeatures) bool {
		return f.ending == narrative.Conflict || f.ending == narrative.Climax
	}},
	{"In Medias Res", func(f pathFeatures) bool {
		return f.opening == narrative.Conflict || f.opening == narrative.IncitingIncident || f.opening == narrative.Dialogue
	}},
	{"Quiet Resolution", func(f pathFeatures) bool { return f.resolved() }},
}

// NamePath assigns a human-readable name from the sequence's motifs.
func NamePath(seq []narrative.Label) string {
	f := featuresOf(seq)
	for _, r := range namingRules {
		if r.match(f) {
			return r.name
		}
	}
	return FallbackPathName
}

// #endregion rules
