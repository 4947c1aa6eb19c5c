package planner

import (
	"context"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region choice

// Choice is the planner's decision for one position.
type Choice struct {
	Position     int
	Label        narrative.Label
	Mode         narrative.StepMode
	Distribution []float64 // normalized row used in dynamic mode, nil otherwise
	Fallback     bool      // constraints emptied the row
	Draw         float64   // the uniform draw used in dynamic mode
}

// #endregion choice

// #region plan

// Plan walks one story of a fixed length: Start, then Stepping until every
// position has a label, then Terminal. A Plan belongs to a single run.
type Plan struct {
	selector *Selector
	length   int
	override *narrative.DiscoveredPath
	position int
}

// Begin starts a plan of length positions. override, when non-nil, dictates
// labels for the positions its sequence covers; its contents are only read.
func (s *Selector) Begin(length int, override *narrative.DiscoveredPath) (*Plan, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	return &Plan{selector: s, length: length, override: override}, nil
}

// Length returns the number of positions in the plan.
func (p *Plan) Length() int { return p.length }

// Position returns the next position to be planned.
func (p *Plan) Position() int { return p.position }

// Done reports whether the plan reached Terminal.
func (p *Plan) Done() bool { return p.position >= p.length }

// Next chooses the label for the current position given the labels committed
// so far and advances. It returns ErrPlanComplete once Terminal.
func (p *Plan) Next(ctx context.Context, history []narrative.Label) (Choice, error) {
	if p.Done() {
		return Choice{}, ErrPlanComplete
	}
	pos := p.position
	p.position++

	if pos == 0 {
		return Choice{Position: 0, Label: p.selector.start, Mode: narrative.ModeStart}, nil
	}
	if p.override != nil && pos < len(p.override.Sequence) {
		return Choice{Position: pos, Label: p.override.Sequence[pos], Mode: narrative.ModeOverride}, nil
	}
	return p.selector.choose(ctx, pos, p.length, history), nil
}

// Foreshadow returns the advisory next label for a position whose label is
// current. It never binds the following choice.
func (p *Plan) Foreshadow(position int, current narrative.Label) (narrative.Label, bool) {
	if p.override != nil && position+1 < len(p.override.Sequence) && position+1 < p.length {
		return p.override.Sequence[position+1], true
	}
	return p.selector.MostLikelyNext(position, p.length, current)
}

// #endregion plan

// #region dry-run

// Walk plans an entire story without external text, feeding each choice back
// as history. It is the planning-only path used by previews and replay.
func (s *Selector) Walk(ctx context.Context, length int, override *narrative.DiscoveredPath) ([]Choice, error) {
	plan, err := s.Begin(length, override)
	if err != nil {
		return nil, err
	}
	choices := make([]Choice, 0, length)
	history := make([]narrative.Label, 0, length)
	for !plan.Done() {
		if err := ctx.Err(); err != nil {
			return choices, err
		}
		c, err := plan.Next(ctx, history)
		if err != nil {
			return choices, err
		}
		choices = append(choices, c)
		history = append(history, c.Label)
	}
	return choices, nil
}

// #endregion dry-run
