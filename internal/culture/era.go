package culture

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/polis/internal/events"
)

// Era is a named span of the global culture's history. EndTick is zero while
// the era is current.
type Era struct {
	Name            string    `json:"name"`
	StartTick       uint64    `json:"start_tick"`
	EndTick         uint64    `json:"end_tick,omitempty"`
	StartGeneration uint64    `json:"start_generation"`
	Snapshot        []float64 `json:"snapshot"`
}

// CurrentEra returns the era in progress.
func (e *Engine) CurrentEra() Era { return e.eras[len(e.eras)-1] }

// Eras returns the full era history, oldest first.
func (e *Engine) Eras() []Era {
	out := make([]Era, len(e.eras))
	copy(out, e.eras)
	return out
}

func (e *Engine) newEra(tick uint64) Era {
	snap := make([]float64, len(e.global))
	copy(snap, e.global)
	return Era{
		Name:            e.eraName(),
		StartTick:       tick,
		StartGeneration: e.generation,
		Snapshot:        snap,
	}
}

// checkEraTransition closes the current era when it has aged past the
// generation bound, the population is changing too fast, or any dimension
// has drifted too far from the era's opening snapshot.
func (e *Engine) checkEraTransition(tick uint64, changeVelocity float64) {
	cur := &e.eras[len(e.eras)-1]

	aged := e.generation-cur.StartGeneration > e.cfg.EraMaxGenerations
	rapid := changeVelocity > e.cfg.EraVelocity
	drifted := false
	for d, snap := range cur.Snapshot {
		if math.Abs(e.global[d]-snap) > e.cfg.EraDimensionDelta {
			drifted = true
			break
		}
	}
	if !aged && !rapid && !drifted {
		return
	}

	cur.EndTick = tick
	next := e.newEra(tick)
	e.eras = append(e.eras, next)

	e.bus.Stage(tick, events.StageCulture, events.CulturalEraTransition, map[string]any{
		"from":       cur.Name,
		"to":         next.Name,
		"culture":    e.Global(),
		"generation": e.generation,
	})
	slog.Info("era transition", "from", cur.Name, "to", next.Name, "tick", tick)
}

// eraName labels the era by its most polarized dimensions. Dimensions near
// the midpoint contribute nothing; a fully balanced culture gets a neutral
// name.
func (e *Engine) eraName() string {
	type extreme struct {
		label string
		dist  float64
	}
	var first, second extreme
	for d, dim := range e.cfg.CulturalDimensions {
		v := e.global[d]
		dist := math.Abs(v - 0.5)
		if dist < 0.15 {
			continue
		}
		label := dim.LowLabel
		if v > 0.5 {
			label = dim.HighLabel
		}
		switch {
		case dist > first.dist:
			second = first
			first = extreme{label, dist}
		case dist > second.dist:
			second = extreme{label, dist}
		}
	}

	switch {
	case first.label == "":
		return "Balanced Era"
	case second.label == "":
		return fmt.Sprintf("%s Era", first.label)
	}
	return fmt.Sprintf("%s %s Era", first.label, second.label)
}
