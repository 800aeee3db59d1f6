package orchestrator

import (
	"fmt"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
)

// Phase is a step of a review run.
type Phase string

const (
	PhaseSearch    Phase = "SEARCH"
	PhaseFetch     Phase = "FETCH"
	PhaseAnalyze   Phase = "ANALYZE"
	PhaseSummarize Phase = "SUMMARIZE"
	PhaseComplete  Phase = "COMPLETE"
)

// Phases lists every phase in run order.
var Phases = []Phase{PhaseSearch, PhaseFetch, PhaseAnalyze, PhaseSummarize, PhaseComplete}

// Event reports that the work of the current phase has finished.
type Event string

const (
	EventSearched           Event = "searched"
	EventFetched            Event = "fetched"
	EventAnalyzed           Event = "analyzed"
	EventSummarized         Event = "summarized"
	EventNothingToSummarize Event = "nothing_to_summarize"
)

// Effect is work the run loop performs on entering a phase.
type Effect string

const (
	EffectSearch    Effect = "search"
	EffectFetch     Effect = "fetch"
	EffectAnalyze   Effect = "analyze"
	EffectSummarize Effect = "summarize"
)

type transitionKey struct {
	from  Phase
	event Event
}

type transitionTarget struct {
	to      Phase
	effects []Effect
}

var transitions = map[transitionKey]transitionTarget{
	{PhaseSearch, EventSearched}:              {PhaseFetch, []Effect{EffectFetch}},
	{PhaseFetch, EventFetched}:                {PhaseAnalyze, []Effect{EffectAnalyze}},
	{PhaseAnalyze, EventAnalyzed}:             {PhaseSummarize, []Effect{EffectSummarize}},
	{PhaseSummarize, EventSummarized}:         {PhaseComplete, nil},
	{PhaseSummarize, EventNothingToSummarize}: {PhaseComplete, nil},
}

// Start returns the initial phase and the work it begins with.
func Start() (Phase, []Effect) {
	return PhaseSearch, []Effect{EffectSearch}
}

// Transition returns the phase that follows from on event, with the effects
// to run on entering it. Any other combination is rejected with
// ErrIllegalTransition and leaves the phase unchanged.
func Transition(from Phase, event Event) (Phase, []Effect, error) {
	t, ok := transitions[transitionKey{from, event}]
	if !ok {
		return from, nil, fmt.Errorf("%w: %s on %s", perrors.ErrIllegalTransition, event, from)
	}
	return t.to, t.effects, nil
}
