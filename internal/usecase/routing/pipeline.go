package routing

import (
	"strings"

	"switchboard-ai/internal/domain"
)

// StageDone is the terminal pipeline state.
const StageDone = "DONE"

// Stage is one step of a fixed pipeline: the agent that processes the
// stage input, plus optional halt sentinels. A stage reply matching a halt
// sentinel ends the pipeline early and is surfaced to the user verbatim
// (e.g. an input checker answering "[request clarification input]").
type Stage struct {
	Agent         string
	HaltSentinels []string
}

// Pipeline is a linear state machine over named stages: every stage hands
// off unconditionally to the next, and the last stage transitions to DONE.
type Pipeline struct {
	stages []Stage
}

// PipelineState is the immutable record passed between stages. Each
// Advance returns a new record carrying the next stage name; nothing is
// mutated in place.
type PipelineState struct {
	Stage  string // agent name of the stage about to run, or StageDone
	Input  string // text the stage should process
	Output string // final pipeline output, set once Stage == StageDone
	Halted bool   // true when a halt sentinel ended the pipeline early
}

// Done reports whether the pipeline has reached its terminal state.
func (s PipelineState) Done() bool { return s.Stage == StageDone }

// NewPipeline creates a Pipeline from ordered stages.
func NewPipeline(stages []Stage) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, domain.NewDomainError("pipeline", domain.ErrInvalidRoute, "no stages declared")
	}
	seen := map[string]bool{}
	for _, st := range stages {
		if st.Agent == "" || st.Agent == StageDone {
			return nil, domain.NewDomainError("pipeline", domain.ErrInvalidRoute, "invalid stage name")
		}
		if seen[st.Agent] {
			return nil, domain.NewDomainError("pipeline", domain.ErrDuplicate, st.Agent)
		}
		seen[st.Agent] = true
	}
	return &Pipeline{stages: stages}, nil
}

// Stages returns the stage agent names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.Agent
	}
	return names
}

// Start returns the initial state: the first stage processing the user input.
func (p *Pipeline) Start(input string) PipelineState {
	return PipelineState{Stage: p.stages[0].Agent, Input: input}
}

// Advance consumes the reply produced by the current stage and returns the
// next state. A halt sentinel or the last stage transitions to DONE;
// otherwise the reply becomes the next stage's input. A state naming an
// undeclared stage fails with ErrInvalidRoute.
func (p *Pipeline) Advance(state PipelineState, reply string) (PipelineState, error) {
	idx := -1
	for i, st := range p.stages {
		if st.Agent == state.Stage {
			idx = i
			break
		}
	}
	if idx < 0 {
		return PipelineState{}, domain.NewDomainError("pipeline advance", domain.ErrInvalidRoute, state.Stage)
	}

	if matchesSentinel(reply, p.stages[idx].HaltSentinels) {
		return PipelineState{Stage: StageDone, Output: reply, Halted: true}, nil
	}
	if idx == len(p.stages)-1 {
		return PipelineState{Stage: StageDone, Output: reply}, nil
	}
	return PipelineState{Stage: p.stages[idx+1].Agent, Input: reply}, nil
}

func matchesSentinel(reply string, sentinels []string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(reply))
	for _, s := range sentinels {
		if trimmed == strings.ToLower(strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}
