package workflow

import "fmt"

// State is a step of a workflow run.
type State string

const (
	StateInit         State = "init"
	StateBuildPrompt  State = "build_prompt"
	StateLLMTurn      State = "llm_turn"
	StateExecuteTools State = "execute_tools"
	StateFinalize     State = "finalize"
	StatePersist      State = "persist"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Signal drives a transition.
type Signal string

const (
	SignalStarted            Signal = "started"
	SignalContextNeeded      Signal = "context_needed"
	SignalContextGathered    Signal = "context_gathered"
	SignalPromptReady        Signal = "prompt_ready"
	SignalToolCallsRequested Signal = "tool_calls_requested"
	SignalToolsDone          Signal = "tools_done"
	SignalIterationLimit     Signal = "iteration_limit"
	SignalReplyReceived      Signal = "reply_received"
	SignalFinalized          Signal = "finalized"
	SignalPersisted          Signal = "persisted"
	SignalFailed             Signal = "failed"
)

type transitionKey struct {
	from State
	on   Signal
}

// transitions covers both workflows. Plan loops between LLMTurn and
// ExecuteTools; Verify gathers context through ExecuteTools before its
// single LLM turn.
var transitions = map[transitionKey]State{
	{StateInit, SignalStarted}:                 StateBuildPrompt,
	{StateBuildPrompt, SignalContextNeeded}:    StateExecuteTools,
	{StateExecuteTools, SignalContextGathered}: StateBuildPrompt,
	{StateBuildPrompt, SignalPromptReady}:      StateLLMTurn,
	{StateLLMTurn, SignalToolCallsRequested}:   StateExecuteTools,
	{StateExecuteTools, SignalToolsDone}:       StateLLMTurn,
	{StateExecuteTools, SignalIterationLimit}:  StateFinalize,
	{StateLLMTurn, SignalReplyReceived}:        StateFinalize,
	{StateFinalize, SignalFinalized}:           StatePersist,
	{StatePersist, SignalPersisted}:            StateDone,
}

// Transition returns the state reached from s on sig. Any non-terminal
// state may fail.
func Transition(s State, sig Signal) (State, error) {
	if s.Terminal() {
		return s, fmt.Errorf("no transition from terminal state %s", s)
	}
	if sig == SignalFailed {
		return StateFailed, nil
	}
	next, ok := transitions[transitionKey{s, sig}]
	if !ok {
		return s, fmt.Errorf("no transition from %s on %s", s, sig)
	}
	return next, nil
}
