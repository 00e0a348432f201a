// Package agent defines the contracts that concrete agents satisfy
// and generic capabilities shared between them
package agent

import (
	"gonum.org/v1/gonum/mat"
)

// Stat is a single named scalar diagnostic reported by an agent
type Stat struct {
	Name  string
	Value float64
}

// Agent is the contract between an agent and the driver loop that runs
// it. Each environment step, the driver calls Act with the current
// observation to obtain a primitive action, executes that action, and
// then calls Observe with the resulting observation, reward, and
// episode status. The done flag indicates the new state is terminal;
// the reset flag indicates the episode is being cut off even though
// the state is not terminal.
//
// Every agent carries its own training-mode flag as instance state.
// Eval and Train flip the flag; nothing is shared between agent
// instances, so multiple agents may coexist in one process.
type Agent interface {
	// Act selects a primitive action for an observation
	Act(obs mat.Vector) (int, error)

	// Observe records the consequences of the last action
	Observe(obs mat.Vector, reward float64, done, reset bool) error

	// Save persists the agent's internal state under a directory
	Save(dirname string) error

	// Load restores the agent's internal state from a directory
	Load(dirname string) error

	// Statistics reports named scalar diagnostics in a fixed order.
	// An empty slice is a valid result.
	Statistics() []Stat

	Eval()        // Set agent to evaluation mode
	Train()       // Set agent to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// HRLAgent is an agent with an explicit two-level policy, exposing the
// high-level and low-level controllers separately. Instead of the
// scoped eval-mode guard's save-and-restore discipline, hierarchical
// agents expose explicit mode-change hooks which WithEvalHRL invokes
// around the scope.
type HRLAgent interface {
	Agent

	// ActHighLevel selects a subgoal with the high-level controller
	ActHighLevel(obs, goal, subgoal mat.Vector) (*mat.VecDense, error)

	// ActLowLevel selects a primitive action with the low-level
	// controller
	ActLowLevel(obs, goal mat.Vector) (int, error)

	ChangeToEval()
	ChangeToTrain()
}

// WithEval runs f with the agent in evaluation mode, restoring the
// agent's prior mode on every exit path, including panics
func WithEval(a Agent, f func() error) error {
	wasEval := a.IsEval()
	a.Eval()
	defer func() {
		if !wasEval {
			a.Train()
		}
	}()

	return f()
}

// WithEvalHRL runs f with a hierarchical agent in evaluation mode. The
// agent's ChangeToEval hook is invoked before f, and if the agent was
// training beforehand, ChangeToTrain is invoked after f on every exit
// path.
func WithEvalHRL(a HRLAgent, f func() error) error {
	wasEval := a.IsEval()
	a.ChangeToEval()
	defer func() {
		if !wasEval {
			a.ChangeToTrain()
		}
	}()

	return f()
}
