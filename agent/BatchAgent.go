package agent

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrNotImplemented is returned by agents that declare a capability
// tier but do not support one of its operations. Returning this error
// is the required failure mode: a missing capability must fail loudly
// at call time, never silently no-op.
var ErrNotImplemented error = errors.New("agent: operation not implemented")

// BatchAgent is the capability set of agents that can interact with a
// batch of environments at once. A BatchAgent does not itself satisfy
// Agent; wrapping it in FromBatch provides single-stream Act and
// Observe in terms of the batch operations, so concrete batch agents
// get single-item behavior for free.
type BatchAgent interface {
	// BatchAct selects one action per observation in the batch
	BatchAct(batchObs []mat.Vector) ([]int, error)

	// BatchObserve records a batch of action consequences. For index
	// i, batchDone[i] indicates the new state is terminal and
	// batchReset[i] indicates that episode is being cut off even
	// though its state is not terminal.
	BatchObserve(batchObs []mat.Vector, batchReward []float64,
		batchDone, batchReset []bool) error

	Save(dirname string) error
	Load(dirname string) error
	Statistics() []Stat

	Eval()
	Train()
	IsEval() bool
}

// GoalConditionedBatchAgent is a BatchAgent whose decisions are
// additionally conditioned on goals
type GoalConditionedBatchAgent interface {
	BatchAgent

	// BatchActWithGoal selects one action per observation-goal pair
	BatchActWithGoal(batchObs, batchGoal []mat.Vector) ([]int, error)

	// BatchObserveWithGoal records a batch of goal-conditioned action
	// consequences
	BatchObserveWithGoal(batchObs, batchGoal []mat.Vector,
		batchReward []float64, batchDone, batchReset []bool) error

	// BatchObserveWithGoalStateActionArr additionally provides the
	// recent state and action sequences leading up to each observation
	BatchObserveWithGoalStateActionArr(stateArr, actionArr,
		batchObs, batchGoal []mat.Vector, batchReward []float64,
		batchDone, batchReset []bool) error
}

// FromBatch adapts a BatchAgent to the single-stream Agent contract.
// Single-item calls wrap their arguments in singleton batches and
// unwrap the single result.
type FromBatch struct {
	BatchAgent
}

// Act implements Agent by delegating to BatchAct
func (f FromBatch) Act(obs mat.Vector) (int, error) {
	actions, err := f.BatchAct([]mat.Vector{obs})
	if err != nil {
		return 0, err
	}
	if len(actions) != 1 {
		return 0, fmt.Errorf("act: expected a single action \n\twant(1)"+
			"\n\thave(%v)", len(actions))
	}
	return actions[0], nil
}

// Observe implements Agent by delegating to BatchObserve
func (f FromBatch) Observe(obs mat.Vector, reward float64, done,
	reset bool) error {
	return f.BatchObserve([]mat.Vector{obs}, []float64{reward},
		[]bool{done}, []bool{reset})
}

// FromGoalBatch adapts a GoalConditionedBatchAgent to single-stream
// goal-conditioned calls, following the same singleton-wrapping
// delegation as FromBatch
type FromGoalBatch struct {
	FromBatch
	goalAgent GoalConditionedBatchAgent
}

// NewFromGoalBatch returns a single-stream adapter around a
// goal-conditioned batch agent
func NewFromGoalBatch(a GoalConditionedBatchAgent) *FromGoalBatch {
	return &FromGoalBatch{
		FromBatch: FromBatch{BatchAgent: a},
		goalAgent: a,
	}
}

// ActWithGoal selects an action for a single observation-goal pair
func (f *FromGoalBatch) ActWithGoal(obs, goal mat.Vector) (int, error) {
	actions, err := f.goalAgent.BatchActWithGoal([]mat.Vector{obs},
		[]mat.Vector{goal})
	if err != nil {
		return 0, err
	}
	if len(actions) != 1 {
		return 0, fmt.Errorf("actwithgoal: expected a single action "+
			"\n\twant(1)\n\thave(%v)", len(actions))
	}
	return actions[0], nil
}

// ObserveWithGoal records a single goal-conditioned action consequence
func (f *FromGoalBatch) ObserveWithGoal(obs, goal mat.Vector,
	reward float64, done, reset bool) error {
	return f.goalAgent.BatchObserveWithGoal([]mat.Vector{obs},
		[]mat.Vector{goal}, []float64{reward}, []bool{done}, []bool{reset})
}

// ObserveWithGoalStateActionArr records a single goal-conditioned
// action consequence along with the recent state and action sequences
func (f *FromGoalBatch) ObserveWithGoalStateActionArr(stateArr,
	actionArr []mat.Vector, obs, goal mat.Vector, reward float64, done,
	reset bool) error {
	return f.goalAgent.BatchObserveWithGoalStateActionArr(stateArr,
		actionArr, []mat.Vector{obs}, []mat.Vector{goal},
		[]float64{reward}, []bool{done}, []bool{reset})
}
