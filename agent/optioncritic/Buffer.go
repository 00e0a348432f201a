package optioncritic

import (
	"gonum.org/v1/gonum/mat"
)

// transition is a single step of the agent-environment interaction,
// retaining the sampled action's log probability and the action
// distribution's entropy for the policy-gradient loss terms
type transition struct {
	state     *mat.VecDense
	option    int
	action    int
	logProb   float64
	entropy   float64
	reward    float64
	nextState *mat.VecDense
	done      bool
}

// episodeBuffer accumulates the transitions of the current rollout
// window. The buffer is consumed by the loss functions and cleared
// after each optimization step.
type episodeBuffer struct {
	transitions []transition
}

func newEpisodeBuffer() *episodeBuffer {
	return &episodeBuffer{transitions: make([]transition, 0, 64)}
}

// add appends a transition to the buffer
func (b *episodeBuffer) add(t transition) {
	b.transitions = append(b.transitions, t)
}

// len returns the number of accumulated transitions
func (b *episodeBuffer) len() int {
	return len(b.transitions)
}

// clear empties the buffer, retaining its storage
func (b *episodeBuffer) clear() {
	b.transitions = b.transitions[:0]
}
