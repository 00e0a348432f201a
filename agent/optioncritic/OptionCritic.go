// Package optioncritic implements the option-critic architecture: a
// two-level policy where a high-level epsilon-greedy policy selects
// among a fixed set of temporally-extended options, and each option's
// private policy selects primitive actions until a sampled termination
// event hands control back to the high-level policy.
//
// Adapted from the architecture of Bacon, Harb, and Precup (2017),
// "The Option-Critic Architecture".
package optioncritic

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gooption/agent"
	"github.com/samuelfneumann/gooption/network"
	"github.com/samuelfneumann/gooption/utils/floatutils"
)

// OptionCritic implements the single-stream option-critic agent. The
// agent owns a live network whose parameters an external optimizer
// adapts, and a target network - a structurally identical, fully
// independent copy used to stabilize the bootstrap term of the losses.
// The target network is never gradient-updated; it is overwritten with
// a whole parameter snapshot of the live network by SyncTarget on an
// external schedule.
//
// The agent's option state machine has two states, represented by the
// optionTerminated flag: awaiting option selection (flag true) and
// option active (flag false). Act always selects an option when the
// flag is true, so the very first Act of an agent's life performs an
// initial selection. Observe samples option termination against the
// post-action state and forces reselection at episode boundaries.
type OptionCritic struct {
	net    *network.OptionCritic
	target *network.OptionCritic

	config Config
	rng    *rand.Rand

	currentOption    int
	optionTerminated bool

	// Transition begun by Act, completed by the following Observe
	pendingState   *mat.VecDense
	pendingAction  int
	pendingLogProb float64
	pendingEntropy float64
	havePending    bool

	buffer *episodeBuffer

	eval bool

	steps           int
	optionsSelected int
	lastActorLoss   float64
	lastCriticLoss  float64
}

// New creates and returns a new OptionCritic agent using the argument
// heads for function approximation
func New(features network.FeatureExtractor,
	terminations network.TerminationHead, q network.QHead,
	config Config) (*OptionCritic, error) {
	err := config.Validate()
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	net, err := network.NewOptionCritic(features, terminations, q,
		config.FeatureSize, config.NumOptions, config.NumActions,
		config.EpsStart, config.EpsMin, config.EpsDecay, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create network: %v", err)
	}

	target, err := net.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: could not create target network: %v",
			err)
	}

	return &OptionCritic{
		net:              net,
		target:           target,
		config:           config,
		rng:              rand.New(rand.NewSource(config.Seed)),
		currentOption:    0,
		optionTerminated: true,
		buffer:           newEpisodeBuffer(),
		eval:             false,
	}, nil
}

// Network returns the agent's live network
func (o *OptionCritic) Network() *network.OptionCritic {
	return o.net
}

// Target returns the agent's target network
func (o *OptionCritic) Target() *network.OptionCritic {
	return o.target
}

// CurrentOption returns the option the agent is currently following
func (o *OptionCritic) CurrentOption() int {
	return o.currentOption
}

// Act selects a primitive action for an observation. If the current
// option has terminated, a new option is first selected: a uniformly
// random option with probability epsilon, the Q-greedy option
// otherwise. The epsilon schedule advances exactly once per such
// reselection. In evaluation mode the greedy option is always used
// and the schedule is left untouched. The action is then sampled from
// the current option's policy, and its log probability and entropy
// are retained for the loss terms.
func (o *OptionCritic) Act(obs mat.Vector) (int, error) {
	state, err := o.net.State(obs)
	if err != nil {
		return 0, fmt.Errorf("act: %v", err)
	}

	if o.optionTerminated {
		greedyOption, err := o.net.GreedyOption(state)
		if err != nil {
			return 0, fmt.Errorf("act: %v", err)
		}

		if o.eval {
			o.currentOption = greedyOption
		} else if epsilon := o.net.NextEpsilon(); o.rng.Float64() < epsilon {
			o.currentOption = o.rng.Intn(o.config.NumOptions)
		} else {
			o.currentOption = greedyOption
		}

		o.optionTerminated = false
		o.optionsSelected++
	}

	action, logProb, entropy, err := o.net.Action(state, o.currentOption)
	if err != nil {
		return 0, fmt.Errorf("act: %v", err)
	}

	o.pendingState = state
	o.pendingAction = action
	o.pendingLogProb = logProb
	o.pendingEntropy = entropy
	o.havePending = true
	o.steps++

	return action, nil
}

// Observe records the consequences of the last action. The pending
// transition begun by Act is completed and buffered, option
// termination is sampled against the post-action state to decide
// whether the next Act must reselect, and an episode boundary (done or
// reset) forces reselection unconditionally.
func (o *OptionCritic) Observe(obs mat.Vector, reward float64, done,
	reset bool) error {
	nextState, err := o.net.State(obs)
	if err != nil {
		return fmt.Errorf("observe: %v", err)
	}

	if o.havePending && !o.eval {
		o.buffer.add(transition{
			state:     o.pendingState,
			option:    o.currentOption,
			action:    o.pendingAction,
			logProb:   o.pendingLogProb,
			entropy:   o.pendingEntropy,
			reward:    reward,
			nextState: nextState,
			done:      done,
		})
	}
	o.havePending = false

	if done || reset {
		o.optionTerminated = true
		return nil
	}

	terminated, _, err := o.net.PredictOptionTermination(nextState,
		o.currentOption)
	if err != nil {
		return fmt.Errorf("observe: %v", err)
	}
	if terminated {
		o.optionTerminated = true
	}

	return nil
}

// bootstrapTarget computes the off-policy-stabilized update target for
// a transition using the target network:
//
//	gt = r + γ(1-done)[(1-β')Q'(s')[w] + β' max Q'(s')]
//
// where β' is the target network's termination probability for the
// transition's option in the next state.
func (o *OptionCritic) bootstrapTarget(t transition) (float64, error) {
	if t.done {
		return t.reward, nil
	}

	nextQ, err := o.target.Q(t.nextState)
	if err != nil {
		return 0, err
	}

	terminations, err := o.target.Terminations(t.nextState)
	if err != nil {
		return 0, err
	}

	beta := terminations.AtVec(t.option)
	maxQ := floatutils.Max(nextQ.RawVector().Data...)
	continuation := (1.0-beta)*nextQ.AtVec(t.option) + beta*maxQ

	return t.reward + o.config.Gamma*continuation, nil
}

// ActorLoss computes the combined policy and termination loss over the
// accumulated transitions. The behavior terms - the option policy's
// log probabilities and the termination probabilities - come from the
// live network, while the bootstrap target comes from the target
// network. Each transition contributes
//
//	-logπ(a|s,w)(gt - Q(s)[w]) - η H(π)
//	+ β(s')[w](Q(s')[w] - max Q(s') + ξ)(1-done)
//
// and the loss is the mean contribution. An empty buffer yields a
// zero loss.
func (o *OptionCritic) ActorLoss() (float64, error) {
	if o.buffer.len() == 0 {
		o.lastActorLoss = 0
		return 0, nil
	}

	var loss float64
	for _, t := range o.buffer.transitions {
		gt, err := o.bootstrapTarget(t)
		if err != nil {
			return 0, fmt.Errorf("actorloss: %v", err)
		}

		q, err := o.net.Q(t.state)
		if err != nil {
			return 0, fmt.Errorf("actorloss: %v", err)
		}

		nextQ, err := o.net.Q(t.nextState)
		if err != nil {
			return 0, fmt.Errorf("actorloss: %v", err)
		}

		terminations, err := o.net.Terminations(t.nextState)
		if err != nil {
			return 0, fmt.Errorf("actorloss: %v", err)
		}

		policyLoss := -t.logProb*(gt-q.AtVec(t.option)) -
			o.config.EntropyReg*t.entropy

		notDone := 1.0
		if t.done {
			notDone = 0.0
		}
		stateValue := floatutils.Max(nextQ.RawVector().Data...)
		advantage := nextQ.AtVec(t.option) - stateValue +
			o.config.TerminationReg
		terminationLoss := terminations.AtVec(t.option) * advantage * notDone

		loss += policyLoss + terminationLoss
	}

	o.lastActorLoss = loss / float64(o.buffer.len())
	return o.lastActorLoss, nil
}

// CriticLoss computes the mean squared temporal-difference loss of the
// live network's option values against the target network's bootstrap
// targets:
//
//	½(Q(s)[w] - gt)²
//
// averaged over the accumulated transitions. An empty buffer yields a
// zero loss.
func (o *OptionCritic) CriticLoss() (float64, error) {
	if o.buffer.len() == 0 {
		o.lastCriticLoss = 0
		return 0, nil
	}

	var loss float64
	for _, t := range o.buffer.transitions {
		gt, err := o.bootstrapTarget(t)
		if err != nil {
			return 0, fmt.Errorf("criticloss: %v", err)
		}

		q, err := o.net.Q(t.state)
		if err != nil {
			return 0, fmt.Errorf("criticloss: %v", err)
		}

		tdError := q.AtVec(t.option) - gt
		loss += 0.5 * tdError * tdError
	}

	o.lastCriticLoss = loss / float64(o.buffer.len())
	return o.lastCriticLoss, nil
}

// Transitions returns the number of transitions awaiting consumption
// by the loss functions
func (o *OptionCritic) Transitions() int {
	return o.buffer.len()
}

// ClearTransitions empties the transition buffer. An external
// training loop calls this after consuming the losses in an
// optimization step.
func (o *OptionCritic) ClearTransitions() {
	o.buffer.clear()
}

// SyncTarget overwrites the target network with a whole parameter
// snapshot of the live network
func (o *OptionCritic) SyncTarget() error {
	err := o.target.Set(o.net)
	if err != nil {
		return fmt.Errorf("synctarget: %v", err)
	}
	return nil
}

// SavedAttributes implements agent.Saveable
func (o *OptionCritic) SavedAttributes() []string {
	return []string{"network", "target"}
}

// Attribute implements agent.Saveable
func (o *OptionCritic) Attribute(name string) (interface{}, bool) {
	switch name {
	case "network":
		return o.net, true
	case "target":
		return o.target, true
	}
	return nil, false
}

// Save persists the live and target networks under dirname, creating
// the directory if needed
func (o *OptionCritic) Save(dirname string) error {
	return agent.SaveAttributes(o, dirname)
}

// Load restores the live and target networks from dirname. The agent
// must have the same architecture it had when saved.
func (o *OptionCritic) Load(dirname string) error {
	return agent.LoadAttributes(o, dirname)
}

// Statistics reports the agent's scalar diagnostics. Reading
// statistics never perturbs the epsilon schedule.
func (o *OptionCritic) Statistics() []agent.Stat {
	return []agent.Stat{
		{Name: "epsilon", Value: o.net.Epsilon()},
		{Name: "average_actor_loss", Value: o.lastActorLoss},
		{Name: "average_critic_loss", Value: o.lastCriticLoss},
		{Name: "steps", Value: float64(o.steps)},
		{Name: "options_selected", Value: float64(o.optionsSelected)},
	}
}

// Eval sets the agent into evaluation mode
func (o *OptionCritic) Eval() {
	o.eval = true
}

// Train sets the agent into training mode
func (o *OptionCritic) Train() {
	o.eval = false
}

// IsEval indicates whether the agent is in evaluation mode
func (o *OptionCritic) IsEval() bool {
	return o.eval
}
