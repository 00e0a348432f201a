package network

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/gooption/schedule"
	"github.com/samuelfneumann/gooption/utils/floatutils"
)

// probFloor is the smallest probability used when computing logarithms
// of action probabilities, guarding against -Inf for near-deterministic
// distributions.
const probFloor float64 = 1e-12

// OptionCritic is the option-critic network. It owns a feature
// extractor, a termination head, and a Q head, together with one
// linear action head per option. The option weight bank is the stacked
// equivalent of a [numOptions x featureSize x numActions] parameter
// tensor: optionsW[o] maps state features to action logits for option
// o, and optionsB[o] holds that option's action biases.
//
// The network also owns the epsilon schedule used for option-level
// exploration. The schedule decays once per call to NextEpsilon, which
// callers should invoke exactly once per option (re)selection. Epsilon
// reads the schedule without advancing it.
type OptionCritic struct {
	features     FeatureExtractor
	terminations TerminationHead
	q            QHead

	optionsW []*mat.Dense    // optionsW[o] has shape featureSize x numActions
	optionsB []*mat.VecDense // optionsB[o] has length numActions

	sched *schedule.Exponential
	src   rand.Source
	seed  uint64

	numOptions  int
	numActions  int
	featureSize int
}

// NewOptionCritic returns a new option-critic network. The
// featureSize parameter must equal the output width of the feature
// extractor, and the epsilon schedule parameters must describe a legal
// decaying schedule: epsMin <= epsStart and epsDecay > 0. Option
// action heads are zero-initialized, matching a uniform initial policy
// per option.
func NewOptionCritic(features FeatureExtractor, terminations TerminationHead,
	q QHead, featureSize, numOptions, numActions int, epsStart, epsMin,
	epsDecay float64, seed uint64) (*OptionCritic, error) {
	if numOptions < 1 {
		return nil, fmt.Errorf("newoptioncritic: must have at least one "+
			"option \n\thave(%v)", numOptions)
	}
	if numActions < 1 {
		return nil, fmt.Errorf("newoptioncritic: must have at least one "+
			"action \n\thave(%v)", numActions)
	}
	if features.Outputs() != featureSize {
		return nil, fmt.Errorf("newoptioncritic: feature extractor output "+
			"width does not match feature size \n\twant(%v)\n\thave(%v)",
			featureSize, features.Outputs())
	}

	sched, err := schedule.NewExponential(epsStart, epsMin, epsDecay)
	if err != nil {
		return nil, fmt.Errorf("newoptioncritic: invalid epsilon "+
			"schedule: %v", err)
	}

	optionsW := make([]*mat.Dense, numOptions)
	optionsB := make([]*mat.VecDense, numOptions)
	for o := range optionsW {
		optionsW[o] = mat.NewDense(featureSize, numActions, nil)
		optionsB[o] = mat.NewVecDense(numActions, nil)
	}

	return &OptionCritic{
		features:     features,
		terminations: terminations,
		q:            q,
		optionsW:     optionsW,
		optionsB:     optionsB,
		sched:        sched,
		src:          rand.NewSource(seed),
		seed:         seed,
		numOptions:   numOptions,
		numActions:   numActions,
		featureSize:  featureSize,
	}, nil
}

// State converts an observation into a state feature vector
func (oc *OptionCritic) State(obs mat.Vector) (*mat.VecDense, error) {
	state, err := oc.features.Features(obs)
	if err != nil {
		return nil, fmt.Errorf("state: could not extract features: %v", err)
	}
	if state.Len() != oc.featureSize {
		return nil, fmt.Errorf("state: feature extractor produced invalid "+
			"state \n\twant(%v)\n\thave(%v)", oc.featureSize, state.Len())
	}
	return state, nil
}

// Q returns the option values for a state, one value per option
func (oc *OptionCritic) Q(state mat.Vector) (*mat.VecDense, error) {
	q, err := oc.q.Q(state)
	if err != nil {
		return nil, fmt.Errorf("q: could not evaluate Q head: %v", err)
	}
	if q.Len() != oc.numOptions {
		return nil, fmt.Errorf("q: Q head produced invalid values "+
			"\n\twant(%v)\n\thave(%v)", oc.numOptions, q.Len())
	}
	return q, nil
}

// Terminations returns the per-option termination probabilities for a
// state by passing the termination head's logits through a sigmoid.
// Each returned entry lies in [0, 1].
func (oc *OptionCritic) Terminations(state mat.Vector) (*mat.VecDense, error) {
	logits, err := oc.terminations.Terminations(state)
	if err != nil {
		return nil, fmt.Errorf("terminations: could not evaluate "+
			"termination head: %v", err)
	}
	if logits.Len() != oc.numOptions {
		return nil, fmt.Errorf("terminations: termination head produced "+
			"invalid logits \n\twant(%v)\n\thave(%v)", oc.numOptions,
			logits.Len())
	}

	probs := mat.NewVecDense(oc.numOptions, nil)
	for o := 0; o < oc.numOptions; o++ {
		probs.SetVec(o, 1.0/(1.0+math.Exp(-logits.AtVec(o))))
	}
	return probs, nil
}

// PredictOptionTermination draws a single Bernoulli sample deciding
// whether the current option terminates in the given state. It also
// returns the Q-greedy option for that state regardless of the
// termination outcome; the caller decides whether to use it.
func (oc *OptionCritic) PredictOptionTermination(state mat.Vector,
	currentOption int) (bool, int, error) {
	if currentOption < 0 || currentOption >= oc.numOptions {
		return false, 0, fmt.Errorf("predictoptiontermination: invalid "+
			"option \n\twant(in [0, %v))\n\thave(%v)", oc.numOptions,
			currentOption)
	}

	probs, err := oc.Terminations(state)
	if err != nil {
		return false, 0, fmt.Errorf("predictoptiontermination: %v", err)
	}

	dist := distuv.Bernoulli{P: probs.AtVec(currentOption), Src: oc.src}
	terminated := dist.Rand() != 0.0

	nextOption, err := oc.GreedyOption(state)
	if err != nil {
		return false, 0, fmt.Errorf("predictoptiontermination: %v", err)
	}

	return terminated, nextOption, nil
}

// Action samples a primitive action from the argument option's policy
// in the given state. The option's action logits are
// state * optionsW[option] + optionsB[option]; a categorical
// distribution is formed by softmax, and a single action is drawn.
// The sampled action's log probability and the distribution's entropy
// are returned alongside the action for use in policy-gradient loss
// terms.
func (oc *OptionCritic) Action(state mat.Vector, option int) (int, float64,
	float64, error) {
	if option < 0 || option >= oc.numOptions {
		return 0, 0, 0, fmt.Errorf("action: invalid option \n\twant(in "+
			"[0, %v))\n\thave(%v)", oc.numOptions, option)
	}
	if state.Len() != oc.featureSize {
		return 0, 0, 0, fmt.Errorf("action: invalid state size "+
			"\n\twant(%v)\n\thave(%v)", oc.featureSize, state.Len())
	}

	logits := mat.NewVecDense(oc.numActions, nil)
	logits.MulVec(oc.optionsW[option].T(), state)
	logits.AddVec(logits, oc.optionsB[option])

	probs := softmax(logits.RawVector().Data)

	var entropy float64
	for _, p := range probs {
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}

	dist := distuv.NewCategorical(probs, oc.src)
	action := int(dist.Rand())

	logProb := math.Log(floatutils.Clip(probs[action], probFloor, 1.0))

	return action, logProb, entropy, nil
}

// ActionProbs returns the action distribution of the argument option's
// policy in the given state, without sampling
func (oc *OptionCritic) ActionProbs(state mat.Vector,
	option int) ([]float64, error) {
	if option < 0 || option >= oc.numOptions {
		return nil, fmt.Errorf("actionprobs: invalid option \n\twant(in "+
			"[0, %v))\n\thave(%v)", oc.numOptions, option)
	}

	logits := mat.NewVecDense(oc.numActions, nil)
	logits.MulVec(oc.optionsW[option].T(), state)
	logits.AddVec(logits, oc.optionsB[option])

	return softmax(logits.RawVector().Data), nil
}

// GreedyOption returns the option of maximal value in the given state.
// Ties are broken toward the lowest option index so that the result is
// deterministic given fixed parameters and state.
func (oc *OptionCritic) GreedyOption(state mat.Vector) (int, error) {
	q, err := oc.Q(state)
	if err != nil {
		return 0, fmt.Errorf("greedyoption: %v", err)
	}

	_, indices := floatutils.MaxSlice(q.RawVector().Data)
	return indices[0], nil
}

// Epsilon returns the current value of the epsilon schedule without
// advancing it
func (oc *OptionCritic) Epsilon() float64 {
	return oc.sched.Value()
}

// NextEpsilon returns the current value of the epsilon schedule and
// advances the schedule by one step. It should be called exactly once
// per option (re)selection.
func (oc *OptionCritic) NextEpsilon() float64 {
	return oc.sched.Next()
}

// NumOptions returns the number of options the network scores
func (oc *OptionCritic) NumOptions() int {
	return oc.numOptions
}

// NumActions returns the number of primitive actions per option policy
func (oc *OptionCritic) NumActions() int {
	return oc.numActions
}

// Features returns the width of state feature vectors
func (oc *OptionCritic) Features() int {
	return oc.featureSize
}

// OptionWeights returns the action head weight matrix for an option.
// The returned matrix shares backing storage with the network.
func (oc *OptionCritic) OptionWeights(option int) *mat.Dense {
	return oc.optionsW[option]
}

// OptionBias returns the action head bias vector for an option. The
// returned vector shares backing storage with the network.
func (oc *OptionCritic) OptionBias(option int) *mat.VecDense {
	return oc.optionsB[option]
}

// Clone deep copies the network into a fully independent replica
// sharing no mutable backing storage with the receiver. Cloning is how
// target networks are constructed.
func (oc *OptionCritic) Clone() (*OptionCritic, error) {
	features, err := oc.features.CloneFeatureExtractor()
	if err != nil {
		return nil, fmt.Errorf("clone: could not clone feature "+
			"extractor: %v", err)
	}

	terminations, err := oc.terminations.CloneTerminationHead()
	if err != nil {
		return nil, fmt.Errorf("clone: could not clone termination "+
			"head: %v", err)
	}

	q, err := oc.q.CloneQHead()
	if err != nil {
		return nil, fmt.Errorf("clone: could not clone Q head: %v", err)
	}

	optionsW, optionsB := oc.copyOptionHeads()

	return &OptionCritic{
		features:     features,
		terminations: terminations,
		q:            q,
		optionsW:     optionsW,
		optionsB:     optionsB,
		sched:        oc.sched.Clone(),
		src:          rand.NewSource(oc.seed),
		seed:         oc.seed,
		numOptions:   oc.numOptions,
		numActions:   oc.numActions,
		featureSize:  oc.featureSize,
	}, nil
}

// Set overwrites the receiver's parameters with an independent copy of
// the source network's parameters. The complete replacement parameter
// set is constructed first and swapped in at the end, so no forward
// pass can ever observe a partially-overwritten network.
func (oc *OptionCritic) Set(source *OptionCritic) error {
	if source.numOptions != oc.numOptions ||
		source.numActions != oc.numActions ||
		source.featureSize != oc.featureSize {
		return fmt.Errorf("set: source network architecture does not "+
			"match \n\twant(%v options, %v actions, %v features)"+
			"\n\thave(%v options, %v actions, %v features)",
			oc.numOptions, oc.numActions, oc.featureSize,
			source.numOptions, source.numActions, source.featureSize)
	}

	features, err := source.features.CloneFeatureExtractor()
	if err != nil {
		return fmt.Errorf("set: could not copy feature extractor: %v", err)
	}

	terminations, err := source.terminations.CloneTerminationHead()
	if err != nil {
		return fmt.Errorf("set: could not copy termination head: %v", err)
	}

	q, err := source.q.CloneQHead()
	if err != nil {
		return fmt.Errorf("set: could not copy Q head: %v", err)
	}

	optionsW, optionsB := source.copyOptionHeads()

	// Swap the whole parameter snapshot
	oc.features = features
	oc.terminations = terminations
	oc.q = q
	oc.optionsW = optionsW
	oc.optionsB = optionsB
	return nil
}

// copyOptionHeads deep copies the per-option action head parameters
func (oc *OptionCritic) copyOptionHeads() ([]*mat.Dense, []*mat.VecDense) {
	optionsW := make([]*mat.Dense, oc.numOptions)
	optionsB := make([]*mat.VecDense, oc.numOptions)
	for o := 0; o < oc.numOptions; o++ {
		optionsW[o] = mat.NewDense(oc.featureSize, oc.numActions, nil)
		optionsW[o].Copy(oc.optionsW[o])

		optionsB[o] = mat.NewVecDense(oc.numActions, nil)
		optionsB[o].CopyVec(oc.optionsB[o])
	}
	return optionsW, optionsB
}

// GobEncode implements the gob.GobEncoder interface. Heads that
// themselves implement gob.GobEncoder have their state included;
// stateless heads are skipped.
func (oc *OptionCritic) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	err := enc.Encode(oc.numOptions)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of "+
			"options: %v", err)
	}

	err = enc.Encode(oc.numActions)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of "+
			"actions: %v", err)
	}

	err = enc.Encode(oc.featureSize)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode feature "+
			"size: %v", err)
	}

	for o := 0; o < oc.numOptions; o++ {
		err = enc.Encode(oc.optionsW[o].RawMatrix().Data)
		if err != nil {
			return nil, fmt.Errorf("gobencode: could not encode option %v "+
				"weights: %v", o, err)
		}

		err = enc.Encode(oc.optionsB[o].RawVector().Data)
		if err != nil {
			return nil, fmt.Errorf("gobencode: could not encode option %v "+
				"bias: %v", o, err)
		}
	}

	heads := []interface{}{oc.features, oc.terminations, oc.q}
	for i, head := range heads {
		blob, err := encodeHead(head)
		if err != nil {
			return nil, fmt.Errorf("gobencode: could not encode head %v: %v",
				i, err)
		}

		err = enc.Encode(blob)
		if err != nil {
			return nil, fmt.Errorf("gobencode: could not encode head %v: %v",
				i, err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. Decoding loads
// parameter state into an existing network of identical architecture;
// the receiver's heads must already be constructed.
func (oc *OptionCritic) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var numOptions, numActions, featureSize int
	err := dec.Decode(&numOptions)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode number of "+
			"options: %v", err)
	}

	err = dec.Decode(&numActions)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode number of "+
			"actions: %v", err)
	}

	err = dec.Decode(&featureSize)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode feature size: %v", err)
	}

	if numOptions != oc.numOptions || numActions != oc.numActions ||
		featureSize != oc.featureSize {
		return fmt.Errorf("gobdecode: checkpoint architecture does not "+
			"match network \n\twant(%v options, %v actions, %v features)"+
			"\n\thave(%v options, %v actions, %v features)",
			oc.numOptions, oc.numActions, oc.featureSize,
			numOptions, numActions, featureSize)
	}

	for o := 0; o < oc.numOptions; o++ {
		var weights []float64
		err = dec.Decode(&weights)
		if err != nil {
			return fmt.Errorf("gobdecode: could not decode option %v "+
				"weights: %v", o, err)
		}
		oc.optionsW[o] = mat.NewDense(featureSize, numActions, weights)

		var bias []float64
		err = dec.Decode(&bias)
		if err != nil {
			return fmt.Errorf("gobdecode: could not decode option %v "+
				"bias: %v", o, err)
		}
		oc.optionsB[o] = mat.NewVecDense(numActions, bias)
	}

	heads := []interface{}{oc.features, oc.terminations, oc.q}
	for i, head := range heads {
		var blob []byte
		err = dec.Decode(&blob)
		if err != nil {
			return fmt.Errorf("gobdecode: could not decode head %v: %v",
				i, err)
		}

		err = decodeHead(head, blob)
		if err != nil {
			return fmt.Errorf("gobdecode: could not decode head %v: %v",
				i, err)
		}
	}

	return nil
}

// encodeHead serializes a head's state if the head is stateful
func encodeHead(head interface{}) ([]byte, error) {
	encoder, ok := head.(gob.GobEncoder)
	if !ok {
		return []byte{}, nil
	}
	return encoder.GobEncode()
}

// decodeHead restores a head's state if the head is stateful
func decodeHead(head interface{}, blob []byte) error {
	if len(blob) == 0 {
		return nil
	}

	decoder, ok := head.(gob.GobDecoder)
	if !ok {
		return fmt.Errorf("checkpoint contains state for a stateless head")
	}
	return decoder.GobDecode(blob)
}

// softmax converts logits into a probability distribution, shifting by
// the maximum logit for numerical stability
func softmax(logits []float64) []float64 {
	max := floatutils.Max(logits...)

	probs := make([]float64, len(logits))
	var total float64
	for i, logit := range logits {
		probs[i] = math.Exp(logit - max)
		total += probs[i]
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs
}
