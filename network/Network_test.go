package network

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// newTestNetwork returns a small network with linear heads and a few
// non-zero parameters so that options are distinguishable
func newTestNetwork(t *testing.T, numOptions, numActions,
	features int) *OptionCritic {
	t.Helper()

	featureHead, err := NewIdentity(features)
	if err != nil {
		t.Fatal(err)
	}

	terminations, err := NewLinear(features, numOptions)
	if err != nil {
		t.Fatal(err)
	}

	q, err := NewLinear(features, numOptions)
	if err != nil {
		t.Fatal(err)
	}
	// Make option values distinct so greedy selection is meaningful
	for o := 0; o < numOptions; o++ {
		for f := 0; f < features; f++ {
			q.Weights().Set(o, f, float64(o-f)*0.1)
		}
	}

	net, err := NewOptionCritic(featureHead, terminations, q, features,
		numOptions, numActions, 1.0, 0.1, 1e6, 42)
	if err != nil {
		t.Fatal(err)
	}
	return net
}

func TestNewOptionCriticValidation(t *testing.T) {
	features, err := NewIdentity(4)
	if err != nil {
		t.Fatal(err)
	}
	terminations, err := NewLinear(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	q, err := NewLinear(4, 2)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewOptionCritic(features, terminations, q, 4, 0, 3, 1.0, 0.1,
		1e6, 1)
	if err == nil {
		t.Error("expected error for zero options")
	}

	_, err = NewOptionCritic(features, terminations, q, 4, 2, 0, 1.0, 0.1,
		1e6, 1)
	if err == nil {
		t.Error("expected error for zero actions")
	}

	// Feature extractor output width must match the claimed size
	_, err = NewOptionCritic(features, terminations, q, 5, 2, 3, 1.0, 0.1,
		1e6, 1)
	if err == nil {
		t.Error("expected error for feature size mismatch")
	}

	// eps_min > eps_start
	_, err = NewOptionCritic(features, terminations, q, 4, 2, 3, 0.1, 1.0,
		1e6, 1)
	if err == nil {
		t.Error("expected error for eps_min > eps_start")
	}

	// Non-positive decay
	_, err = NewOptionCritic(features, terminations, q, 4, 2, 3, 1.0, 0.1,
		0, 1)
	if err == nil {
		t.Error("expected error for non-positive eps_decay")
	}
}

func TestGreedyOptionDeterministic(t *testing.T) {
	net := newTestNetwork(t, 4, 3, 5)
	obs := mat.NewVecDense(5, []float64{0.3, -0.2, 0.5, 0.0, 1.0})

	state, err := net.State(obs)
	if err != nil {
		t.Fatal(err)
	}

	first, err := net.GreedyOption(state)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		option, err := net.GreedyOption(state)
		if err != nil {
			t.Fatal(err)
		}
		if option != first {
			t.Fatalf("greedy option is not deterministic \n\twant(%v)"+
				"\n\thave(%v)", first, option)
		}
	}
}

func TestActionInRangeWithNonNegativeEntropy(t *testing.T) {
	numActions := 3
	net := newTestNetwork(t, 2, numActions, 4)
	obs := mat.NewVecDense(4, []float64{1.0, 0.5, -0.5, 0.25})

	state, err := net.State(obs)
	if err != nil {
		t.Fatal(err)
	}

	for option := 0; option < 2; option++ {
		for i := 0; i < 500; i++ {
			action, _, entropy, err := net.Action(state, option)
			if err != nil {
				t.Fatal(err)
			}
			if action < 0 || action >= numActions {
				t.Fatalf("action out of range \n\twant(in [0, %v))"+
					"\n\thave(%v)", numActions, action)
			}
			if entropy < 0 {
				t.Fatalf("entropy must be non-negative \n\thave(%v)",
					entropy)
			}
		}
	}
}

func TestActionLogProbConsistent(t *testing.T) {
	net := newTestNetwork(t, 2, 3, 4)
	obs := mat.NewVecDense(4, []float64{1.0, 0.0, -1.0, 0.5})

	state, err := net.State(obs)
	if err != nil {
		t.Fatal(err)
	}

	probs, err := net.ActionProbs(state, 0)
	if err != nil {
		t.Fatal(err)
	}

	action, logProb, _, err := net.Action(state, 0)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(logProb-math.Log(probs[action])) > 1e-12 {
		t.Errorf("log probability does not match distribution "+
			"\n\twant(%v)\n\thave(%v)", math.Log(probs[action]), logProb)
	}
}

func TestTerminationsAreProbabilities(t *testing.T) {
	net := newTestNetwork(t, 3, 2, 4)
	obs := mat.NewVecDense(4, []float64{10.0, -10.0, 3.0, 0.0})

	state, err := net.State(obs)
	if err != nil {
		t.Fatal(err)
	}

	probs, err := net.Terminations(state)
	if err != nil {
		t.Fatal(err)
	}

	for o := 0; o < 3; o++ {
		p := probs.AtVec(o)
		if p < 0 || p > 1 {
			t.Errorf("termination probability out of range for option %v"+
				"\n\thave(%v)", o, p)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	net := newTestNetwork(t, 2, 3, 4)

	clone, err := net.Clone()
	if err != nil {
		t.Fatal(err)
	}

	obs := mat.NewVecDense(4, []float64{1.0, 2.0, 3.0, 4.0})
	state, err := net.State(obs)
	if err != nil {
		t.Fatal(err)
	}

	before, err := clone.Q(state)
	if err != nil {
		t.Fatal(err)
	}
	beforeVal := before.AtVec(0)

	// Mutating the live network must not affect the clone
	net.OptionWeights(0).Set(0, 0, 100.0)
	if q, ok := net.q.(*Linear); ok {
		q.Weights().Set(0, 0, 100.0)
	} else {
		t.Fatal("test network should have a linear Q head")
	}

	after, err := clone.Q(state)
	if err != nil {
		t.Fatal(err)
	}
	if after.AtVec(0) != beforeVal {
		t.Errorf("clone shares parameters with its source \n\twant(%v)"+
			"\n\thave(%v)", beforeVal, after.AtVec(0))
	}
}

func TestSetCopiesParameters(t *testing.T) {
	net := newTestNetwork(t, 2, 3, 4)
	target, err := net.Clone()
	if err != nil {
		t.Fatal(err)
	}

	net.OptionWeights(1).Set(2, 1, -7.5)
	err = target.Set(net)
	if err != nil {
		t.Fatal(err)
	}

	if target.OptionWeights(1).At(2, 1) != -7.5 {
		t.Errorf("Set did not copy option weights \n\twant(%v)\n\thave(%v)",
			-7.5, target.OptionWeights(1).At(2, 1))
	}

	// The copy must be independent of the source
	net.OptionWeights(1).Set(2, 1, 3.25)
	if target.OptionWeights(1).At(2, 1) != -7.5 {
		t.Error("Set aliased the source network's parameters")
	}
}

func TestNetworkGobRoundTrip(t *testing.T) {
	net := newTestNetwork(t, 2, 3, 4)
	net.OptionWeights(0).Set(1, 2, 0.75)
	net.OptionBias(1).SetVec(0, -0.5)

	encoded, err := net.GobEncode()
	if err != nil {
		t.Fatal(err)
	}

	fresh := newTestNetwork(t, 2, 3, 4)
	fresh.OptionWeights(0).Set(1, 2, 0.0)

	err = fresh.GobDecode(encoded)
	if err != nil {
		t.Fatal(err)
	}

	if fresh.OptionWeights(0).At(1, 2) != 0.75 {
		t.Errorf("option weights did not round trip \n\twant(%v)"+
			"\n\thave(%v)", 0.75, fresh.OptionWeights(0).At(1, 2))
	}
	if fresh.OptionBias(1).AtVec(0) != -0.5 {
		t.Errorf("option bias did not round trip \n\twant(%v)\n\thave(%v)",
			-0.5, fresh.OptionBias(1).AtVec(0))
	}
}
