package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// mlpLayer is a fully connected layer of an MLP
type mlpLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// fwd adds the forward pass of the layer to the computational graph
func (l *mlpLayer) fwd(x *G.Node) (*G.Node, error) {
	x = G.Must(G.Mul(x, l.weights))
	if l.bias != nil {
		// Broadcast the bias weights along the batch dimension
		x = G.Must(G.BroadcastAdd(x, l.bias, nil, []byte{0}))
	}
	if l.act == nil || l.act.IsIdentity() {
		return x, nil
	}
	return l.act.fwd(x)
}

// MLP is a multi-layered perceptron head. It owns its own
// computational graph and virtual machine, so a forward pass is a
// single method call on an observation vector. An MLP satisfies
// FeatureExtractor, TerminationHead, and QHead, so it can serve any
// head role of an OptionCritic network.
//
// The network always appends a final linear layer (with a bias unit
// and no activation) mapping to the requested number of outputs, so a
// linear head is obtained by passing empty hidden sizes, biases, and
// activations.
type MLP struct {
	g      *G.ExprGraph
	vm     G.VM
	layers []*mlpLayer

	input      *G.Node
	prediction *G.Node
	predVal    G.Value

	numInputs  int
	numOutputs int

	// Architecture, needed for cloning and gobbing
	hiddenSizes []int
	biases      []bool
	activations []*Activation
}

// NewMLP creates and returns a new multi-layered perceptron head
// mapping vectors of length features to vectors of length outputs.
// For index i, hiddenSizes[i] is the number of nodes in hidden layer
// i; biases[i] determines whether that layer has a bias unit; and
// activations[i] is that layer's activation function. The init
// parameter determines the weight initialization scheme.
func NewMLP(features, outputs int, hiddenSizes []int, biases []bool,
	init G.InitWFn, activations []*Activation) (*MLP, error) {
	if features < 1 || outputs < 1 {
		return nil, fmt.Errorf("newmlp: dimensions must be positive "+
			"\n\thave(%v x %v)", features, outputs)
	}

	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newmlp: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}

	// Ensure one bias bool per layer
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newmlp: invalid number of biases\n\twant(%d)"+
			"\n\thave(%d)", len(hiddenSizes), len(biases))
	}

	// Add the final linear layer so the network always predicts
	// exactly outputs values
	hiddenSizes = append([]int{}, append(hiddenSizes, outputs)...)
	biases = append([]bool{}, append(biases, true)...)
	activations = append([]*Activation{},
		append(activations, IdentityActivation())...)

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(1, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	layers := make([]*mlpLayer, len(hiddenSizes))
	in := features
	for i, out := range hiddenSizes {
		weights := G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
			G.WithName(fmt.Sprintf("layer%dWeights", i)), G.WithInit(init))

		var bias *G.Node
		if biases[i] {
			bias = G.NewMatrix(g, tensor.Float64, G.WithShape(1, out),
				G.WithName(fmt.Sprintf("layer%dBias", i)),
				G.WithInit(G.Zeroes()))
		}

		layers[i] = &mlpLayer{weights: weights, bias: bias,
			act: activations[i]}
		in = out
	}

	net := &MLP{
		g:           g,
		layers:      layers,
		input:       input,
		numInputs:   features,
		numOutputs:  outputs,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}

	pred := input
	var err error
	for i, l := range net.layers {
		if pred, err = l.fwd(pred); err != nil {
			return nil, fmt.Errorf("newmlp: could not compute forward pass "+
				"of layer %v: %v", i, err)
		}
	}
	net.prediction = pred
	G.Read(net.prediction, &net.predVal)

	net.vm = G.NewTapeMachine(g)
	return net, nil
}

// forward runs the network on a single input vector
func (m *MLP) forward(in mat.Vector) (*mat.VecDense, error) {
	if in.Len() != m.numInputs {
		return nil, fmt.Errorf("forward: invalid input size \n\twant(%v)"+
			"\n\thave(%v)", m.numInputs, in.Len())
	}

	backing := make([]float64, in.Len())
	for i := 0; i < in.Len(); i++ {
		backing[i] = in.AtVec(i)
	}

	inputTensor := tensor.New(
		tensor.WithBacking(backing),
		tensor.WithShape(1, m.numInputs),
	)
	err := G.Let(m.input, inputTensor)
	if err != nil {
		return nil, fmt.Errorf("forward: could not set input: %v", err)
	}

	err = m.vm.RunAll()
	if err != nil {
		return nil, fmt.Errorf("forward: could not run VM: %v", err)
	}

	data := m.predVal.Data().([]float64)
	out := mat.NewVecDense(m.numOutputs, nil)
	for i := 0; i < m.numOutputs; i++ {
		out.SetVec(i, data[i])
	}

	m.vm.Reset()
	return out, nil
}

// Features implements FeatureExtractor
func (m *MLP) Features(obs mat.Vector) (*mat.VecDense, error) {
	return m.forward(obs)
}

// Terminations implements TerminationHead
func (m *MLP) Terminations(state mat.Vector) (*mat.VecDense, error) {
	return m.forward(state)
}

// Q implements QHead
func (m *MLP) Q(state mat.Vector) (*mat.VecDense, error) {
	return m.forward(state)
}

// Outputs returns the number of outputs from the network
func (m *MLP) Outputs() int {
	return m.numOutputs
}

// Inputs returns the number of inputs to the network
func (m *MLP) Inputs() int {
	return m.numInputs
}

// learnables returns the weight and bias nodes of the network
func (m *MLP) learnables() G.Nodes {
	nodes := make(G.Nodes, 0, 2*len(m.layers))
	for _, l := range m.layers {
		nodes = append(nodes, l.weights)
		if l.bias != nil {
			nodes = append(nodes, l.bias)
		}
	}
	return nodes
}

// set overwrites the network's weights with those of the source
// network
func (m *MLP) set(source *MLP) error {
	sourceNodes := source.learnables()
	nodes := m.learnables()
	if len(nodes) != len(sourceNodes) {
		return fmt.Errorf("set: source architecture does not match "+
			"\n\twant(%v learnables)\n\thave(%v)", len(nodes),
			len(sourceNodes))
	}

	for i, node := range nodes {
		clone := sourceNodes[i].Clone()
		err := G.Let(node, clone.(*G.Node).Value())
		if err != nil {
			return fmt.Errorf("set: could not set learnable %v: %v", i, err)
		}
	}
	return nil
}

// clone deep copies the network, its graph, and its VM
func (m *MLP) clone() (*MLP, error) {
	// The final layer is re-added by the constructor
	n := len(m.hiddenSizes) - 1
	clone, err := NewMLP(m.numInputs, m.numOutputs, m.hiddenSizes[:n],
		m.biases[:n], G.Zeroes(), m.activations[:n])
	if err != nil {
		return nil, fmt.Errorf("clone: could not construct replica: %v", err)
	}

	err = clone.set(m)
	if err != nil {
		return nil, fmt.Errorf("clone: %v", err)
	}
	return clone, nil
}

// CloneFeatureExtractor implements FeatureExtractor
func (m *MLP) CloneFeatureExtractor() (FeatureExtractor, error) {
	return m.clone()
}

// CloneTerminationHead implements TerminationHead
func (m *MLP) CloneTerminationHead() (TerminationHead, error) {
	return m.clone()
}

// CloneQHead implements QHead
func (m *MLP) CloneQHead() (QHead, error) {
	return m.clone()
}

// Close releases the network's virtual machine
func (m *MLP) Close() error {
	return m.vm.Close()
}

// GobEncode implements the gob.GobEncoder interface
func (m *MLP) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	err := enc.Encode(m.numInputs)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of inputs")
	}

	err = enc.Encode(m.numOutputs)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of outputs")
	}

	err = enc.Encode(m.hiddenSizes)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode hidden sizes")
	}

	err = enc.Encode(m.biases)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode biases")
	}

	err = enc.Encode(m.activations)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode activations")
	}

	for i, node := range m.learnables() {
		err = enc.Encode(node.Value().Data().([]float64))
		if err != nil {
			return nil, fmt.Errorf("gobencode: could not encode learnable "+
				"%v: %v", i, err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (m *MLP) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var numInputs, numOutputs int
	err := dec.Decode(&numInputs)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode number of inputs")
	}

	err = dec.Decode(&numOutputs)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode number of outputs")
	}

	var hiddenSizes []int
	err = dec.Decode(&hiddenSizes)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode hidden sizes")
	}

	var biases []bool
	err = dec.Decode(&biases)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode biases")
	}

	var activations []*Activation
	err = dec.Decode(&activations)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode activations")
	}

	// The constructor re-adds the final layer
	n := len(hiddenSizes) - 1
	newNet, err := NewMLP(numInputs, numOutputs, hiddenSizes[:n],
		biases[:n], G.Zeroes(), activations[:n])
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct new MLP: %v", err)
	}

	for i, node := range newNet.learnables() {
		var data []float64
		err = dec.Decode(&data)
		if err != nil {
			return fmt.Errorf("gobdecode: could not decode learnable "+
				"%v: %v", i, err)
		}

		weights := tensor.New(
			tensor.WithBacking(data),
			tensor.WithShape(node.Shape()...),
		)
		err = G.Let(node, weights)
		if err != nil {
			return fmt.Errorf("gobdecode: could not set learnable %v: %v",
				i, err)
		}
	}

	*m = *newNet
	return nil
}
