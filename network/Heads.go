// Package network implements the function approximation used by
// option-critic agents. An OptionCritic network owns three
// collaborating heads - a feature extractor, a termination head, and a
// Q head - together with a bank of per-option linear action heads.
// The heads are defined only through the shapes of the vectors they
// produce, so any function approximator satisfying the interfaces can
// be plugged in.
package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FeatureExtractor converts raw observations into fixed-size state
// feature vectors. Outputs returns the width of the produced vectors.
type FeatureExtractor interface {
	Features(obs mat.Vector) (*mat.VecDense, error)
	Outputs() int
	CloneFeatureExtractor() (FeatureExtractor, error)
}

// TerminationHead produces one raw termination logit per option. The
// OptionCritic network applies a sigmoid to these logits to form
// termination probabilities.
type TerminationHead interface {
	Terminations(state mat.Vector) (*mat.VecDense, error)
	CloneTerminationHead() (TerminationHead, error)
}

// QHead produces one action-value estimate per option
type QHead interface {
	Q(state mat.Vector) (*mat.VecDense, error)
	CloneQHead() (QHead, error)
}

// Linear is an affine map from input vectors to output vectors. It
// satisfies FeatureExtractor, TerminationHead, and QHead, so a single
// implementation covers every head role that linear function
// approximation can fill.
type Linear struct {
	weights *mat.Dense // rows = outputs, cols = inputs
	bias    *mat.VecDense
	inputs  int
	outputs int
}

// NewLinear returns a zero-initialized affine head mapping vectors of
// length inputs to vectors of length outputs
func NewLinear(inputs, outputs int) (*Linear, error) {
	if inputs < 1 || outputs < 1 {
		return nil, fmt.Errorf("newlinear: dimensions must be positive "+
			"\n\thave(%v x %v)", inputs, outputs)
	}

	return &Linear{
		weights: mat.NewDense(outputs, inputs, nil),
		bias:    mat.NewVecDense(outputs, nil),
		inputs:  inputs,
		outputs: outputs,
	}, nil
}

// apply computes weights * in + bias
func (l *Linear) apply(in mat.Vector) (*mat.VecDense, error) {
	if in.Len() != l.inputs {
		return nil, fmt.Errorf("apply: invalid input size \n\twant(%v)"+
			"\n\thave(%v)", l.inputs, in.Len())
	}

	out := mat.NewVecDense(l.outputs, nil)
	out.MulVec(l.weights, in)
	out.AddVec(out, l.bias)
	return out, nil
}

// Features implements FeatureExtractor
func (l *Linear) Features(obs mat.Vector) (*mat.VecDense, error) {
	return l.apply(obs)
}

// Terminations implements TerminationHead
func (l *Linear) Terminations(state mat.Vector) (*mat.VecDense, error) {
	return l.apply(state)
}

// Q implements QHead
func (l *Linear) Q(state mat.Vector) (*mat.VecDense, error) {
	return l.apply(state)
}

// Outputs returns the length of vectors the head produces
func (l *Linear) Outputs() int {
	return l.outputs
}

// Inputs returns the length of vectors the head consumes
func (l *Linear) Inputs() int {
	return l.inputs
}

// Weights returns the weight matrix of the head. The returned matrix
// shares backing storage with the head.
func (l *Linear) Weights() *mat.Dense {
	return l.weights
}

// Bias returns the bias vector of the head. The returned vector shares
// backing storage with the head.
func (l *Linear) Bias() *mat.VecDense {
	return l.bias
}

// clone deep copies the head, sharing no backing storage
func (l *Linear) clone() (*Linear, error) {
	weights := mat.NewDense(l.outputs, l.inputs, nil)
	weights.Copy(l.weights)

	bias := mat.NewVecDense(l.outputs, nil)
	bias.CopyVec(l.bias)

	return &Linear{
		weights: weights,
		bias:    bias,
		inputs:  l.inputs,
		outputs: l.outputs,
	}, nil
}

// CloneFeatureExtractor implements FeatureExtractor
func (l *Linear) CloneFeatureExtractor() (FeatureExtractor, error) {
	return l.clone()
}

// CloneTerminationHead implements TerminationHead
func (l *Linear) CloneTerminationHead() (TerminationHead, error) {
	return l.clone()
}

// CloneQHead implements QHead
func (l *Linear) CloneQHead() (QHead, error) {
	return l.clone()
}

// GobEncode implements the gob.GobEncoder interface
func (l *Linear) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	err := enc.Encode(l.inputs)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode inputs: %v", err)
	}

	err = enc.Encode(l.outputs)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode outputs: %v", err)
	}

	err = enc.Encode(l.weights.RawMatrix().Data)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode weights: %v", err)
	}

	err = enc.Encode(l.bias.RawVector().Data)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode bias: %v", err)
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (l *Linear) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var inputs, outputs int
	err := dec.Decode(&inputs)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode inputs: %v", err)
	}

	err = dec.Decode(&outputs)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode outputs: %v", err)
	}

	var weights []float64
	err = dec.Decode(&weights)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode weights: %v", err)
	}

	var bias []float64
	err = dec.Decode(&bias)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode bias: %v", err)
	}

	l.inputs = inputs
	l.outputs = outputs
	l.weights = mat.NewDense(outputs, inputs, weights)
	l.bias = mat.NewVecDense(outputs, bias)
	return nil
}

// Identity is a FeatureExtractor that passes observations through
// unchanged. It is useful when observations are already reasonable
// state features, such as in tabular or low-dimensional environments.
type Identity struct {
	size int
}

// NewIdentity returns a pass-through feature extractor for
// observations of length size
func NewIdentity(size int) (*Identity, error) {
	if size < 1 {
		return nil, fmt.Errorf("newidentity: size must be positive "+
			"\n\thave(%v)", size)
	}
	return &Identity{size: size}, nil
}

// Features implements FeatureExtractor
func (id *Identity) Features(obs mat.Vector) (*mat.VecDense, error) {
	if obs.Len() != id.size {
		return nil, fmt.Errorf("features: invalid observation size "+
			"\n\twant(%v)\n\thave(%v)", id.size, obs.Len())
	}

	out := mat.NewVecDense(obs.Len(), nil)
	out.CopyVec(obs)
	return out, nil
}

// Outputs implements FeatureExtractor
func (id *Identity) Outputs() int {
	return id.size
}

// CloneFeatureExtractor implements FeatureExtractor
func (id *Identity) CloneFeatureExtractor() (FeatureExtractor, error) {
	return &Identity{size: id.size}, nil
}
