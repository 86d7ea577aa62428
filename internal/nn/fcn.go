// Package nn provides a small fully connected network whose parameters live
// in one flat vector, plus the named activations it is built from.
package nn

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

var ErrInvalidNetwork = errors.New("invalid network")

// Activation names a registered activation and its parameter.
type Activation struct {
	Name  string  `json:"name" yaml:"name"`
	Param float64 `json:"param,omitempty" yaml:"param,omitempty"`
}

func Linear() Activation                 { return Activation{Name: ActivationLinear} }
func ReLU() Activation                   { return Activation{Name: ActivationReLU} }
func LeakyReLU(slope float64) Activation { return Activation{Name: ActivationLeakyReLU, Param: slope} }
func Sigmoid() Activation                { return Activation{Name: ActivationSigmoid} }
func Tanh() Activation                   { return Activation{Name: ActivationTanh} }
func (a Activation) String() string      { return a.Name }

// LayerSpec is one layer of units. The first layer is the input: its
// activation is applied to the raw input and it owns no parameters.
type LayerSpec struct {
	Width      int        `json:"width" yaml:"width"`
	Activation Activation `json:"activation" yaml:"activation"`
}

// ParamCount is the length of the flat parameter vector for layers: for each
// consecutive pair, an out-by-in weight matrix then out biases.
func ParamCount(layers []LayerSpec) int {
	total := 0
	for k := 1; k < len(layers); k++ {
		total += layers[k].Width*layers[k-1].Width + layers[k].Width
	}
	return total
}

// FCN is a feed-forward network. Evaluate is safe for concurrent use as long
// as nobody calls SetParameters or Randomize at the same time.
type FCN struct {
	layers []LayerSpec
	acts   []ActivationFunc
	params []float64
}

// NewFCN builds a network with all parameters zero.
func NewFCN(layers []LayerSpec) (*FCN, error) {
	if len(layers) < 2 {
		return nil, fmt.Errorf("%w: need an input and at least one further layer, got %d", ErrInvalidNetwork, len(layers))
	}
	acts := make([]ActivationFunc, len(layers))
	for i, layer := range layers {
		if layer.Width <= 0 {
			return nil, fmt.Errorf("%w: layer %d width must be > 0", ErrInvalidNetwork, i)
		}
		fn, err := GetActivation(layer.Activation.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %d: %v", ErrInvalidNetwork, i, err)
		}
		acts[i] = fn
	}
	return &FCN{
		layers: append([]LayerSpec(nil), layers...),
		acts:   acts,
		params: make([]float64, ParamCount(layers)),
	}, nil
}

func (n *FCN) Layers() []LayerSpec   { return append([]LayerSpec(nil), n.layers...) }
func (n *FCN) InputWidth() int       { return n.layers[0].Width }
func (n *FCN) OutputWidth() int      { return n.layers[len(n.layers)-1].Width }
func (n *FCN) ParamCount() int       { return len(n.params) }
func (n *FCN) Parameters() []float64 { return append([]float64(nil), n.params...) }

func (n *FCN) SetParameters(params []float64) error {
	if len(params) != len(n.params) {
		return fmt.Errorf("%w: %d parameters for a network of %d", ErrInvalidNetwork, len(params), len(n.params))
	}
	copy(n.params, params)
	return nil
}

// Randomize draws every parameter from N(0, std^2).
func (n *FCN) Randomize(rng *rand.Rand, std float64) {
	for i := range n.params {
		n.params[i] = rng.NormFloat64() * std
	}
}

func (n *FCN) Clone() *FCN {
	return &FCN{
		layers: n.Layers(),
		acts:   append([]ActivationFunc(nil), n.acts...),
		params: n.Parameters(),
	}
}

// Evaluate runs the network with its own parameters.
func (n *FCN) Evaluate(input []float64) ([]float64, error) {
	return n.EvaluateWith(input, n.params)
}

// EvaluateWith runs the network with params in place of the stored ones.
// The network itself is not modified.
func (n *FCN) EvaluateWith(input, params []float64) ([]float64, error) {
	if len(input) != n.InputWidth() {
		return nil, fmt.Errorf("%w: input width %d, want %d", ErrInvalidNetwork, len(input), n.InputWidth())
	}
	if len(params) != len(n.params) {
		return nil, fmt.Errorf("%w: %d parameters for a network of %d", ErrInvalidNetwork, len(params), len(n.params))
	}

	x := make([]float64, len(input))
	first := n.layers[0].Activation.Param
	for i, v := range input {
		x[i] = n.acts[0](v, first)
	}

	offset := 0
	for k := 1; k < len(n.layers); k++ {
		in, out := n.layers[k-1].Width, n.layers[k].Width
		weights := mat.NewDense(out, in, params[offset:offset+out*in])
		offset += out * in
		bias := params[offset : offset+out]
		offset += out

		var y mat.VecDense
		y.MulVec(weights, mat.NewVecDense(in, x))
		act, param := n.acts[k], n.layers[k].Activation.Param
		next := make([]float64, out)
		for j := range next {
			next[j] = act(y.AtVec(j)+bias[j], param)
		}
		x = next
	}
	return x, nil
}
