package message

import (
	"maps"
	"slices"
)

// Tensor is a dense numeric tensor stored in row-major order.
type Tensor struct {
	Shape []int     `cbor:"shape" json:"shape"`
	Data  []float64 `cbor:"data"  json:"data"`
}

// Snapshot maps parameter names to tensors. The coordinator and the peers
// never look inside a snapshot except to merge it element-wise.
type Snapshot map[string]Tensor

// Clone returns a deep copy so the receiver keeps exclusive ownership.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}

	out := make(Snapshot, len(s))
	for name, t := range s {
		out[name] = Tensor{
			Shape: slices.Clone(t.Shape),
			Data:  slices.Clone(t.Data),
		}
	}

	return out
}

// ZeroLike returns a snapshot with the same names and shapes and all
// values set to zero.
func (s Snapshot) ZeroLike() Snapshot {
	out := make(Snapshot, len(s))
	for name, t := range s {
		out[name] = Tensor{
			Shape: slices.Clone(t.Shape),
			Data:  make([]float64, len(t.Data)),
		}
	}

	return out
}

// Names returns the parameter names in sorted order.
func (s Snapshot) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// Size is the total number of scalar parameters.
func (s Snapshot) Size() int {
	n := 0
	for _, t := range s {
		n += len(t.Data)
	}

	return n
}

// Uniform builds a snapshot where every element of every tensor equals v.
func Uniform(shapes map[string][]int, v float64) Snapshot {
	out := make(Snapshot, len(shapes))
	for name, shape := range shapes {
		n := 1
		for _, d := range shape {
			n *= d
		}
		data := make([]float64, n)
		for i := range data {
			data[i] = v
		}
		out[name] = Tensor{Shape: slices.Clone(shape), Data: data}
	}

	return out
}
