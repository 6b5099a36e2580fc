package layers

import (
	"github.com/chewxy/math32"
	"github.com/tsawler/go-relgcn/tensor"
)

// L1L2 adds l1*sum(|w|) + l2*sum(w^2) to the training loss for the
// parameters it is attached to.
type L1L2 struct {
	L1 float32 `json:"l1"`
	L2 float32 `json:"l2"`
}

func L1(v float32) *L1L2 { return &L1L2{L1: v} }

func L2(v float32) *L1L2 { return &L1L2{L2: v} }

// Penalty returns the regularization term for t. A nil regularizer costs nothing.
func (r *L1L2) Penalty(t *tensor.Tensor) float32 {
	if r == nil || t == nil {
		return 0
	}
	data, err := t.GetFloat32Data()
	if err != nil {
		return 0
	}

	var l1, l2 float32
	for _, v := range data {
		l1 += math32.Abs(v)
		l2 += v * v
	}
	return r.L1*l1 + r.L2*l2
}
