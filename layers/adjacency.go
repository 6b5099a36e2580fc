package layers

import (
	"fmt"

	"github.com/tsawler/go-relgcn/tensor"
)

// NumAdjacencyMatrices returns how many relation matrices a layer operates
// over once the structural relations are added to numRelations raw ones.
// The order of the steps fixes the relation index of every matrix:
// raw relations, then the consecutive link, then the transposes of all of
// those, then the self link.
func NumAdjacencyMatrices(numRelations int, selfLinks, consecutiveLinks, backwardLinks bool) int {
	n := numRelations
	if consecutiveLinks {
		n++
	}
	if backwardLinks {
		n *= 2
	}
	if selfLinks {
		n++
	}
	return n
}

// ExpandAdjacency derives the full relation list for one forward call.
// The batch size of the synthetic relations follows features, so the
// expansion also works for a layer without raw relations.
//
// The consecutive link is the identity with its rows rolled down by one:
// row i has its single 1 in column i-1, and row 0 wraps to column n-1.
func (l *RelationalGraphConv) ExpandAdjacency(features *tensor.Tensor, adjacency []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if features == nil || len(features.Shape) != 3 {
		return nil, fmt.Errorf("%w: features must be (batch, nodes, features)", ErrShape)
	}
	numNodes := features.Shape[1]

	expanded := make([]*tensor.Tensor, 0, NumAdjacencyMatrices(len(adjacency), l.selfLinks, l.consecutiveLinks, l.backwardLinks))
	expanded = append(expanded, adjacency...)

	var eye *tensor.Tensor
	if l.consecutiveLinks || l.selfLinks {
		var err error
		if eye, err = tensor.EyeLike(features, numNodes); err != nil {
			return nil, fmt.Errorf("failed to build identity relation: %w", err)
		}
	}

	if l.consecutiveLinks {
		shifted, err := tensor.Roll(eye, 1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to build consecutive relation: %w", err)
		}
		expanded = append(expanded, shifted)
	}

	if l.backwardLinks {
		forward := len(expanded)
		for i := 0; i < forward; i++ {
			transposed, err := tensor.TransposeLast(expanded[i])
			if err != nil {
				return nil, fmt.Errorf("failed to transpose relation %d: %w", i, err)
			}
			expanded = append(expanded, transposed)
		}
	}

	if l.selfLinks {
		expanded = append(expanded, eye)
	}

	return expanded, nil
}
