package cfrstore

import (
	"fmt"

	"github.com/timpalpant/cfrstore/internal/f32"
)

// MaxActions is the largest number of actions a NodeRecord may hold.
// The action count is stored in a single byte on disk.
const MaxActions = 255

// NodeRecord holds the accumulated regrets and strategy weights for one
// decision point (InfoSet) of the game tree.
//
// All four slices have length NumActions(). CurrentStrategy is always the
// regret-matching normalization of RegretSum and is not persisted; it is
// recomputed whenever a record is decoded.
//
// Records are stored by pointer. Once a record has been handed to a Store
// it must not be modified in place: Clone it, update the copy and Put the
// copy back.
type NodeRecord struct {
	RegretSum       []float32
	CurrentStrategy []float32
	StrategySum     []float32
	AverageStrategy []float32
}

// NewNodeRecord returns a record for a node with the given number of actions,
// with zero accumulated regret and a uniform strategy.
func NewNodeRecord(nActions int) *NodeRecord {
	if nActions < 1 || nActions > MaxActions {
		panic(fmt.Errorf("invalid number of actions: %d", nActions))
	}

	return &NodeRecord{
		RegretSum:       make([]float32, nActions),
		CurrentStrategy: uniformDist(nActions),
		StrategySum:     make([]float32, nActions),
		AverageStrategy: uniformDist(nActions),
	}
}

// NumActions returns the number of actions at this node.
func (r *NodeRecord) NumActions() int {
	return len(r.RegretSum)
}

// AddRegret adds the given instantaneous regrets to the accumulated regret.
// CurrentStrategy is not updated until UpdateStrategy is called.
func (r *NodeRecord) AddRegret(instantaneousRegrets []float32) {
	f32.Add(r.RegretSum, instantaneousRegrets)
}

// AddStrategyWeight accumulates the current strategy, weighted by w,
// into the strategy sum.
func (r *NodeRecord) AddStrategyWeight(w float32) {
	f32.AxpyUnitary(w, r.CurrentStrategy, r.StrategySum)
}

// UpdateStrategy recomputes CurrentStrategy from RegretSum and
// AverageStrategy from StrategySum.
func (r *NodeRecord) UpdateStrategy() {
	regretMatching(r.CurrentStrategy, r.RegretSum)
	f32.Normalize(r.AverageStrategy, r.StrategySum)
}

// Clone returns a deep copy of the record.
func (r *NodeRecord) Clone() *NodeRecord {
	return &NodeRecord{
		RegretSum:       append([]float32(nil), r.RegretSum...),
		CurrentStrategy: append([]float32(nil), r.CurrentStrategy...),
		StrategySum:     append([]float32(nil), r.StrategySum...),
		AverageStrategy: append([]float32(nil), r.AverageStrategy...),
	}
}

func (r *NodeRecord) valid() bool {
	n := len(r.RegretSum)
	return n >= 1 && n <= MaxActions &&
		len(r.StrategySum) == n &&
		len(r.AverageStrategy) == n
}

// regretMatching sets dst to the positive part of regretSum, normalized.
// If no action has positive regret the uniform distribution is used.
func regretMatching(dst, regretSum []float32) {
	copy(dst, regretSum)
	f32.ClampNegative(dst)
	f32.Normalize(dst, dst)
}

func uniformDist(n int) []float32 {
	result := make([]float32, n)
	f32.Fill(1.0/float32(n), result)
	return result
}
