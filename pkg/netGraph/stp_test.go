package netGraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ring of n switches: port 3 toward the next switch, port 2 toward
// the previous one
func ringGraph(n uint64) *TopoGraph {
	graph := NewTopoGraph()
	for i := uint64(1); i <= n; i++ {
		next := i%n + 1
		graph.AddLink(i, 3, next, 2, 1)
	}

	return graph
}

// A cyclic topology of N switches yields a tree with exactly N-1
// edges and at least one blocked port
func TestSpanningTreeRing(t *testing.T) {
	const n = 5
	graph := ringGraph(n)

	tree := graph.RecomputeTree()

	assert.Equal(t, n-1, tree.EdgeCount(), "tree must have N-1 edges")
	assert.Equal(t, 1, tree.BlockedCount(), "one redundant link on a ring")
}

// The blocked port sits on the higher numbered switch of the
// redundant edge
func TestSpanningTreeBlockedSide(t *testing.T) {
	graph := diamondGraph()

	tree := graph.RecomputeTree()
	require.Equal(t, 3, tree.EdgeCount())
	require.Equal(t, 1, tree.BlockedCount())

	// Edges are chosen in canonical order, so 3-4 is the redundant
	// one; its block lands on switch 4 (port toward 3)
	port, _ := graph.PortTo(4, 3)
	assert.True(t, tree.IsBlocked(4, port))
	assert.False(t, tree.IsBlocked(3, port))
}

// A flood wave constrained to tree ports visits every switch exactly
// once
func TestSpanningTreeFloodWave(t *testing.T) {
	const n = 6
	graph := ringGraph(n)
	tree := graph.RecomputeTree()

	visits := make(map[uint64]int)

	// Simulate the wave: start anywhere, propagate over links whose
	// ports are open on both sides
	var wave func(curr, from uint64)
	wave = func(curr, from uint64) {
		visits[curr]++
		if visits[curr] > 1 {
			return
		}

		for _, peer := range graph.Neighbors(curr) {
			if peer == from {
				continue
			}

			out, _ := graph.PortTo(curr, peer)
			in, _ := graph.PortTo(peer, curr)
			if tree.IsBlocked(curr, out) || tree.IsBlocked(peer, in) {
				continue
			}

			wave(peer, curr)
		}
	}

	wave(1, 0)

	require.Len(t, visits, n, "wave must reach every switch")
	for dpid, count := range visits {
		assert.Equalf(t, 1, count, "switch %d visited %d times", dpid, count)
	}
}

// Tree recomputation tracks topology mutation
func TestSpanningTreeAfterFailure(t *testing.T) {
	graph := ringGraph(4)

	tree := graph.RecomputeTree()
	require.Equal(t, 3, tree.EdgeCount())
	require.Equal(t, 1, tree.BlockedCount())

	// Losing a tree edge turns the blocked link back on
	graph.RemoveLink(1, 2)
	tree = graph.RecomputeTree()

	assert.Equal(t, 3, tree.EdgeCount(), "chain of 4 still spans with 3 edges")
	assert.Equal(t, 0, tree.BlockedCount(), "no redundancy left to block")
}

// A partitioned graph yields a spanning forest
func TestSpanningForest(t *testing.T) {
	graph := NewTopoGraph()
	graph.AddLink(1, 2, 2, 2, 1)
	graph.AddLink(3, 2, 4, 2, 1)

	tree := graph.RecomputeTree()
	assert.Equal(t, 2, tree.EdgeCount())
	assert.Equal(t, 0, tree.BlockedCount())
}
