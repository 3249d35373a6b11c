package netGraph

// Weighted shortest path computation over the topology graph

import (
	"container/heap"
)

// Entry in the dijkstra priority queue
type pqItem struct {
	dpid uint64
	dist int
}

type pqHeap []pqItem

func (h pqHeap) Len() int { return len(h) }
func (h pqHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].dpid < h[j].dpid
}
func (h pqHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pqHeap) Push(x interface{}) { *h = append(*h, x.(pqItem)) }
func (h *pqHeap) Pop() interface{} {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}

// ShortestPath returns the ordered switch sequence from src to dst
// inclusive, or nil when no path exists or either endpoint is not in
// the graph. src == dst yields a single element path. Among equal
// cost paths the lexicographically smallest switch sequence wins, so
// results are reproducible across runs.
func (self *TopoGraph) ShortestPath(src, dst uint64) []uint64 {
	if !self.nodes[src] || !self.nodes[dst] {
		return nil
	}
	if src == dst {
		return []uint64{src}
	}

	dist := make(map[uint64]int)
	pathTo := make(map[uint64][]uint64)

	dist[src] = 0
	pathTo[src] = []uint64{src}

	pq := &pqHeap{{dpid: src, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)

		curr := item.dpid
		if item.dist > dist[curr] {
			// Stale queue entry
			continue
		}

		for _, peer := range self.Neighbors(curr) {
			newDist := dist[curr] + self.adjacency[curr][peer].Weight

			oldDist, seen := dist[peer]
			candidate := appendPath(pathTo[curr], peer)

			if !seen || newDist < oldDist ||
				(newDist == oldDist && lexLess(candidate, pathTo[peer])) {
				dist[peer] = newDist
				pathTo[peer] = candidate
				heap.Push(pq, pqItem{dpid: peer, dist: newDist})
			}
		}
	}

	return pathTo[dst]
}

// ShortestPathWeight returns the total weight of the shortest path,
// or -1 when no path exists
func (self *TopoGraph) ShortestPathWeight(src, dst uint64) int {
	path := self.ShortestPath(src, dst)
	if path == nil {
		return -1
	}

	return self.PathWeight(path)
}

// PathWeight sums the link weights along a path. Returns -1 if any
// consecutive pair has no live link.
func (self *TopoGraph) PathWeight(path []uint64) int {
	total := 0
	for i := 0; i+1 < len(path); i++ {
		weight, ok := self.LinkWeight(path[i], path[i+1])
		if !ok {
			return -1
		}
		total += weight
	}

	return total
}

// Copy-on-extend so stored paths never alias each other
func appendPath(path []uint64, next uint64) []uint64 {
	candidate := make([]uint64, len(path), len(path)+1)
	copy(candidate, path)
	return append(candidate, next)
}

// Lexicographic comparison of switch sequences
func lexLess(a, b []uint64) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}

	return len(a) < len(b)
}
