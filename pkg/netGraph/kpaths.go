package netGraph

// Bounded enumeration of simple paths. This is a diagnostic facility
// for inspecting path diversity ("N disjoint paths exist"); forwarding
// decisions only ever use ShortestPath.

// SimplePaths returns every simple path from src to dst with at most
// maxHops links, in lexicographic order. Returns nil when either
// endpoint is missing.
func (self *TopoGraph) SimplePaths(src, dst uint64, maxHops int) [][]uint64 {
	if !self.nodes[src] || !self.nodes[dst] {
		return nil
	}

	var paths [][]uint64
	onPath := map[uint64]bool{src: true}

	var walk func(curr uint64, path []uint64)
	walk = func(curr uint64, path []uint64) {
		if curr == dst {
			found := make([]uint64, len(path))
			copy(found, path)
			paths = append(paths, found)
			return
		}
		if len(path)-1 >= maxHops {
			return
		}

		for _, peer := range self.Neighbors(curr) {
			if onPath[peer] {
				continue
			}

			onPath[peer] = true
			walk(peer, append(path, peer))
			delete(onPath, peer)
		}
	}

	walk(src, []uint64{src})
	return paths
}
