package netGraph

// Topology store: authoritative switch/link graph with bidirectional
// port mapping. Mutated only by the failure detector and discovery
// handlers; a single goroutine owns each instance so no locking here.

import (
	"sort"

	log "github.com/sirupsen/logrus"
)

// Attributes of one direction of a link
type LinkAttr struct {
	LocalPort uint32 // Port on the local switch toward the peer
	Weight    int    // Link weight, uniform 1 unless configured
}

// TopoGraph holds switches as nodes and links as undirected edges.
// Invariant: adjacency[a][b] and adjacency[b][a] are both present or
// both absent.
type TopoGraph struct {
	nodes     map[uint64]bool                 // Switch presence in the graph
	adjacency map[uint64]map[uint64]*LinkAttr // dpid -> peer dpid -> attrs
}

// Create a new empty topology graph
func NewTopoGraph() *TopoGraph {
	graph := new(TopoGraph)

	graph.nodes = make(map[uint64]bool)
	graph.adjacency = make(map[uint64]map[uint64]*LinkAttr)

	return graph
}

// Add a switch node. No-op if it already exists
func (self *TopoGraph) AddSwitch(dpid uint64) {
	if self.nodes[dpid] {
		return
	}

	self.nodes[dpid] = true
	self.adjacency[dpid] = make(map[uint64]*LinkAttr)
}

// Remove a switch and all links incident on it
func (self *TopoGraph) RemoveSwitch(dpid uint64) {
	if !self.nodes[dpid] {
		return
	}

	for peer := range self.adjacency[dpid] {
		delete(self.adjacency[peer], dpid)
	}

	delete(self.adjacency, dpid)
	delete(self.nodes, dpid)
}

// Check if a switch is present in the graph
func (self *TopoGraph) HasSwitch(dpid uint64) bool {
	return self.nodes[dpid]
}

// Add an undirected link. Idempotent: if the edge already exists this
// is a no-op and the existing port map entries are kept. Both
// endpoints are added to the graph if missing.
func (self *TopoGraph) AddLink(a uint64, portA uint32, b uint64, portB uint32, weight int) {
	if a == b {
		log.Errorf("Ignoring self link on switch %d", a)
		return
	}
	if weight <= 0 {
		weight = 1
	}

	self.AddSwitch(a)
	self.AddSwitch(b)

	if self.adjacency[a][b] != nil {
		return
	}

	self.adjacency[a][b] = &LinkAttr{LocalPort: portA, Weight: weight}
	self.adjacency[b][a] = &LinkAttr{LocalPort: portB, Weight: weight}

	log.Infof("Link added: %d:%d <-> %d:%d (weight %d)", a, portA, b, portB, weight)
}

// Remove an undirected link and both port map entries. No-op if the
// edge is absent.
func (self *TopoGraph) RemoveLink(a, b uint64) {
	if self.adjacency[a][b] == nil {
		return
	}

	delete(self.adjacency[a], b)
	delete(self.adjacency[b], a)

	log.Infof("Link removed: %d <-> %d", a, b)
}

// Check if two switches are directly linked
func (self *TopoGraph) HasLink(a, b uint64) bool {
	return self.adjacency[a][b] != nil
}

// Returns the local port on a toward its direct neighbor b
func (self *TopoGraph) PortTo(a, b uint64) (uint32, bool) {
	attr := self.adjacency[a][b]
	if attr == nil {
		return 0, false
	}

	return attr.LocalPort, true
}

// Returns the weight of the link between two direct neighbors
func (self *TopoGraph) LinkWeight(a, b uint64) (int, bool) {
	attr := self.adjacency[a][b]
	if attr == nil {
		return 0, false
	}

	return attr.Weight, true
}

// Resolve which neighbor sits on the far side of a local port.
// Used to map a failed port back to the link it carried.
func (self *TopoGraph) PeerByPort(dpid uint64, portNo uint32) (uint64, bool) {
	for _, peer := range self.Neighbors(dpid) {
		if self.adjacency[dpid][peer].LocalPort == portNo {
			return peer, true
		}
	}

	return 0, false
}

// Returns the neighbors of a switch in ascending dpid order
func (self *TopoGraph) Neighbors(dpid uint64) []uint64 {
	peers := make([]uint64, 0, len(self.adjacency[dpid]))
	for peer := range self.adjacency[dpid] {
		peers = append(peers, peer)
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// Returns the inter-switch ports of a switch
func (self *TopoGraph) UplinkPorts(dpid uint64) []uint32 {
	ports := make([]uint32, 0, len(self.adjacency[dpid]))
	for _, peer := range self.Neighbors(dpid) {
		ports = append(ports, self.adjacency[dpid][peer].LocalPort)
	}

	return ports
}

// Returns all switches in ascending dpid order
func (self *TopoGraph) Switches() []uint64 {
	switches := make([]uint64, 0, len(self.nodes))
	for dpid := range self.nodes {
		switches = append(switches, dpid)
	}

	sort.Slice(switches, func(i, j int) bool { return switches[i] < switches[j] })
	return switches
}

// Number of switches in the graph
func (self *TopoGraph) SwitchCount() int {
	return len(self.nodes)
}

// Number of undirected links in the graph
func (self *TopoGraph) LinkCount() int {
	count := 0
	for _, peers := range self.adjacency {
		count += len(peers)
	}

	return count / 2
}

// Check if any path exists between two switches
func (self *TopoGraph) HasPath(a, b uint64) bool {
	if !self.nodes[a] || !self.nodes[b] {
		return false
	}
	if a == b {
		return true
	}

	visited := map[uint64]bool{a: true}
	queue := []uint64{a}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for peer := range self.adjacency[curr] {
			if peer == b {
				return true
			}
			if !visited[peer] {
				visited[peer] = true
				queue = append(queue, peer)
			}
		}
	}

	return false
}

// Check if the whole graph is one connected component. Used only for
// partition diagnostics after a link failure.
func (self *TopoGraph) Connected() bool {
	if len(self.nodes) <= 1 {
		return true
	}

	switches := self.Switches()
	for _, dpid := range switches[1:] {
		if !self.HasPath(switches[0], dpid) {
			return false
		}
	}

	return true
}
