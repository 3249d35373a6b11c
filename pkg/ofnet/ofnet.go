package ofnet

// This package implements the routing engine: one Controller instance
// owns a topology graph, a host location table and flow bookkeeping
// for its switch domain. All state is driven by events from the
// switch transport and consumed by a single goroutine, so two
// instances partitioning the switch set share nothing but their
// static domain/gateway configuration.

import (
	"github.com/contiv/ofroute/pkg/hostDb"
	"github.com/contiv/ofroute/pkg/netGraph"
	"github.com/contiv/ofroute/pkg/ofctrl"
)

// Event is the tagged union fed to the controller's event loop. One
// concrete type per event kind; the loop dispatches with an
// exhaustive type switch.
type Event interface {
	eventName() string
}

// Switch completed its control handshake
type SwitchConnectedEvent struct {
	Sw *ofctrl.OFSwitch
}

// Switch control session went away
type SwitchDisconnectedEvent struct {
	Dpid uint64
}

// Packet missed all flows and was punted to the controller
type PacketInEvent struct {
	Dpid uint64
	Pkt  *ofctrl.PacketIn
}

// Port status change on a switch
type PortStatusEvent struct {
	Dpid   uint64
	Status *ofctrl.PortStatus
}

// Discovery found an inter-switch link
type LinkAddEvent struct {
	Link *ofctrl.LinkUpdate
}

// Discovery lost an inter-switch link
type LinkDeleteEvent struct {
	Link *ofctrl.LinkUpdate
}

// Runs a closure inside the event loop. Used for state inspection.
type inspectEvent struct {
	fn   func()
	done chan bool
}

func (SwitchConnectedEvent) eventName() string    { return "switch-connected" }
func (SwitchDisconnectedEvent) eventName() string { return "switch-disconnected" }
func (PacketInEvent) eventName() string           { return "packet-in" }
func (PortStatusEvent) eventName() string         { return "port-status" }
func (LinkAddEvent) eventName() string            { return "link-add" }
func (LinkDeleteEvent) eventName() string         { return "link-delete" }
func (inspectEvent) eventName() string            { return "inspect" }

// Point-in-time controller state for inspection
type Status struct {
	Domain            string                          `json:"domain,omitempty"`
	ManagedSwitches   []uint64                        `json:"managedSwitches,omitempty"`
	ConnectedSwitches []uint64                        `json:"connectedSwitches"`
	GraphSwitches     []uint64                        `json:"graphSwitches"`
	LinkCount         int                             `json:"linkCount"`
	Connected         bool                            `json:"connected"`
	LearnedHosts      map[string]hostDb.HostLocation  `json:"learnedHosts"`
	RegisteredHosts   int                             `json:"registeredHosts"`
	PacketCount       uint64                          `json:"packetCount"`
	FlowCount         uint64                          `json:"flowCount"`
	TreeEdges         []netGraph.TreeEdge             `json:"treeEdges,omitempty"`
	BlockedPorts      map[uint64][]uint32             `json:"blockedPorts,omitempty"`
}

// Shortest path and alternates between two switches
type PathReport struct {
	Src        uint64     `json:"src"`
	Dst        uint64     `json:"dst"`
	Path       []uint64   `json:"path,omitempty"`
	Weight     int        `json:"weight"`
	Alternates [][]uint64 `json:"alternates,omitempty"`
}
