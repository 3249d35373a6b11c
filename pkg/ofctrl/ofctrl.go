package ofctrl

// This package defines the boundary between the routing engine and the
// wire-protocol driver that talks to the switches. The driver delivers
// events through AppInterface and accepts commands through ConnSink.
// Command sends are fire-and-forget; nothing here blocks on a switch
// acknowledgment.

// Reserved output port numbers, mirroring openflow 1.3 values
const (
	P_MAX        uint32 = 0xffffff00 // Maximum valid physical port
	P_CONTROLLER uint32 = 0xfffffffd // Send to controller
	P_FLOOD      uint32 = 0xfffffffb // Flood on all ports except ingress
	P_LOCAL      uint32 = 0xfffffffe // Local switch port
	P_ANY        uint32 = 0xffffffff // Wildcard port, used in deletes
)

// Flow priorities used by the engine
const FLOW_MISS_PRIORITY = 0   // Table miss entry
const FLOW_MATCH_PRIORITY = 10 // Learned path entries

// Port status reason codes
type PortReason int

const (
	PR_ADD PortReason = iota // Port was added
	PR_DELETE                // Port was removed
	PR_MODIFY                // Port state changed
)

// Port status event from the switch transport
type PortStatus struct {
	PortNo   uint32     // Port that changed
	Reason   PortReason // Add/delete/modify
	LinkDown bool       // Link state on modify
}

// Link update event from the dynamic discovery collaborator
type LinkUpdate struct {
	SrcDpid uint64 // Switch on one side
	DstDpid uint64 // Switch on the other side
	SrcPort uint32 // Port on SrcDpid
	DstPort uint32 // Port on DstDpid
}

// Packet in event. Delivered when a packet matched no installed flow
type PacketIn struct {
	InPort   uint32   // Ingress port
	BufferId uint32   // Switch side buffer ref, NO_BUFFER if unset
	Data     Ethernet // Decoded frame
}

// Buffer id meaning the frame data travels with the packet-out
const NO_BUFFER uint32 = 0xffffffff

// Interface implemented by the routing engine. The transport driver
// calls these as events arrive from switches.
type AppInterface interface {
	// Switch completed its control session handshake
	SwitchConnected(sw *OFSwitch)

	// Switch control session went away
	SwitchDisconnected(dpid uint64)

	// A packet missed all flow entries and was punted to us
	PacketRcvd(dpid uint64, pkt *PacketIn)

	// Port status changed on a switch
	PortStatus(dpid uint64, status *PortStatus)

	// Discovery found a new inter-switch link
	LinkAdd(link *LinkUpdate)

	// Discovery lost an inter-switch link
	LinkDelete(link *LinkUpdate)
}
