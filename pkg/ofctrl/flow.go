package ofctrl

// Flow and packet-out command types sent to the switch transport

import (
	"net"
)

// Subset of match fields the engine programs. Nil pointer fields are
// left unmatched.
type FlowMatch struct {
	Priority  uint16            // Flow priority
	InputPort uint32            // Ingress port, 0 means any
	MacSa     *net.HardwareAddr // Source mac
	MacDa     *net.HardwareAddr // Destination mac
	Ethertype uint16            // Ethertype, 0 means any
}

// Flow entry to be installed on a switch
type FlowMod struct {
	Match       FlowMatch // Fields to match
	OutPort     uint32    // Output action port, may be P_CONTROLLER or P_FLOOD
	IdleTimeout uint16    // Seconds idle before eviction, 0 means never
	HardTimeout uint16    // Absolute lifetime in seconds, 0 means never
}

// Packet out command. Either BufferId refers to a frame buffered on
// the switch, or Data carries the frame.
type PacketOut struct {
	InPort   uint32    // Ingress port the frame arrived on
	BufferId uint32    // Switch buffer ref, NO_BUFFER if Data is set
	Data     *Ethernet // Frame data when unbuffered
	OutPorts []uint32  // Ports to emit the frame on
}

// Command sink implemented by the wire driver. All sends are
// fire-and-forget.
type ConnSink interface {
	// Install a flow entry on a switch
	InstallFlow(dpid uint64, flow *FlowMod)

	// Delete every flow at or above minPriority on a switch
	DeleteFlows(dpid uint64, minPriority uint16)

	// Emit a packet on a switch
	SendPacket(dpid uint64, pkt *PacketOut)
}
