package ofctrl

// Per switch control session handle

import (
	"github.com/bits-and-blooms/bitset"
	log "github.com/sirupsen/logrus"
)

// OFSwitch is the handle for one live control session. Presence of a
// session is distinct from presence in the topology graph; a switch
// can stay a graph node through a reconnect window.
type OFSwitch struct {
	dpid     uint64         // Datapath id of the switch
	conn     ConnSink       // Command sink for this switch
	portSet  *bitset.BitSet // Active port numbers
	maxPorts uint           // Sizing hint for the port set
}

// Create a new switch handle with its initial active ports
func NewOFSwitch(dpid uint64, ports []uint32, conn ConnSink) *OFSwitch {
	sw := new(OFSwitch)

	sw.dpid = dpid
	sw.conn = conn
	sw.maxPorts = 64
	sw.portSet = bitset.New(sw.maxPorts)

	for _, portNo := range ports {
		sw.portSet.Set(uint(portNo))
	}

	return sw
}

// Returns the dpid of the switch
func (self *OFSwitch) DPID() uint64 {
	return self.dpid
}

// Mark a port active
func (self *OFSwitch) AddPort(portNo uint32) {
	self.portSet.Set(uint(portNo))
}

// Mark a port gone
func (self *OFSwitch) RemovePort(portNo uint32) {
	self.portSet.Clear(uint(portNo))
}

// Check if a port is currently active
func (self *OFSwitch) HasPort(portNo uint32) bool {
	return self.portSet.Test(uint(portNo))
}

// Returns all active ports in ascending order
func (self *OFSwitch) Ports() []uint32 {
	ports := make([]uint32, 0, self.portSet.Count())
	for i, ok := self.portSet.NextSet(0); ok; i, ok = self.portSet.NextSet(i + 1) {
		ports = append(ports, uint32(i))
	}

	return ports
}

// Returns the ports a flood should go out on. The ingress port is
// always excluded; blocked reports ports disabled by loop prevention.
func (self *OFSwitch) FloodPorts(inPort uint32, blocked func(portNo uint32) bool) []uint32 {
	outPorts := make([]uint32, 0, self.portSet.Count())

	for _, portNo := range self.Ports() {
		if portNo == inPort || portNo >= P_MAX {
			continue
		}
		if blocked != nil && blocked(portNo) {
			continue
		}
		outPorts = append(outPorts, portNo)
	}

	return outPorts
}

// Install a flow entry on the switch
func (self *OFSwitch) InstallFlow(flow *FlowMod) {
	log.Debugf("Switch %d: installing flow: %+v", self.dpid, flow)
	self.conn.InstallFlow(self.dpid, flow)
}

// Delete all flows at or above a priority
func (self *OFSwitch) DeleteFlows(minPriority uint16) {
	log.Debugf("Switch %d: deleting flows above priority %d", self.dpid, minPriority)
	self.conn.DeleteFlows(self.dpid, minPriority)
}

// Send a packet out on the switch
func (self *OFSwitch) SendPacket(pkt *PacketOut) {
	self.conn.SendPacket(self.dpid, pkt)
}
