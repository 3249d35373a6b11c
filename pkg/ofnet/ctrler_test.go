package ofnet

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contiv/ofroute/pkg/ofctrl"
	"github.com/contiv/ofroute/pkg/topoConf"
)

// Recording command sink standing in for the wire driver
type fakeConn struct {
	mutex   sync.Mutex
	flows   []flowRecord
	deletes []deleteRecord
	packets []packetRecord
}

type flowRecord struct {
	dpid uint64
	flow ofctrl.FlowMod
}

type deleteRecord struct {
	dpid        uint64
	minPriority uint16
}

type packetRecord struct {
	dpid uint64
	pkt  ofctrl.PacketOut
}

func (self *fakeConn) InstallFlow(dpid uint64, flow *ofctrl.FlowMod) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.flows = append(self.flows, flowRecord{dpid: dpid, flow: *flow})
}

func (self *fakeConn) DeleteFlows(dpid uint64, minPriority uint16) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.deletes = append(self.deletes, deleteRecord{dpid: dpid, minPriority: minPriority})
}

func (self *fakeConn) SendPacket(dpid uint64, pkt *ofctrl.PacketOut) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.packets = append(self.packets, packetRecord{dpid: dpid, pkt: *pkt})
}

func (self *fakeConn) flowsOn(dpid uint64) []flowRecord {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	var out []flowRecord
	for _, rec := range self.flows {
		if rec.dpid == dpid {
			out = append(out, rec)
		}
	}
	return out
}

func (self *fakeConn) deletesOn(dpid uint64) []deleteRecord {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	var out []deleteRecord
	for _, rec := range self.deletes {
		if rec.dpid == dpid {
			out = append(out, rec)
		}
	}
	return out
}

func (self *fakeConn) lastPacket(t *testing.T) packetRecord {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	require.NotEmpty(t, self.packets, "no packets sent")
	return self.packets[len(self.packets)-1]
}

func (self *fakeConn) reset() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.flows = nil
	self.deletes = nil
	self.packets = nil
}

// Diamond topology: s1 - s2 - s4 and s1 - s3 - s4, hosts on port 1
const diamondConfig = `
switches: [1, 2, 3, 4]
links:
  - {switchA: 1, portA: 2, switchB: 2, portB: 2}
  - {switchA: 1, portA: 3, switchB: 3, portB: 2}
  - {switchA: 2, portA: 3, switchB: 4, portB: 2}
  - {switchA: 3, portA: 3, switchB: 4, portB: 3}
`

var (
	h1Mac = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	h2Mac = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x02}
	h4Mac = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x04}
	bcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

func newTestController(t *testing.T, yaml string) (*Controller, *fakeConn) {
	t.Helper()

	cfg, err := topoConf.ParseConfig([]byte(yaml))
	require.NoError(t, err)

	ctrler, err := NewController(cfg)
	require.NoError(t, err)
	t.Cleanup(ctrler.Stop)

	return ctrler, new(fakeConn)
}

func connectSwitch(ctrler *Controller, conn *fakeConn, dpid uint64, ports []uint32) {
	ctrler.SwitchConnected(ofctrl.NewOFSwitch(dpid, ports, conn))
	ctrler.Barrier()
}

func connectDiamond(ctrler *Controller, conn *fakeConn) {
	connectSwitch(ctrler, conn, 1, []uint32{1, 2, 3})
	connectSwitch(ctrler, conn, 2, []uint32{1, 2, 3})
	connectSwitch(ctrler, conn, 3, []uint32{1, 2, 3})
	connectSwitch(ctrler, conn, 4, []uint32{1, 2, 3})
}

func sendPacketIn(ctrler *Controller, dpid uint64, inPort uint32, src, dst net.HardwareAddr) {
	ctrler.PacketRcvd(dpid, &ofctrl.PacketIn{
		InPort:   inPort,
		BufferId: ofctrl.NO_BUFFER,
		Data: ofctrl.Ethernet{
			SrcMac:    src,
			DstMac:    dst,
			Ethertype: ofctrl.ETH_TYPE_IP,
		},
	})
	ctrler.Barrier()
}

// Connecting a switch wipes leftover flows and installs the table miss
func TestSwitchConnectInstallsMiss(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig)

	connectSwitch(ctrler, conn, 1, []uint32{1, 2, 3})

	deletes := conn.deletesOn(1)
	require.Len(t, deletes, 1)
	assert.Equal(t, uint16(ofctrl.FLOW_MISS_PRIORITY), deletes[0].minPriority)

	flows := conn.flowsOn(1)
	require.Len(t, flows, 1)
	assert.Equal(t, uint16(ofctrl.FLOW_MISS_PRIORITY), flows[0].flow.Match.Priority)
	assert.Equal(t, uint32(ofctrl.P_CONTROLLER), flows[0].flow.OutPort)

	status := ctrler.Status()
	assert.Equal(t, []uint64{1}, status.ConnectedSwitches)
}

// Unknown unicast destinations flood out every port but the ingress
func TestUnknownDestinationFloods(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig)
	connectDiamond(ctrler, conn)
	conn.reset()

	sendPacketIn(ctrler, 1, 1, h1Mac, h4Mac)

	out := conn.lastPacket(t)
	assert.Equal(t, uint64(1), out.dpid)
	assert.Equal(t, []uint32{2, 3}, out.pkt.OutPorts)
	assert.Empty(t, conn.flowsOn(1), "flood must not program flows")

	// Source got learned along the way
	status := ctrler.Status()
	loc, ok := status.LearnedHosts[h1Mac.String()]
	require.True(t, ok)
	assert.Equal(t, uint64(1), loc.Dpid)
	assert.Equal(t, uint32(1), loc.Port)
}

// Broadcast floods without a destination lookup
func TestBroadcastFloods(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig)
	connectDiamond(ctrler, conn)
	conn.reset()

	sendPacketIn(ctrler, 1, 1, h1Mac, bcast)

	out := conn.lastPacket(t)
	assert.Equal(t, []uint32{2, 3}, out.pkt.OutPorts)
	assert.Empty(t, conn.flowsOn(1))
}

// LLDP and IPv6 frames are dropped before any learning happens
func TestSkippedEthertypes(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig)
	connectDiamond(ctrler, conn)
	conn.reset()

	for _, ethertype := range []uint16{ofctrl.ETH_TYPE_LLDP, ofctrl.ETH_TYPE_IPV6} {
		ctrler.PacketRcvd(1, &ofctrl.PacketIn{
			InPort:   1,
			BufferId: ofctrl.NO_BUFFER,
			Data:     ofctrl.Ethernet{SrcMac: h1Mac, DstMac: bcast, Ethertype: ethertype},
		})
	}
	ctrler.Barrier()

	status := ctrler.Status()
	assert.Empty(t, status.LearnedHosts)
	assert.Zero(t, status.PacketCount)

	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	assert.Empty(t, conn.packets)
}

// Destination on the ingress switch gets a direct flow and output
func TestSameSwitchDelivery(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig)
	connectSwitch(ctrler, conn, 1, []uint32{1, 2, 3, 10})
	conn.reset()

	// h1 on port 1 announces itself, then h2 on port 10 talks to it
	sendPacketIn(ctrler, 1, 1, h1Mac, bcast)
	sendPacketIn(ctrler, 1, 10, h2Mac, h1Mac)

	flows := conn.flowsOn(1)
	require.Len(t, flows, 1)
	flow := flows[0].flow
	assert.Equal(t, uint16(ofctrl.FLOW_MATCH_PRIORITY), flow.Match.Priority)
	assert.Equal(t, h2Mac, *flow.Match.MacSa)
	assert.Equal(t, h1Mac, *flow.Match.MacDa)
	assert.Equal(t, uint32(1), flow.OutPort)
	assert.Equal(t, uint16(10), flow.IdleTimeout)
	assert.Equal(t, uint16(20), flow.HardTimeout)

	out := conn.lastPacket(t)
	assert.Equal(t, []uint32{1}, out.pkt.OutPorts)
}

// Remote destination programs the whole shortest path and forwards on
// the first hop. The 1-2-4 and 1-3-4 paths tie; the lexicographically
// smaller one wins.
func TestCrossSwitchPath(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig)
	connectDiamond(ctrler, conn)

	sendPacketIn(ctrler, 4, 1, h4Mac, bcast)
	conn.reset()

	sendPacketIn(ctrler, 1, 1, h1Mac, h4Mac)

	// First hop: s1 out toward s2
	s1Flows := conn.flowsOn(1)
	require.Len(t, s1Flows, 1)
	assert.Equal(t, uint32(2), s1Flows[0].flow.OutPort)
	assert.Equal(t, h1Mac, *s1Flows[0].flow.Match.MacSa)
	assert.Equal(t, h4Mac, *s1Flows[0].flow.Match.MacDa)

	// Intermediate hop gets forward and reverse rules
	s2Flows := conn.flowsOn(2)
	require.Len(t, s2Flows, 2)
	assert.Equal(t, uint32(3), s2Flows[0].flow.OutPort)
	assert.Equal(t, h4Mac, *s2Flows[1].flow.Match.MacSa)
	assert.Equal(t, h1Mac, *s2Flows[1].flow.Match.MacDa)
	assert.Equal(t, uint32(2), s2Flows[1].flow.OutPort)

	// Last hop outputs on the destination's host port
	s4Flows := conn.flowsOn(4)
	require.Len(t, s4Flows, 1)
	assert.Equal(t, uint32(1), s4Flows[0].flow.OutPort)

	// The switch not on the path is untouched
	assert.Empty(t, conn.flowsOn(3))

	out := conn.lastPacket(t)
	assert.Equal(t, uint64(1), out.dpid)
	assert.Equal(t, []uint32{2}, out.pkt.OutPorts)

	status := ctrler.Status()
	assert.Equal(t, uint64(4), status.FlowCount)
}

// Losing a link flushes dynamic flows and subsequent traffic takes the
// surviving path
func TestLinkFailureReroute(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig)
	connectDiamond(ctrler, conn)

	sendPacketIn(ctrler, 4, 1, h4Mac, bcast)
	sendPacketIn(ctrler, 1, 1, h1Mac, h4Mac)
	conn.reset()

	// s1 loses the port facing s2
	ctrler.PortStatus(1, &ofctrl.PortStatus{PortNo: 2, Reason: ofctrl.PR_DELETE})
	ctrler.Barrier()

	// Wide flush: every connected switch loses its dynamic flows but
	// keeps the table miss
	for _, dpid := range []uint64{1, 2, 3, 4} {
		deletes := conn.deletesOn(dpid)
		require.Len(t, deletes, 1, "switch %d", dpid)
		assert.Equal(t, uint16(ofctrl.FLOW_MISS_PRIORITY+1), deletes[0].minPriority)
	}

	conn.reset()
	sendPacketIn(ctrler, 1, 1, h1Mac, h4Mac)

	s1Flows := conn.flowsOn(1)
	require.Len(t, s1Flows, 1)
	assert.Equal(t, uint32(3), s1Flows[0].flow.OutPort, "reroute via s3")

	out := conn.lastPacket(t)
	assert.Equal(t, []uint32{3}, out.pkt.OutPorts)

	// Recovery restores the original port mapping and the better path
	ctrler.PortStatus(1, &ofctrl.PortStatus{PortNo: 2, Reason: ofctrl.PR_ADD})
	ctrler.Barrier()
	conn.reset()

	sendPacketIn(ctrler, 1, 1, h1Mac, h4Mac)
	s1Flows = conn.flowsOn(1)
	require.Len(t, s1Flows, 1)
	assert.Equal(t, uint32(2), s1Flows[0].flow.OutPort, "back on the 1-2-4 path")
}

// Full partition: floods fail open until connectivity returns
func TestPartitionFailsOpen(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig)
	connectSwitch(ctrler, conn, 1, []uint32{1, 2, 3, 10})
	connectSwitch(ctrler, conn, 2, []uint32{1, 2, 3})
	connectSwitch(ctrler, conn, 3, []uint32{1, 2, 3})
	connectSwitch(ctrler, conn, 4, []uint32{1, 2, 3})

	sendPacketIn(ctrler, 4, 1, h4Mac, bcast)

	// Cut both of s1's uplinks
	ctrler.PortStatus(1, &ofctrl.PortStatus{PortNo: 2, Reason: ofctrl.PR_DELETE})
	ctrler.PortStatus(1, &ofctrl.PortStatus{PortNo: 3, Reason: ofctrl.PR_DELETE})
	ctrler.Barrier()
	conn.reset()

	sendPacketIn(ctrler, 1, 1, h1Mac, h4Mac)

	assert.Empty(t, conn.flowsOn(1), "no flows toward an unreachable host")
	out := conn.lastPacket(t)
	assert.Equal(t, uint64(1), out.dpid)
	assert.Equal(t, []uint32{10}, out.pkt.OutPorts)

	status := ctrler.Status()
	assert.False(t, status.Connected)
}

// A dying host port drops its learned hosts and clears that switch
func TestHostPortDown(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig)
	connectDiamond(ctrler, conn)

	sendPacketIn(ctrler, 1, 1, h1Mac, bcast)
	conn.reset()

	ctrler.PortStatus(1, &ofctrl.PortStatus{PortNo: 1, Reason: ofctrl.PR_DELETE})
	ctrler.Barrier()

	status := ctrler.Status()
	assert.NotContains(t, status.LearnedHosts, h1Mac.String())

	deletes := conn.deletesOn(1)
	require.Len(t, deletes, 1)
	assert.Equal(t, uint16(ofctrl.FLOW_MISS_PRIORITY+1), deletes[0].minPriority)
	assert.Empty(t, conn.deletesOn(2), "only the affected switch is cleared")
}

// With loop prevention on, floods skip spanning tree blocked ports
func TestSpanningTreeFlood(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig+`
policy:
  spanningTree: true
`)
	connectDiamond(ctrler, conn)
	conn.reset()

	// The redundant diamond edge is 3-4, blocked on s4's port toward s3
	sendPacketIn(ctrler, 4, 1, h4Mac, bcast)

	out := conn.lastPacket(t)
	assert.Equal(t, uint64(4), out.dpid)
	assert.Equal(t, []uint32{2}, out.pkt.OutPorts)

	status := ctrler.Status()
	assert.Len(t, status.TreeEdges, 3)
	assert.Equal(t, map[uint64][]uint32{4: {3}}, status.BlockedPorts)
}

// Blocking is one sided, so the unblocked side of a redundant edge
// still floods toward it. A frame arriving on the blocked ingress must
// be dropped before learning, or the wave revisits switches.
func TestBlockedPortIngressDropped(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig+`
policy:
  spanningTree: true
`)
	connectDiamond(ctrler, conn)

	// s3 floods out its side of the redundant 3-4 edge
	sendPacketIn(ctrler, 3, 1, h2Mac, bcast)
	conn.reset()

	// The frame lands on s4's blocked port 3
	sendPacketIn(ctrler, 4, 3, h2Mac, bcast)

	conn.mutex.Lock()
	packets := len(conn.packets)
	conn.mutex.Unlock()
	assert.Zero(t, packets, "blocked ingress frame was re-flooded")

	status := ctrler.Status()
	loc, ok := status.LearnedHosts[h2Mac.String()]
	require.True(t, ok)
	assert.Equal(t, uint64(3), loc.Dpid, "blocked ingress frame was learned from")
	assert.Equal(t, uint64(1), status.PacketCount)
}

// Dynamic discovery drives the graph from link events
func TestDynamicDiscovery(t *testing.T) {
	ctrler, conn := newTestController(t, `
switches: [1, 2]
policy:
  discovery: dynamic
`)
	connectSwitch(ctrler, conn, 1, []uint32{1, 2})
	connectSwitch(ctrler, conn, 2, []uint32{1, 2})

	status := ctrler.Status()
	assert.Equal(t, 0, status.LinkCount)

	ctrler.LinkAdd(&ofctrl.LinkUpdate{SrcDpid: 1, SrcPort: 2, DstDpid: 2, DstPort: 2})
	ctrler.Barrier()

	status = ctrler.Status()
	assert.Equal(t, 1, status.LinkCount)
	assert.True(t, status.Connected)

	ctrler.LinkDelete(&ofctrl.LinkUpdate{SrcDpid: 1, SrcPort: 2, DstDpid: 2, DstPort: 2})
	ctrler.Barrier()

	status = ctrler.Status()
	assert.Equal(t, 0, status.LinkCount)

	// Disconnect drops the node and its hosts in dynamic mode
	sendPacketIn(ctrler, 1, 1, h1Mac, bcast)
	ctrler.SwitchDisconnected(1)
	ctrler.Barrier()

	status = ctrler.Status()
	assert.Equal(t, []uint64{2}, status.GraphSwitches)
	assert.Empty(t, status.LearnedHosts)
}

// Inspection after shutdown returns instead of blocking on the dead
// event loop
func TestInspectAfterStop(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig)
	connectSwitch(ctrler, conn, 1, []uint32{1, 2, 3})

	ctrler.Stop()

	statusCh := make(chan *Status, 1)
	go func() { statusCh <- ctrler.Status() }()

	select {
	case status := <-statusCh:
		require.NotNil(t, status)
	case <-time.After(2 * time.Second):
		t.Fatalf("Status blocked after Stop")
	}
}

// Path diagnostics report the chosen path plus bounded alternates
func TestPathsReport(t *testing.T) {
	ctrler, conn := newTestController(t, diamondConfig)
	connectDiamond(ctrler, conn)

	report := ctrler.Paths(1, 4, 8)
	assert.Equal(t, []uint64{1, 2, 4}, report.Path)
	assert.Equal(t, 2, report.Weight)
	assert.Equal(t, [][]uint64{{1, 2, 4}, {1, 3, 4}}, report.Alternates)

	report = ctrler.Paths(1, 99, 8)
	assert.Nil(t, report.Path)
	assert.Equal(t, -1, report.Weight)
}
