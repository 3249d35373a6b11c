package ofnet

// Controller event loop and packet dispatcher

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/contiv/ofroute/pkg/hostDb"
	"github.com/contiv/ofroute/pkg/netGraph"
	"github.com/contiv/ofroute/pkg/ofctrl"
	"github.com/contiv/ofroute/pkg/topoConf"

	log "github.com/sirupsen/logrus"
)

// Controller state. One instance per controller process; all fields
// below are owned by the run loop goroutine.
type Controller struct {
	cfg      *topoConf.Config
	topo     *netGraph.TopoGraph   // Switch/link graph
	hosts    *hostDb.HostDb        // Learned host locations
	registry *hostDb.HostRegistry  // Declared hosts
	domain   *domainRouter         // nil in single domain mode
	tree     *netGraph.SpanTree    // nil when loop prevention is off

	switchDb map[uint64]*ofctrl.OFSwitch // Live control sessions
	links    map[linkKey]*monitoredLink  // Monitored inter-switch links

	eventCh  chan Event
	stopCh   chan bool
	stopOnce sync.Once

	packetCount uint64
	flowCount   uint64
}

// Create a new controller from its static configuration and start the
// event loop. Topology and registry state are rebuilt from the config
// every start; nothing survives a restart.
func NewController(cfg *topoConf.Config) (*Controller, error) {
	ctrler := new(Controller)

	ctrler.cfg = cfg
	ctrler.topo = netGraph.NewTopoGraph()
	ctrler.hosts = hostDb.NewHostDb(ctrler.topo)
	ctrler.registry = hostDb.NewHostRegistry()
	ctrler.switchDb = make(map[uint64]*ofctrl.OFSwitch)
	ctrler.links = make(map[linkKey]*monitoredLink)
	ctrler.eventCh = make(chan Event, 512)
	ctrler.stopCh = make(chan bool)

	if cfg.Domain != nil {
		ctrler.domain = newDomainRouter(cfg.Domain)
		log.Infof("Controller initialized for domain %q, managing switches %v",
			cfg.Domain.Name, cfg.Domain.Switches)
	}

	// Declared hosts
	for i := range cfg.Hosts {
		host, err := registeredHost(&cfg.Hosts[i])
		if err != nil {
			return nil, err
		}
		if err := ctrler.registry.AddHost(host); err != nil {
			return nil, err
		}
	}

	// Seed the graph. In partitioned mode only managed switches are
	// graph nodes; the cross domain hop is the gateway's fixed port,
	// never a graph edge.
	for _, dpid := range cfg.Switches {
		if ctrler.isManaged(dpid) {
			ctrler.topo.AddSwitch(dpid)
		}
	}

	if cfg.Policy.Discovery == topoConf.DiscoveryStatic {
		for i := range cfg.Links {
			link := &cfg.Links[i]
			if !ctrler.isManaged(link.SwitchA) || !ctrler.isManaged(link.SwitchB) {
				log.Infof("Skipping link %d <-> %d outside managed set", link.SwitchA, link.SwitchB)
				continue
			}
			ctrler.addMonitoredLink(link.SwitchA, link.PortA, link.SwitchB, link.PortB, link.Weight)
			ctrler.topo.AddLink(link.SwitchA, link.PortA, link.SwitchB, link.PortB, link.Weight)
		}
	}

	if cfg.Policy.SpanningTree {
		ctrler.tree = ctrler.topo.RecomputeTree()
	}

	go ctrler.run()

	return ctrler, nil
}

// Stop the event loop. Safe to call more than once.
func (self *Controller) Stop() {
	self.stopOnce.Do(func() { close(self.stopCh) })
}

// Main run loop. Sole owner of controller state: one event is fully
// processed before the next.
func (self *Controller) run() {
	for {
		select {
		case <-self.stopCh:
			log.Infof("Controller event loop exiting")
			return
		case ev := <-self.eventCh:
			self.processEvent(ev)
		}
	}
}

func (self *Controller) processEvent(ev Event) {
	switch ev := ev.(type) {
	case SwitchConnectedEvent:
		self.handleSwitchConnected(ev.Sw)
	case SwitchDisconnectedEvent:
		self.handleSwitchDisconnected(ev.Dpid)
	case PacketInEvent:
		self.handlePacketIn(ev.Dpid, ev.Pkt)
	case PortStatusEvent:
		self.handlePortStatus(ev.Dpid, ev.Status)
	case LinkAddEvent:
		self.handleLinkAdd(ev.Link)
	case LinkDeleteEvent:
		self.handleLinkDelete(ev.Link)
	case inspectEvent:
		ev.fn()
		ev.done <- true
	default:
		log.Errorf("Unknown event %s", ev.eventName())
	}
}

// ---- ofctrl.AppInterface: the transport driver calls these ----

// Handle switch connected event
func (self *Controller) SwitchConnected(sw *ofctrl.OFSwitch) {
	self.eventCh <- SwitchConnectedEvent{Sw: sw}
}

// Handle switch disconnect event
func (self *Controller) SwitchDisconnected(dpid uint64) {
	self.eventCh <- SwitchDisconnectedEvent{Dpid: dpid}
}

// Receive a packet from a switch
func (self *Controller) PacketRcvd(dpid uint64, pkt *ofctrl.PacketIn) {
	self.eventCh <- PacketInEvent{Dpid: dpid, Pkt: pkt}
}

// Handle port status event
func (self *Controller) PortStatus(dpid uint64, status *ofctrl.PortStatus) {
	self.eventCh <- PortStatusEvent{Dpid: dpid, Status: status}
}

// Handle link discovery
func (self *Controller) LinkAdd(link *ofctrl.LinkUpdate) {
	self.eventCh <- LinkAddEvent{Link: link}
}

// Handle link loss from discovery
func (self *Controller) LinkDelete(link *ofctrl.LinkUpdate) {
	self.eventCh <- LinkDeleteEvent{Link: link}
}

// ---- handlers, run loop goroutine only ----

func (self *Controller) handleSwitchConnected(sw *ofctrl.OFSwitch) {
	dpid := sw.DPID()

	if !self.isManaged(dpid) {
		log.Infof("Switch %d not managed by this controller", dpid)
		return
	}

	log.Infof("Switch %d connected", dpid)

	self.switchDb[dpid] = sw
	self.topo.AddSwitch(dpid)

	// Wipe whatever the switch was left holding and start clean
	sw.DeleteFlows(ofctrl.FLOW_MISS_PRIORITY)
	self.installTableMiss(sw)

	self.recomputeTree()
}

func (self *Controller) handleSwitchDisconnected(dpid uint64) {
	if !self.isManaged(dpid) {
		return
	}

	log.Infof("Switch %d disconnected", dpid)
	delete(self.switchDb, dpid)

	if self.cfg.Policy.Discovery == topoConf.DiscoveryDynamic {
		// Discovery will re-add the switch when it comes back
		self.topo.RemoveSwitch(dpid)
		self.hosts.DropBySwitch(dpid)
		self.recomputeTree()
	}
	// Static mode keeps the graph node through the reconnect window
}

// Packet dispatcher: learn the source, resolve the destination, then
// output, program a path, hand off to a gateway or flood.
func (self *Controller) handlePacketIn(dpid uint64, pkt *ofctrl.PacketIn) {
	if !self.isManaged(dpid) {
		return
	}

	sw := self.switchDb[dpid]
	if sw == nil {
		log.Warnf("Packet in from switch %d with no session", dpid)
		return
	}

	frame := &pkt.Data
	if ofctrl.IsSkippedEthertype(frame.Ethertype) {
		return
	}

	// Frames arriving on a loop prevention blocked port are dropped
	// before any learning; the unblocked side of the edge delivers
	if self.tree != nil && self.tree.IsBlocked(dpid, pkt.InPort) {
		return
	}

	self.packetCount++

	// Learn the source location
	self.hosts.Learn(dpid, frame.SrcMac, pkt.InPort)

	// Broadcast and multicast always flood
	if ofctrl.IsBroadcastMac(frame.DstMac) || ofctrl.IsMulticastMac(frame.DstMac) {
		self.floodPacket(sw, pkt)
		return
	}

	loc, found := self.hosts.Lookup(frame.DstMac)
	switch {
	case found && loc.Dpid == dpid:
		// Same switch: direct output
		log.Infof("Packet %s -> %s on switch %d: local port %d",
			frame.SrcMac, frame.DstMac, dpid, loc.Port)
		self.installHostFlow(sw, frame.SrcMac, frame.DstMac, loc.Port)
		self.forwardPacket(sw, pkt, loc.Port)

	case found:
		// Remote switch inside our domain: program the path
		path := self.topo.ShortestPath(dpid, loc.Dpid)
		if len(path) < 2 {
			// Destination unreachable right now; fail open
			log.Warnf("No path from switch %d to %d, flooding", dpid, loc.Dpid)
			self.floodPacket(sw, pkt)
			return
		}

		outPort, ok := self.topo.PortTo(dpid, path[1])
		if !ok {
			log.Errorf("No port from switch %d toward %d", dpid, path[1])
			self.floodPacket(sw, pkt)
			return
		}

		log.Infof("Packet %s -> %s: path %v (%d hops)",
			frame.SrcMac, frame.DstMac, path, len(path)-1)

		self.installPathFlow(path, frame.SrcMac, frame.DstMac, loc.Port)
		self.forwardPacket(sw, pkt, outPort)

	case self.domain != nil && self.domain.isPeerDestination(self.registry, frame.DstMac):
		// Peer domain destination: hand off at the gateway. The peer
		// instance learns and routes independently from its side.
		gwPort, ok := self.domain.gatewayPortFor(dpid, self.topo)
		if !ok {
			log.Warnf("No gateway reachable from switch %d, flooding", dpid)
			self.floodPacket(sw, pkt)
			return
		}

		log.Infof("Packet %s -> %s: peer domain, gateway port %d on switch %d",
			frame.SrcMac, frame.DstMac, gwPort, dpid)

		self.installHostFlow(sw, frame.SrcMac, frame.DstMac, gwPort)
		self.forwardPacket(sw, pkt, gwPort)

	default:
		// Never learned and not declared anywhere: fail open
		self.floodPacket(sw, pkt)
	}
}

func (self *Controller) isManaged(dpid uint64) bool {
	if self.domain == nil {
		return true
	}

	return self.domain.isManaged(dpid)
}

func (self *Controller) recomputeTree() {
	if self.cfg.Policy.SpanningTree {
		self.tree = self.topo.RecomputeTree()
	}
}

// ---- inspection ----

// Inspect runs a closure inside the event loop and waits for it. This
// is how readers outside the loop get a consistent view. After Stop
// the closure is not run and Inspect returns immediately.
func (self *Controller) Inspect(fn func()) {
	done := make(chan bool)

	select {
	case self.eventCh <- inspectEvent{fn: fn, done: done}:
	case <-self.stopCh:
		return
	}

	select {
	case <-done:
	case <-self.stopCh:
	}
}

// Barrier waits until every previously queued event is processed
func (self *Controller) Barrier() {
	self.Inspect(func() {})
}

// Status returns a snapshot of controller state
func (self *Controller) Status() *Status {
	status := new(Status)

	self.Inspect(func() {
		connected := make([]uint64, 0, len(self.switchDb))
		for dpid := range self.switchDb {
			connected = append(connected, dpid)
		}
		sort.Slice(connected, func(i, j int) bool { return connected[i] < connected[j] })

		status.ConnectedSwitches = connected
		status.GraphSwitches = self.topo.Switches()
		status.LinkCount = self.topo.LinkCount()
		status.Connected = self.topo.Connected()
		status.LearnedHosts = self.hosts.Snapshot()
		status.RegisteredHosts = self.registry.Count()
		status.PacketCount = self.packetCount
		status.FlowCount = self.flowCount

		if self.domain != nil {
			status.Domain = self.domain.name
			status.ManagedSwitches = self.domain.managedSwitches()
		}
		if self.tree != nil {
			status.TreeEdges = self.tree.Edges()
			status.BlockedPorts = self.tree.BlockedPorts()
		}
	})

	return status
}

// Paths reports the shortest path and bounded alternates between two
// switches. Diagnostic only.
func (self *Controller) Paths(src, dst uint64, maxHops int) *PathReport {
	report := &PathReport{Src: src, Dst: dst}

	self.Inspect(func() {
		report.Path = self.topo.ShortestPath(src, dst)
		if report.Path == nil {
			report.Weight = -1
		} else {
			report.Weight = self.topo.PathWeight(report.Path)
		}
		report.Alternates = self.topo.SimplePaths(src, dst, maxHops)
	})

	return report
}

// Build a registry entry from config
func registeredHost(hostCfg *topoConf.HostConfig) (*hostDb.RegisteredHost, error) {
	mac, err := net.ParseMAC(hostCfg.Mac)
	if err != nil {
		return nil, fmt.Errorf("host %s has bad mac %q: %v", hostCfg.Name, hostCfg.Mac, err)
	}

	return &hostDb.RegisteredHost{
		Name:   hostCfg.Name,
		Mac:    mac,
		IP:     net.ParseIP(hostCfg.IP),
		Dpid:   hostCfg.Switch,
		Port:   hostCfg.Port,
		Domain: hostCfg.Domain,
	}, nil
}
