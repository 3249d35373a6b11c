package ofnet

// Link failure detection and recovery. Each monitored link runs a two
// state machine, UP <-> DOWN, driven purely by transport events (port
// status and discovery link updates). There is no heartbeat fallback:
// a silently dropped down event leaves the graph stale for that link.

import (
	"github.com/contiv/ofroute/pkg/libfsm"
	"github.com/contiv/ofroute/pkg/ofctrl"

	log "github.com/sirupsen/logrus"
)

const (
	linkUp   = "up"
	linkDown = "down"

	linkEventDown = "link-down"
	linkEventUp   = "link-up"
)

// Canonical link identity, A < B
type linkKey struct {
	a uint64
	b uint64
}

func makeLinkKey(a, b uint64) linkKey {
	if a > b {
		a, b = b, a
	}
	return linkKey{a: a, b: b}
}

// One monitored inter-switch link. The original port mapping and
// weight are remembered while the link is down so recovery restores
// the exact pre-failure state.
type monitoredLink struct {
	key    linkKey
	portA  uint32 // Port on key.a
	portB  uint32 // Port on key.b
	weight int
	fsm    *libfsm.Fsm
}

// Create (or return) the monitor record for a link. Ports are given
// relative to the a/b canonical order.
func (self *Controller) addMonitoredLink(a uint64, portA uint32, b uint64, portB uint32, weight int) *monitoredLink {
	key := makeLinkKey(a, b)
	if link := self.links[key]; link != nil {
		return link
	}

	if a > b {
		portA, portB = portB, portA
	}
	if weight <= 0 {
		weight = 1
	}

	link := &monitoredLink{key: key, portA: portA, portB: portB, weight: weight}
	link.fsm = libfsm.NewFsm(&libfsm.FsmTable{
		// currState,  event,         newState, callback
		{CurrState: linkUp, EventName: linkEventDown, NewState: linkDown, Callback: func(e libfsm.Event) error {
			self.linkWentDown(link)
			return nil
		}},
		{CurrState: linkDown, EventName: linkEventUp, NewState: linkUp, Callback: func(e libfsm.Event) error {
			self.linkCameUp(link)
			return nil
		}},
	}, linkUp)

	self.links[key] = link
	return link
}

// Find the monitored link a local port belongs to
func (self *Controller) findLinkByPort(dpid uint64, portNo uint32) *monitoredLink {
	for _, link := range self.links {
		if (link.key.a == dpid && link.portA == portNo) ||
			(link.key.b == dpid && link.portB == portNo) {
			return link
		}
	}

	return nil
}

// Port status handler. DELETE and link-down MODIFY events drive the
// link state machine down; ADD and link-up MODIFY events drive it up.
func (self *Controller) handlePortStatus(dpid uint64, status *ofctrl.PortStatus) {
	if !self.isManaged(dpid) {
		return
	}

	sw := self.switchDb[dpid]

	switch status.Reason {
	case ofctrl.PR_ADD:
		log.Infof("Port %d added on switch %d", status.PortNo, dpid)
		if sw != nil {
			sw.AddPort(status.PortNo)
		}
		self.handlePortUp(dpid, status.PortNo)

	case ofctrl.PR_DELETE:
		log.Infof("Port %d deleted on switch %d", status.PortNo, dpid)
		if sw != nil {
			sw.RemovePort(status.PortNo)
		}
		self.handlePortDown(dpid, status.PortNo)

	case ofctrl.PR_MODIFY:
		if status.LinkDown {
			log.Infof("Port %d link down on switch %d", status.PortNo, dpid)
			self.handlePortDown(dpid, status.PortNo)
		} else {
			log.Infof("Port %d link up on switch %d", status.PortNo, dpid)
			self.handlePortUp(dpid, status.PortNo)
		}
	}
}

func (self *Controller) handlePortDown(dpid uint64, portNo uint32) {
	link := self.findLinkByPort(dpid, portNo)
	if link != nil {
		if link.fsm.InState(linkUp) {
			link.fsm.FsmEvent(libfsm.Event{EventName: linkEventDown, EventData: link.key})
		}
		return
	}

	// Host port went away: forget its hosts and force relearning on
	// this switch
	self.hosts.DropByPort(dpid, portNo)
	self.clearFlows(dpid)
}

func (self *Controller) handlePortUp(dpid uint64, portNo uint32) {
	link := self.findLinkByPort(dpid, portNo)
	if link != nil && link.fsm.InState(linkDown) {
		link.fsm.FsmEvent(libfsm.Event{EventName: linkEventUp, EventData: link.key})
	}
}

// Dynamic discovery found a link
func (self *Controller) handleLinkAdd(update *ofctrl.LinkUpdate) {
	if !self.isManaged(update.SrcDpid) || !self.isManaged(update.DstDpid) {
		return
	}

	key := makeLinkKey(update.SrcDpid, update.DstDpid)
	link := self.links[key]

	if link == nil {
		// First sighting: monitor it, starting down so the up
		// transition below installs it
		link = self.addMonitoredLink(update.SrcDpid, update.SrcPort, update.DstDpid, update.DstPort, 1)
		link.fsm.FsmState = linkDown
	}

	if link.fsm.InState(linkDown) {
		link.fsm.FsmEvent(libfsm.Event{EventName: linkEventUp, EventData: key})
	}
}

// Dynamic discovery lost a link
func (self *Controller) handleLinkDelete(update *ofctrl.LinkUpdate) {
	if !self.isManaged(update.SrcDpid) || !self.isManaged(update.DstDpid) {
		return
	}

	link := self.links[makeLinkKey(update.SrcDpid, update.DstDpid)]
	if link != nil && link.fsm.InState(linkUp) {
		link.fsm.FsmEvent(libfsm.Event{EventName: linkEventDown, EventData: link.key})
	}
}

// DOWN transition: drop the edge, flush stale flows, let the next
// packet-in recompute against the new topology.
func (self *Controller) linkWentDown(link *monitoredLink) {
	log.Warnf("Link failure: %d:%d <-> %d:%d",
		link.key.a, link.portA, link.key.b, link.portB)

	self.topo.RemoveLink(link.key.a, link.key.b)
	self.flushFlows([]uint64{link.key.a, link.key.b})
	self.recomputeTree()

	// Diagnostic only; unreachable pairs simply get NoPath until the
	// link returns
	if !self.topo.Connected() {
		log.Warnf("Topology is partitioned after losing link %d <-> %d",
			link.key.a, link.key.b)
	}
}

// UP transition: restore the edge with its original port mapping and
// weight, then flush so a newly optimal path can displace stale
// detour flows before they age out on their own.
func (self *Controller) linkCameUp(link *monitoredLink) {
	log.Infof("Link recovered: %d:%d <-> %d:%d",
		link.key.a, link.portA, link.key.b, link.portB)

	self.topo.AddLink(link.key.a, link.portA, link.key.b, link.portB, link.weight)

	affected := []uint64{link.key.a, link.key.b}
	for _, peer := range self.topo.Neighbors(link.key.a) {
		affected = append(affected, peer)
	}
	for _, peer := range self.topo.Neighbors(link.key.b) {
		affected = append(affected, peer)
	}

	self.flushFlows(affected)
	self.recomputeTree()
}
