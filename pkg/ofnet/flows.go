package ofnet

// Flow programming: table miss rule, per-path flow installation and
// coarse invalidation. There is no per-flow provenance tracking; the
// sole invalidation mechanism wipes everything above the miss
// priority and lets the next packet-in reprogram against the current
// topology. No loss guarantee is made for that window.

import (
	"net"

	"github.com/contiv/ofroute/pkg/ofctrl"

	log "github.com/sirupsen/logrus"
)

// Install the lowest priority catch-all rule that punts unmatched
// packets to the controller. Installed once per switch connect.
func (self *Controller) installTableMiss(sw *ofctrl.OFSwitch) {
	sw.InstallFlow(&ofctrl.FlowMod{
		Match:   ofctrl.FlowMatch{Priority: ofctrl.FLOW_MISS_PRIORITY},
		OutPort: ofctrl.P_CONTROLLER,
	})

	log.Infof("Table miss flow installed on switch %d", sw.DPID())
}

// Install a (src, dst) match on one switch with a fixed output port.
// Used for same-switch delivery and gateway hand-off.
func (self *Controller) installHostFlow(sw *ofctrl.OFSwitch, srcMac, dstMac net.HardwareAddr, outPort uint32) {
	idle := self.cfg.Policy.FlowIdleTimeout

	sw.InstallFlow(&ofctrl.FlowMod{
		Match: ofctrl.FlowMatch{
			Priority: ofctrl.FLOW_MATCH_PRIORITY,
			MacSa:    &srcMac,
			MacDa:    &dstMac,
		},
		OutPort:     outPort,
		IdleTimeout: idle,
		HardTimeout: idle * 2,
	})

	self.flowCount++
}

// Install flow entries along a computed path. Each hop gets a
// (srcMac, dstMac) match whose output port points at the next switch,
// resolved through the topology port map; the last hop outputs on the
// destination's host port. Intermediate hops also get the
// reverse-direction rule; that is only an optimization, reverse
// traffic re-triggers learning on its own.
func (self *Controller) installPathFlow(path []uint64, srcMac, dstMac net.HardwareAddr, dstPort uint32) {
	idle := self.cfg.Policy.FlowIdleTimeout

	for i, dpid := range path {
		sw := self.switchDb[dpid]
		if sw == nil {
			// Graph node without a live session; skip it
			log.Warnf("No session for switch %d on path %v", dpid, path)
			continue
		}

		var outPort uint32
		if i+1 < len(path) {
			port, ok := self.topo.PortTo(dpid, path[i+1])
			if !ok {
				log.Errorf("Path %v has no port map entry %d -> %d", path, dpid, path[i+1])
				continue
			}
			outPort = port
		} else {
			outPort = dstPort
		}

		sw.InstallFlow(&ofctrl.FlowMod{
			Match: ofctrl.FlowMatch{
				Priority: ofctrl.FLOW_MATCH_PRIORITY,
				MacSa:    &srcMac,
				MacDa:    &dstMac,
			},
			OutPort:     outPort,
			IdleTimeout: idle,
			HardTimeout: idle * 2,
		})
		self.flowCount++

		// Reverse rule at intermediate hops
		if i > 0 && i+1 < len(path) {
			revPort, ok := self.topo.PortTo(dpid, path[i-1])
			if !ok {
				continue
			}

			sw.InstallFlow(&ofctrl.FlowMod{
				Match: ofctrl.FlowMatch{
					Priority: ofctrl.FLOW_MATCH_PRIORITY,
					MacSa:    &dstMac,
					MacDa:    &srcMac,
				},
				OutPort:     revPort,
				IdleTimeout: idle,
				HardTimeout: idle * 2,
			})
			self.flowCount++
		}
	}
}

// Delete every dynamic flow on a switch, leaving the table miss rule.
// This is deliberately coarse; see the package note above.
func (self *Controller) clearFlows(dpid uint64) {
	sw := self.switchDb[dpid]
	if sw == nil {
		return
	}

	sw.DeleteFlows(ofctrl.FLOW_MISS_PRIORITY + 1)
	log.Infof("Cleared dynamic flows on switch %d", dpid)
}

// Flush dynamic flows after a topology change. Wide flush clears
// every connected switch so all paths are relearned; otherwise only
// the switches named are cleared.
func (self *Controller) flushFlows(affected []uint64) {
	if *self.cfg.Policy.WideFlush {
		for dpid := range self.switchDb {
			self.clearFlows(dpid)
		}
		return
	}

	for _, dpid := range affected {
		self.clearFlows(dpid)
	}
}

// Emit a packet on one port
func (self *Controller) forwardPacket(sw *ofctrl.OFSwitch, pkt *ofctrl.PacketIn, outPort uint32) {
	self.sendPacket(sw, pkt, []uint32{outPort})
}

// Flood a packet on every active port except the ingress one. With
// loop prevention enabled, ports blocked by the spanning tree are
// skipped so a flood wave visits each switch once.
func (self *Controller) floodPacket(sw *ofctrl.OFSwitch, pkt *ofctrl.PacketIn) {
	var blocked func(portNo uint32) bool
	if self.tree != nil {
		dpid := sw.DPID()
		blocked = func(portNo uint32) bool { return self.tree.IsBlocked(dpid, portNo) }
	}

	outPorts := sw.FloodPorts(pkt.InPort, blocked)
	if len(outPorts) == 0 {
		log.Warnf("No ports available for flooding on switch %d", sw.DPID())
		return
	}

	self.sendPacket(sw, pkt, outPorts)
}

func (self *Controller) sendPacket(sw *ofctrl.OFSwitch, pkt *ofctrl.PacketIn, outPorts []uint32) {
	pktOut := &ofctrl.PacketOut{
		InPort:   pkt.InPort,
		BufferId: pkt.BufferId,
		OutPorts: outPorts,
	}
	if pkt.BufferId == ofctrl.NO_BUFFER {
		pktOut.Data = &pkt.Data
	}

	sw.SendPacket(pktOut)
}
