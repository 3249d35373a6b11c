package hostDb

// Host location table: mac address -> (switch, port), learned from
// observed traffic. Relocation is last-write-wins with no staleness
// check; that matches the learning model this engine implements.
// FIXME: decide whether relocations should require re-verification
// before overwriting a previously learned location.

import (
	"net"
	"sort"

	"github.com/contiv/ofroute/pkg/ofctrl"

	log "github.com/sirupsen/logrus"
)

// Learned location of a host
type HostLocation struct {
	Dpid uint64 // Switch the host was seen on
	Port uint32 // Port the host was seen on
}

// Reports the inter-switch ports of a switch, used to classify a
// packet's ingress port as host-facing or not. The topology graph
// implements this.
type UplinkFinder interface {
	UplinkPorts(dpid uint64) []uint32
}

// HostDb owns the learned location table. A single goroutine owns
// each instance; no locking here.
type HostDb struct {
	locations map[string]*HostLocation // Keyed by mac string
	uplinks   UplinkFinder             // Inter-switch port oracle
}

// Create a new host location table
func NewHostDb(uplinks UplinkFinder) *HostDb {
	hostDb := new(HostDb)

	hostDb.locations = make(map[string]*HostLocation)
	hostDb.uplinks = uplinks

	return hostDb
}

// Learn records or refreshes the location of a source mac. Broadcast,
// multicast and zero addresses are ignored. The port is taken to be
// host-facing when it is port 1 (the conventional host port) or not a
// known inter-switch port. Returns true if the table changed.
func (self *HostDb) Learn(dpid uint64, mac net.HardwareAddr, portNo uint32) bool {
	if ofctrl.IsBroadcastMac(mac) || ofctrl.IsMulticastMac(mac) || ofctrl.IsZeroMac(mac) {
		return false
	}

	if !self.isHostPort(dpid, portNo) {
		return false
	}

	key := mac.String()
	existing := self.locations[key]

	if existing == nil {
		self.locations[key] = &HostLocation{Dpid: dpid, Port: portNo}
		log.Infof("Learned host %s at %d:%d", key, dpid, portNo)
		return true
	}

	if existing.Dpid != dpid || existing.Port != portNo {
		// Last write wins, no timestamp comparison
		log.Infof("Host %s moved: %d:%d -> %d:%d", key, existing.Dpid, existing.Port, dpid, portNo)
		existing.Dpid = dpid
		existing.Port = portNo
		return true
	}

	return false
}

// Lookup the learned location of a mac
func (self *HostDb) Lookup(mac net.HardwareAddr) (HostLocation, bool) {
	loc := self.locations[mac.String()]
	if loc == nil {
		return HostLocation{}, false
	}

	return *loc, true
}

// Drop every host learned on a specific port. Called when a port goes
// away. Returns the macs that were removed.
func (self *HostDb) DropByPort(dpid uint64, portNo uint32) []string {
	var removed []string

	for key, loc := range self.locations {
		if loc.Dpid == dpid && loc.Port == portNo {
			removed = append(removed, key)
		}
	}

	sort.Strings(removed)
	for _, key := range removed {
		delete(self.locations, key)
		log.Infof("Removed host %s from %d:%d", key, dpid, portNo)
	}

	return removed
}

// Drop every host learned on a switch. Called when a switch leaves.
func (self *HostDb) DropBySwitch(dpid uint64) {
	for key, loc := range self.locations {
		if loc.Dpid == dpid {
			delete(self.locations, key)
		}
	}
}

// Number of learned hosts
func (self *HostDb) Count() int {
	return len(self.locations)
}

// Snapshot of the location table for inspection
func (self *HostDb) Snapshot() map[string]HostLocation {
	snap := make(map[string]HostLocation, len(self.locations))
	for key, loc := range self.locations {
		snap[key] = *loc
	}

	return snap
}

// Classify a port as host-facing
func (self *HostDb) isHostPort(dpid uint64, portNo uint32) bool {
	if portNo == 1 {
		return true
	}

	if self.uplinks != nil {
		for _, uplink := range self.uplinks.UplinkPorts(dpid) {
			if uplink == portNo {
				return false
			}
		}
	}

	return true
}
