package ofnet

// Domain routing for dual instance deployments. Each instance owns a
// fixed switch set and hands cross domain traffic to a gateway
// switch; the peer instance treats packets arriving at its own
// gateway like locally originated traffic. The two instances share
// no runtime state.

import (
	"net"
	"sort"

	"github.com/contiv/ofroute/pkg/hostDb"
	"github.com/contiv/ofroute/pkg/netGraph"
	"github.com/contiv/ofroute/pkg/topoConf"
)

type domainRouter struct {
	name     string            // This instance's domain
	managed  map[uint64]bool   // Fixed managed switch set
	gateways map[uint64]uint32 // Gateway switch -> fixed cross domain port
}

func newDomainRouter(cfg *topoConf.DomainConfig) *domainRouter {
	router := new(domainRouter)

	router.name = cfg.Name
	router.managed = make(map[uint64]bool)
	router.gateways = make(map[uint64]uint32)

	for _, dpid := range cfg.Switches {
		router.managed[dpid] = true
	}
	for _, gateway := range cfg.Gateways {
		router.gateways[gateway.Switch] = gateway.PeerPort
	}

	return router
}

// Hard filter applied at every event handler entry: this instance
// never learns from or programs switches outside its set.
func (self *domainRouter) isManaged(dpid uint64) bool {
	return self.managed[dpid]
}

// IsLocalDestination checks the host registry for the destination's
// owning domain. Undeclared macs are not local; the dispatcher floods
// those.
func (self *domainRouter) IsLocalDestination(registry *hostDb.HostRegistry, mac net.HardwareAddr) bool {
	domain, ok := registry.DomainOf(mac)
	return ok && domain == self.name
}

// A destination declared in some other domain
func (self *domainRouter) isPeerDestination(registry *hostDb.HostRegistry, mac net.HardwareAddr) bool {
	_, declared := registry.DomainOf(mac)
	return declared && !self.IsLocalDestination(registry, mac)
}

// Resolve the output port that moves a packet toward the peer domain.
// On a gateway switch this is the fixed cross domain port; elsewhere
// it is the first hop of the shortest local path to the nearest
// gateway. Ties go to the lowest gateway dpid so the choice is
// reproducible.
func (self *domainRouter) gatewayPortFor(dpid uint64, topo *netGraph.TopoGraph) (uint32, bool) {
	if port, ok := self.gateways[dpid]; ok {
		return port, true
	}

	gateways := make([]uint64, 0, len(self.gateways))
	for gw := range self.gateways {
		gateways = append(gateways, gw)
	}
	sort.Slice(gateways, func(i, j int) bool { return gateways[i] < gateways[j] })

	bestWeight := -1
	var bestPath []uint64

	for _, gw := range gateways {
		path := topo.ShortestPath(dpid, gw)
		if len(path) < 2 {
			continue
		}

		weight := topo.PathWeight(path)
		if bestWeight < 0 || weight < bestWeight {
			bestWeight = weight
			bestPath = path
		}
	}

	if bestPath == nil {
		return 0, false
	}

	return topo.PortTo(dpid, bestPath[1])
}

// Managed switch set in ascending order, for status reporting
func (self *domainRouter) managedSwitches() []uint64 {
	switches := make([]uint64, 0, len(self.managed))
	for dpid := range self.managed {
		switches = append(switches, dpid)
	}

	sort.Slice(switches, func(i, j int) bool { return switches[i] < switches[j] })
	return switches
}
