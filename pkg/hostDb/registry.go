package hostDb

// Static host registry. Dual-instance deployments need to classify a
// destination as local or peer-domain before its location was ever
// learned; that classification comes from this registry rather than
// from numeric ranges carved out of the mac address.

import (
	"fmt"
	"net"
	"sort"

	log "github.com/sirupsen/logrus"
)

// Declared host entry
type RegisteredHost struct {
	Name   string           // Host name, informational
	Mac    net.HardwareAddr // Host mac address
	IP     net.IP           // Host IP, used by address resolution proxying
	Dpid   uint64           // Home switch
	Port   uint32           // Home port
	Domain string           // Owning controller domain
}

// HostRegistry maps mac addresses to declared hosts
type HostRegistry struct {
	hosts map[string]*RegisteredHost
}

// Create an empty registry
func NewHostRegistry() *HostRegistry {
	registry := new(HostRegistry)
	registry.hosts = make(map[string]*RegisteredHost)

	return registry
}

// Add a host to the registry. Duplicate macs are rejected.
func (self *HostRegistry) AddHost(host *RegisteredHost) error {
	key := host.Mac.String()
	if self.hosts[key] != nil {
		return fmt.Errorf("host %s already registered", key)
	}

	self.hosts[key] = host
	log.Debugf("Registered host %s (%s) in domain %q", host.Name, key, host.Domain)

	return nil
}

// Find a declared host by mac
func (self *HostRegistry) Find(mac net.HardwareAddr) *RegisteredHost {
	return self.hosts[mac.String()]
}

// DomainOf returns the owning domain of a mac, if declared
func (self *HostRegistry) DomainOf(mac net.HardwareAddr) (string, bool) {
	host := self.hosts[mac.String()]
	if host == nil {
		return "", false
	}

	return host.Domain, true
}

// Hosts declared in a domain, sorted by mac
func (self *HostRegistry) HostsInDomain(domain string) []*RegisteredHost {
	var keys []string
	for key, host := range self.hosts {
		if host.Domain == domain {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	hosts := make([]*RegisteredHost, 0, len(keys))
	for _, key := range keys {
		hosts = append(hosts, self.hosts[key])
	}

	return hosts
}

// Number of declared hosts
func (self *HostRegistry) Count() int {
	return len(self.hosts)
}
