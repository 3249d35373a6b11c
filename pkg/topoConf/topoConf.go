package topoConf

// Static controller configuration: topology, domain partitioning,
// declared hosts and forwarding policy. Everything here is rebuilt
// from the file on restart; nothing is persisted at runtime.

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// Discovery modes
const (
	DiscoveryStatic  = "static"  // Links come from this file
	DiscoveryDynamic = "dynamic" // Links come from discovery events
)

// One configured inter-switch link
type LinkConfig struct {
	SwitchA uint64 `yaml:"switchA"`
	PortA   uint32 `yaml:"portA"`
	SwitchB uint64 `yaml:"switchB"`
	PortB   uint32 `yaml:"portB"`
	Weight  int    `yaml:"weight"` // Defaults to 1; cross domain links may carry 2
}

// A gateway switch directly linked to the peer domain
type GatewayConfig struct {
	Switch   uint64 `yaml:"switch"`   // Gateway switch, must be managed
	PeerPort uint32 `yaml:"peerPort"` // Fixed port toward the peer domain
}

// Domain block for dual instance deployments. Absent means the
// instance owns every switch it hears about.
type DomainConfig struct {
	Name     string          `yaml:"name"`
	Switches []uint64        `yaml:"switches"` // Managed switch set, hard filter
	Gateways []GatewayConfig `yaml:"gateways"`
}

// Declared host entry
type HostConfig struct {
	Name   string `yaml:"name"`
	Mac    string `yaml:"mac"`
	IP     string `yaml:"ip"`
	Switch uint64 `yaml:"switch"`
	Port   uint32 `yaml:"port"`
	Domain string `yaml:"domain"`
}

// Forwarding policy knobs
type PolicyConfig struct {
	FlowIdleTimeout uint16 `yaml:"flowIdleTimeout"` // Seconds, default 10
	WideFlush       *bool  `yaml:"wideFlush"`       // Flush all switches on link failure, default true
	SpanningTree    bool   `yaml:"spanningTree"`    // Enable broadcast loop prevention
	Discovery       string `yaml:"discovery"`       // static or dynamic, default static
}

// Top level config file
type Config struct {
	Switches []uint64      `yaml:"switches"`
	Links    []LinkConfig  `yaml:"links"`
	Domain   *DomainConfig `yaml:"domain"`
	Hosts    []HostConfig  `yaml:"hosts"`
	Policy   PolicyConfig  `yaml:"policy"`
}

// Parse a config from yaml bytes and validate it
func ParseConfig(data []byte) (*Config, error) {
	config := new(Config)

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config: %v", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Load a config file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %v", path, err)
	}

	return ParseConfig(data)
}

func (self *Config) applyDefaults() {
	if self.Policy.FlowIdleTimeout == 0 {
		self.Policy.FlowIdleTimeout = 10
	}
	if self.Policy.WideFlush == nil {
		wide := true
		self.Policy.WideFlush = &wide
	}
	if self.Policy.Discovery == "" {
		self.Policy.Discovery = DiscoveryStatic
	}

	for i := range self.Links {
		if self.Links[i].Weight <= 0 {
			self.Links[i].Weight = 1
		}
	}
}

func (self *Config) validate() error {
	if self.Policy.Discovery != DiscoveryStatic && self.Policy.Discovery != DiscoveryDynamic {
		return fmt.Errorf("unknown discovery mode %q", self.Policy.Discovery)
	}

	for _, link := range self.Links {
		if link.SwitchA == link.SwitchB {
			return fmt.Errorf("link from switch %d to itself", link.SwitchA)
		}
		if link.PortA == 0 || link.PortB == 0 {
			return fmt.Errorf("link %d <-> %d missing port numbers", link.SwitchA, link.SwitchB)
		}
	}

	if self.Domain != nil {
		if self.Domain.Name == "" {
			return fmt.Errorf("domain block needs a name")
		}

		managed := make(map[uint64]bool)
		for _, dpid := range self.Domain.Switches {
			managed[dpid] = true
		}

		for _, gateway := range self.Domain.Gateways {
			if !managed[gateway.Switch] {
				return fmt.Errorf("gateway switch %d is not a managed switch", gateway.Switch)
			}
			if gateway.PeerPort == 0 {
				return fmt.Errorf("gateway switch %d missing peer port", gateway.Switch)
			}
		}
	}

	for _, host := range self.Hosts {
		if _, err := net.ParseMAC(host.Mac); err != nil {
			return fmt.Errorf("host %s has bad mac %q: %v", host.Name, host.Mac, err)
		}
	}

	return nil
}

// IsManaged checks the managed switch filter. Without a domain block
// every switch is managed.
func (self *Config) IsManaged(dpid uint64) bool {
	if self.Domain == nil {
		return true
	}

	for _, managed := range self.Domain.Switches {
		if managed == dpid {
			return true
		}
	}

	return false
}
