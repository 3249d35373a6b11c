package ofctrl

// Ethernet frame view used at the controller boundary

import (
	"net"
)

// Well known ethertypes
const (
	ETH_TYPE_IP   uint16 = 0x0800
	ETH_TYPE_ARP  uint16 = 0x0806
	ETH_TYPE_IPV6 uint16 = 0x86dd
	ETH_TYPE_LLDP uint16 = 0x88cc
)

// Decoded ethernet frame. Payload is kept opaque; the engine only
// routes on addresses and ethertype. Discovery protocol frames are
// consumed by the discovery collaborator and never reach the engine.
type Ethernet struct {
	SrcMac    net.HardwareAddr // Source address
	DstMac    net.HardwareAddr // Destination address
	Ethertype uint16           // Frame ethertype
	Payload   []byte           // Raw payload, not interpreted
}

// Check if a mac address is the broadcast address
func IsBroadcastMac(mac net.HardwareAddr) bool {
	if len(mac) != 6 {
		return false
	}
	for _, b := range mac {
		if b != 0xff {
			return false
		}
	}
	return true
}

// Check if a mac address is multicast (group bit set)
func IsMulticastMac(mac net.HardwareAddr) bool {
	if len(mac) != 6 {
		return false
	}
	return (mac[0] & 0x01) != 0
}

// Check if a mac address is all zeros
func IsZeroMac(mac net.HardwareAddr) bool {
	if len(mac) != 6 {
		return false
	}
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}

// Frames the engine never routes: discovery frames belong to the
// discovery collaborator and ipv6 is outside the data model
func IsSkippedEthertype(ethertype uint16) bool {
	return ethertype == ETH_TYPE_LLDP || ethertype == ETH_TYPE_IPV6
}
