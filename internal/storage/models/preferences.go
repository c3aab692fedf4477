package models

// Protocol is the tunnelling protocol the user picked. It is only echoed
// into the connection log.
type Protocol string

const (
	ProtocolIKEv2     Protocol = "IKEv2"
	ProtocolWireGuard Protocol = "WireGuard"
	ProtocolOpenVPN   Protocol = "OpenVPN"
)

// Protocols lists the supported protocols in display order.
var Protocols = []Protocol{ProtocolIKEv2, ProtocolWireGuard, ProtocolOpenVPN}

// Valid reports whether p is one of the supported protocols.
func (p Protocol) Valid() bool {
	for _, known := range Protocols {
		if p == known {
			return true
		}
	}
	return false
}

// Preferences represents the user settings panel
type Preferences struct {
	Protocol    Protocol `json:"protocol"`
	KillSwitch  bool     `json:"kill_switch"`
	AutoConnect bool     `json:"auto_connect"`
}

// DefaultPreferences returns the preferences used on first start.
func DefaultPreferences() Preferences {
	return Preferences{
		Protocol:    ProtocolIKEv2,
		KillSwitch:  true,
		AutoConnect: false,
	}
}
