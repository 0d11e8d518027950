// Package netwatch reports whether the uplink the relay depends on is usable.
package netwatch

import (
	"net"
	"sync/atomic"

	"bemfarelay/internal/client/logger"
)

// Monitor reports network availability.
type Monitor interface {
	Available() bool
}

// Iface is the subset of an interface the monitor inspects.
type Iface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// Lister enumerates the host interfaces.
type Lister func() ([]Iface, error)

// SystemInterfaces lists the host interfaces with their addresses.
func SystemInterfaces() ([]Iface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Iface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			logger.Debug("addrs for %s: %v", iface.Name, err)
			continue
		}
		out = append(out, Iface{Name: iface.Name, Flags: iface.Flags, Addrs: addrs})
	}
	return out, nil
}

// InterfaceMonitor is available while a non-loopback interface is up and
// holds a usable unicast address. Name restricts the check to one interface.
type InterfaceMonitor struct {
	Name string
	list Lister
}

// NewInterfaceMonitor watches the named interface, or all of them when name is empty.
func NewInterfaceMonitor(name string) *InterfaceMonitor {
	return &InterfaceMonitor{Name: name, list: SystemInterfaces}
}

// Available implements Monitor.
func (m *InterfaceMonitor) Available() bool {
	ifaces, err := m.list()
	if err != nil {
		logger.Warn("Listing network interfaces failed: %v", err)
		return false
	}
	for _, iface := range ifaces {
		if m.Name != "" && iface.Name != m.Name {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		for _, addr := range iface.Addrs {
			if ip := ipFromAddr(addr); ip != nil && ip.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

func ipFromAddr(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}

// Static is a Monitor whose value is set by hand.
type Static struct {
	up atomic.Bool
}

// NewStatic returns a Static monitor starting at up.
func NewStatic(up bool) *Static {
	s := &Static{}
	s.up.Store(up)
	return s
}

// Available implements Monitor.
func (s *Static) Available() bool { return s.up.Load() }

// Set changes the reported availability.
func (s *Static) Set(up bool) { s.up.Store(up) }
