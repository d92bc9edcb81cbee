package locator

import (
	"errors"
	"fmt"
	"net"
)

// Locator kind values follow the RTPS registry.
const (
	KindInvalid int32 = -1
	KindTCPv4   int32 = 4
	KindTCPv6   int32 = 8
)

// AddressSize is the fixed width of the address field.
const AddressSize = 16

var ErrUnsupportedAddress = errors.New("locator: unsupported network address")

// Locator addresses one RTCP peer: an address-family tag, 16 address bytes,
// the TCP port actually connected to (physical) and the in-band multiplexing
// id negotiated on top of it (logical). For TCPv4 the LAN address occupies
// bytes [12:16] and the optional WAN address bytes [8:12].
type Locator struct {
	Kind         int32
	Address      [AddressSize]byte
	LogicalPort  uint16
	PhysicalPort uint16
}

// FromTCPAddr builds a locator from a connected socket endpoint. The logical
// port is left zero; callers assign it during negotiation.
func FromTCPAddr(addr net.Addr) (Locator, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return Locator{}, ErrUnsupportedAddress
	}
	var loc Locator
	if v4 := tcp.IP.To4(); v4 != nil {
		loc.Kind = KindTCPv4
		copy(loc.Address[12:16], v4)
	} else if v6 := tcp.IP.To16(); v6 != nil {
		loc.Kind = KindTCPv6
		copy(loc.Address[:], v6)
	} else {
		return Locator{}, ErrUnsupportedAddress
	}
	loc.PhysicalPort = uint16(tcp.Port)
	return loc, nil
}

// SetWAN stamps the IPv4 WAN address bytes. It is a no-op for TCPv6.
func (l *Locator) SetWAN(wan [4]byte) {
	if l.Kind != KindTCPv4 {
		return
	}
	copy(l.Address[8:12], wan[:])
}

// HasWAN reports whether any WAN byte is set.
func (l Locator) HasWAN() bool {
	return l.Kind == KindTCPv4 &&
		(l.Address[8] != 0 || l.Address[9] != 0 || l.Address[10] != 0 || l.Address[11] != 0)
}

// IP returns the LAN address as a net.IP.
func (l Locator) IP() net.IP {
	switch l.Kind {
	case KindTCPv4:
		return net.IPv4(l.Address[12], l.Address[13], l.Address[14], l.Address[15])
	case KindTCPv6:
		ip := make(net.IP, AddressSize)
		copy(ip, l.Address[:])
		return ip
	}
	return nil
}

func (l Locator) String() string {
	switch l.Kind {
	case KindTCPv4, KindTCPv6:
		return fmt.Sprintf("%s:%d@%d", l.IP(), l.PhysicalPort, l.LogicalPort)
	}
	return fmt.Sprintf("invalid:%d", l.Kind)
}
