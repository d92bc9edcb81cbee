package locator

import (
	"errors"
	"net"
	"testing"
)

func TestFromTCPAddrV4(t *testing.T) {
	addr := &net.TCPAddr{IP: net.IPv4(192, 168, 1, 10), Port: 5100}
	loc, err := FromTCPAddr(addr)
	if err != nil {
		t.Fatalf("from tcp addr: %v", err)
	}
	if loc.Kind != KindTCPv4 {
		t.Fatalf("kind = %d, want TCPv4", loc.Kind)
	}
	if loc.PhysicalPort != 5100 {
		t.Fatalf("physical port = %d", loc.PhysicalPort)
	}
	if got := loc.IP().String(); got != "192.168.1.10" {
		t.Fatalf("ip = %s", got)
	}
	if loc.LogicalPort != 0 {
		t.Fatalf("logical port should start zero")
	}
}

func TestFromTCPAddrV6(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("fe80::1"), Port: 7000}
	loc, err := FromTCPAddr(addr)
	if err != nil {
		t.Fatalf("from tcp addr: %v", err)
	}
	if loc.Kind != KindTCPv6 {
		t.Fatalf("kind = %d, want TCPv6", loc.Kind)
	}
	if !loc.IP().Equal(net.ParseIP("fe80::1")) {
		t.Fatalf("ip = %s", loc.IP())
	}
}

func TestFromTCPAddrRejectsOther(t *testing.T) {
	_, err := FromTCPAddr(&net.UnixAddr{Name: "/tmp/x", Net: "unix"})
	if !errors.Is(err, ErrUnsupportedAddress) {
		t.Fatalf("expected ErrUnsupportedAddress, got %v", err)
	}
}

func TestSetWAN(t *testing.T) {
	addr := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 5100}
	loc, err := FromTCPAddr(addr)
	if err != nil {
		t.Fatalf("from tcp addr: %v", err)
	}
	if loc.HasWAN() {
		t.Fatalf("fresh locator should have no WAN")
	}
	loc.SetWAN([4]byte{80, 80, 99, 45})
	if !loc.HasWAN() {
		t.Fatalf("WAN not recorded")
	}
	if loc.Address[8] != 80 || loc.Address[11] != 45 {
		t.Fatalf("WAN bytes misplaced: %v", loc.Address)
	}

	v6 := Locator{Kind: KindTCPv6}
	v6.SetWAN([4]byte{1, 2, 3, 4})
	if v6.HasWAN() {
		t.Fatalf("SetWAN must be a no-op for v6")
	}
}
