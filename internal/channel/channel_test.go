package channel

import (
	"net"
	"testing"

	"github.com/danmuck/rtcpctl/internal/locator"
	"github.com/danmuck/rtcpctl/internal/protocol"
)

func newTestChannel() *Channel {
	local := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5100}
	remote := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 41000}
	return New(local, remote)
}

func remoteLocator() locator.Locator {
	loc := locator.Locator{Kind: locator.KindTCPv4, LogicalPort: 7410, PhysicalPort: 41000}
	copy(loc.Address[12:16], []byte{127, 0, 0, 1})
	return loc
}

func TestStatusTransitions(t *testing.T) {
	ch := newTestChannel()
	if ch.Status() != Disconnected {
		t.Fatalf("fresh channel status = %s", ch.Status())
	}
	ch.ChangeStatus(Connecting)
	ch.ChangeStatus(WaitingForBindResponse)
	if ch.ConnectionEstablished() {
		t.Fatalf("established before bind response")
	}
}

func TestProcessBindRequest(t *testing.T) {
	ch := newTestChannel()
	code := ch.ProcessBindRequest(remoteLocator())
	if code != protocol.RetcodeOK {
		t.Fatalf("first bind = %s, want OK", code)
	}
	if !ch.ConnectionEstablished() {
		t.Fatalf("channel not established after bind")
	}
	if ch.Locator().LogicalPort != 7410 {
		t.Fatalf("remote locator not recorded: %+v", ch.Locator())
	}
	code = ch.ProcessBindRequest(remoteLocator())
	if code != protocol.RetcodeExistingConnection {
		t.Fatalf("second bind = %s, want EXISTING_CONNECTION", code)
	}
}

func TestTryEstablishNeedsPendingPortsAndValidation(t *testing.T) {
	ch := newTestChannel()
	ch.ChangeStatus(WaitingForBindResponse)

	if ch.TryEstablish(func() bool { return true }) {
		t.Fatalf("established with no pending ports")
	}

	ch.AddPendingLogicalPort(7400)
	if ch.TryEstablish(func() bool { return false }) {
		t.Fatalf("established with failing validation")
	}
	if ch.ConnectionEstablished() {
		t.Fatalf("status moved despite failed validation")
	}

	if !ch.TryEstablish(func() bool { return true }) {
		t.Fatalf("not established on valid response")
	}
	if ch.Status() != Established {
		t.Fatalf("status = %s, want established", ch.Status())
	}
}

func TestAddLogicalPortResponseAdvancesPending(t *testing.T) {
	ch := newTestChannel()
	ch.AddPendingLogicalPort(7400)
	ch.AddPendingLogicalPort(7410)
	ch.SetNegotiatingLogicalPort(1, 7400)

	next, ok := ch.AddLogicalPortResponse(1, true)
	if !ok || next != 7410 {
		t.Fatalf("next = %d ok=%v, want 7410 true", next, ok)
	}
	if got := ch.LogicalPorts(); len(got) != 1 || got[0] != 7400 {
		t.Fatalf("accepted ports = %v", got)
	}
	if got := ch.PendingLogicalPorts(); len(got) != 1 || got[0] != 7410 {
		t.Fatalf("pending ports = %v", got)
	}

	ch.SetNegotiatingLogicalPort(2, 7410)
	next, ok = ch.AddLogicalPortResponse(2, false)
	if ok {
		t.Fatalf("nothing pending but got next %d", next)
	}
	if got := ch.RejectedLogicalPorts(); len(got) != 1 || got[0] != 7410 {
		t.Fatalf("rejected ports = %v", got)
	}
}

func TestAddLogicalPortResponseUnknownTransaction(t *testing.T) {
	ch := newTestChannel()
	ch.AddPendingLogicalPort(7400)
	if _, ok := ch.AddLogicalPortResponse(99, true); ok {
		t.Fatalf("unknown transaction advanced the list")
	}
	if got := ch.PendingLogicalPorts(); len(got) != 1 {
		t.Fatalf("pending ports changed: %v", got)
	}
}

func TestProcessCheckLogicalPortsResponsePicksAlternate(t *testing.T) {
	ch := newTestChannel()
	ch.AddPendingLogicalPort(7400)

	port, ok := ch.ProcessCheckLogicalPortsResponse(3, []uint16{0, 7400, 7420})
	if !ok || port != 7420 {
		t.Fatalf("alternate = %d ok=%v, want 7420 true", port, ok)
	}
	if _, ok := ch.ProcessCheckLogicalPortsResponse(4, []uint16{7400, 7420}); ok {
		t.Fatalf("known ports must not be chosen again")
	}
}

func TestSetLogicalPortPendingRequeues(t *testing.T) {
	ch := newTestChannel()
	ch.AddPendingLogicalPort(7400)
	ch.SetNegotiatingLogicalPort(1, 7400)
	ch.AddLogicalPortResponse(1, true)

	ch.SetLogicalPortPending(7400)
	if got := ch.LogicalPorts(); len(got) != 0 {
		t.Fatalf("port still accepted: %v", got)
	}
	if got := ch.PendingLogicalPorts(); len(got) != 1 || got[0] != 7400 {
		t.Fatalf("port not requeued: %v", got)
	}
	// Requeueing twice keeps one entry.
	ch.SetLogicalPortPending(7400)
	if got := ch.PendingLogicalPorts(); len(got) != 1 {
		t.Fatalf("duplicate pending entry: %v", got)
	}
}

func TestWaitingForKeepAlive(t *testing.T) {
	ch := newTestChannel()
	if ch.WaitingForKeepAlive() {
		t.Fatalf("fresh channel waiting for keep-alive")
	}
	ch.SetWaitingForKeepAlive(true)
	if !ch.WaitingForKeepAlive() {
		t.Fatalf("flag not set")
	}
	ch.SetWaitingForKeepAlive(false)
	if ch.WaitingForKeepAlive() {
		t.Fatalf("flag not cleared")
	}
}
