// Package channel holds the per-TCP-connection protocol state: the
// connection status machine and the logical-port bookkeeping the control
// dispatcher mutates.
package channel

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/danmuck/rtcpctl/internal/locator"
	"github.com/danmuck/rtcpctl/internal/protocol"
)

// Status is the connection state of one channel.
type Status int32

const (
	Disconnected Status = iota
	Connecting
	WaitingForBindResponse
	Established
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case WaitingForBindResponse:
		return "waiting_for_bind_response"
	case Established:
		return "established"
	}
	return "unknown"
}

// Channel is the per-connection record. The transport owns the socket; the
// control manager reads and mutates the protocol state through this type.
type Channel struct {
	localAddr  net.Addr
	remoteAddr net.Addr

	status              atomic.Int32
	waitingForKeepAlive atomic.Bool

	// pendingMu guards the locator and every port list below.
	pendingMu                 sync.Mutex
	remoteLocator             locator.Locator
	pendingLogicalOutputPorts []uint16
	logicalOutputPorts        []uint16
	rejectedLogicalPorts      []uint16
	negotiating               map[protocol.TransactionID]uint16
}

func New(local, remote net.Addr) *Channel {
	c := &Channel{
		localAddr:   local,
		remoteAddr:  remote,
		negotiating: make(map[protocol.TransactionID]uint16),
	}
	c.status.Store(int32(Disconnected))
	return c
}

func (c *Channel) LocalAddr() net.Addr  { return c.localAddr }
func (c *Channel) RemoteAddr() net.Addr { return c.remoteAddr }

func (c *Channel) Status() Status { return Status(c.status.Load()) }

// ChangeStatus moves the state machine.
func (c *Channel) ChangeStatus(s Status) { c.status.Store(int32(s)) }

// ConnectionEstablished reports whether the bind handshake completed.
func (c *Channel) ConnectionEstablished() bool { return c.Status() == Established }

// Locator returns the remote's bound locator as advertised during bind.
func (c *Channel) Locator() locator.Locator {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return c.remoteLocator
}

// SetLocator records the remote's advertised locator.
func (c *Channel) SetLocator(loc locator.Locator) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.remoteLocator = loc
}

// WaitingForKeepAlive reports whether a keep-alive request is unanswered.
func (c *Channel) WaitingForKeepAlive() bool { return c.waitingForKeepAlive.Load() }

func (c *Channel) SetWaitingForKeepAlive(v bool) { c.waitingForKeepAlive.Store(v) }

// ProcessBindRequest records the remote locator from an inbound bind
// request. The first bind establishes the channel and returns OK; a bind on
// an already established channel returns EXISTING_CONNECTION.
func (c *Channel) ProcessBindRequest(remote locator.Locator) protocol.ResponseCode {
	established := c.ConnectionEstablished()
	c.SetLocator(remote)
	if established {
		return protocol.RetcodeExistingConnection
	}
	c.ChangeStatus(Established)
	return protocol.RetcodeOK
}

// AddPendingLogicalPort queues a logical port to be opened once the channel
// establishes.
func (c *Channel) AddPendingLogicalPort(port uint16) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for _, p := range c.pendingLogicalOutputPorts {
		if p == port {
			return
		}
	}
	c.pendingLogicalOutputPorts = append(c.pendingLogicalOutputPorts, port)
}

// PendingLogicalPorts returns a copy of the pending-open list.
func (c *Channel) PendingLogicalPorts() []uint16 {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	out := make([]uint16, len(c.pendingLogicalOutputPorts))
	copy(out, c.pendingLogicalOutputPorts)
	return out
}

// LogicalPorts returns a copy of the accepted-port list.
func (c *Channel) LogicalPorts() []uint16 {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	out := make([]uint16, len(c.logicalOutputPorts))
	copy(out, c.logicalOutputPorts)
	return out
}

// RejectedLogicalPorts returns a copy of the ports the peer refused.
func (c *Channel) RejectedLogicalPorts() []uint16 {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	out := make([]uint16, len(c.rejectedLogicalPorts))
	copy(out, c.rejectedLogicalPorts)
	return out
}

// SetNegotiatingLogicalPort ties an outstanding OPEN_LOGICAL_PORT_REQUEST
// transaction to the port it asked for.
func (c *Channel) SetNegotiatingLogicalPort(id protocol.TransactionID, port uint16) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.negotiating[id] = port
}

// TryEstablish completes the client side of the bind handshake. The status
// moves to Established only when logical output ports are pending and
// validate approves; validate runs under the pending-port lock and must not
// send on the transport.
func (c *Channel) TryEstablish(validate func() bool) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if len(c.pendingLogicalOutputPorts) == 0 {
		return false
	}
	if !validate() {
		return false
	}
	c.status.Store(int32(Established))
	return true
}

// AddLogicalPortResponse advances the pending-open list after an
// OPEN_LOGICAL_PORT_RESPONSE. It returns the next pending port to request,
// if any.
func (c *Channel) AddLogicalPortResponse(id protocol.TransactionID, accepted bool) (next uint16, ok bool) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	port, found := c.negotiating[id]
	if !found {
		return 0, false
	}
	delete(c.negotiating, id)
	c.removePendingLocked(port)
	if accepted {
		c.logicalOutputPorts = append(c.logicalOutputPorts, port)
	} else {
		c.rejectedLogicalPorts = append(c.rejectedLogicalPorts, port)
	}
	if len(c.pendingLogicalOutputPorts) > 0 {
		return c.pendingLogicalOutputPorts[0], true
	}
	return 0, false
}

// ProcessCheckLogicalPortsResponse chooses an alternate port to open next:
// the first reported-available port not already accepted or pending.
func (c *Channel) ProcessCheckLogicalPortsResponse(id protocol.TransactionID, available []uint16) (uint16, bool) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	delete(c.negotiating, id)
	for _, port := range available {
		if port == 0 || c.knownPortLocked(port) {
			continue
		}
		c.pendingLogicalOutputPorts = append(c.pendingLogicalOutputPorts, port)
		return port, true
	}
	return 0, false
}

// SetLogicalPortPending requeues a port the peer reported closed so it is
// opened again.
func (c *Channel) SetLogicalPortPending(port uint16) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for i, p := range c.logicalOutputPorts {
		if p == port {
			c.logicalOutputPorts = append(c.logicalOutputPorts[:i], c.logicalOutputPorts[i+1:]...)
			break
		}
	}
	for _, p := range c.pendingLogicalOutputPorts {
		if p == port {
			return
		}
	}
	c.pendingLogicalOutputPorts = append(c.pendingLogicalOutputPorts, port)
}

func (c *Channel) removePendingLocked(port uint16) {
	for i, p := range c.pendingLogicalOutputPorts {
		if p == port {
			c.pendingLogicalOutputPorts = append(c.pendingLogicalOutputPorts[:i], c.pendingLogicalOutputPorts[i+1:]...)
			return
		}
	}
}

func (c *Channel) knownPortLocked(port uint16) bool {
	for _, p := range c.logicalOutputPorts {
		if p == port {
			return true
		}
	}
	for _, p := range c.pendingLogicalOutputPorts {
		if p == port {
			return true
		}
	}
	return false
}
