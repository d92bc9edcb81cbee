package rtcp

import (
	"github.com/danmuck/rtcpctl/internal/channel"
	"github.com/danmuck/rtcpctl/internal/config"
)

// Transport is the capability the control manager needs from the TCP layer.
// The manager never owns sockets; it hands finished frames to Send and asks
// the transport to tear channels down.
type Transport interface {
	// Send writes buf on the channel's connection and returns the number of
	// bytes accepted.
	Send(ch *channel.Channel, buf []byte) (int, error)

	// CloseChannel tears down the connection behind ch.
	CloseChannel(ch *channel.Channel)

	// IsInputPortOpen reports whether a local receiver is registered for the
	// logical port.
	IsInputPortOpen(port uint16) bool

	// Configuration exposes the transport descriptor, read-only during
	// message processing.
	Configuration() *config.TransportConfig
}
