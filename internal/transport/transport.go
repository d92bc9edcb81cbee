// Package transport carries RTCP frames over TCP: it owns the sockets and
// channel records, reassembles frames, and feeds control traffic to the
// dispatcher wired in by the caller.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/danmuck/rtcpctl/internal/channel"
	"github.com/danmuck/rtcpctl/internal/config"
	"github.com/danmuck/rtcpctl/internal/observability"
	"github.com/danmuck/rtcpctl/internal/protocol"
)

var ErrChannelClosed = errors.New("transport: channel closed")

// ControlHandler processes one inbound control frame (TCP header stripped)
// and returns the dispatcher's verdict.
type ControlHandler func(ch *channel.Channel, buf []byte) protocol.ResponseCode

// DataHandler consumes one inbound data frame for a registered logical port.
type DataHandler func(ch *channel.Channel, payload []byte)

type conn struct {
	sock    net.Conn
	writeMu sync.Mutex
}

// TCPTransport implements the capability the control manager consumes.
type TCPTransport struct {
	cfg *config.TransportConfig
	log zerolog.Logger

	onControl ControlHandler

	mu       sync.Mutex
	conns    map[*channel.Channel]*conn
	inputs   map[uint16]DataHandler
	listener net.Listener
	closed   bool
}

func New(cfg *config.TransportConfig, logger zerolog.Logger) *TCPTransport {
	return &TCPTransport{
		cfg:    cfg,
		log:    logger,
		conns:  make(map[*channel.Channel]*conn),
		inputs: make(map[uint16]DataHandler),
	}
}

// SetControlHandler wires the dispatcher in. Must be called before Listen or
// Connect.
func (t *TCPTransport) SetControlHandler(h ControlHandler) { t.onControl = h }

// Configuration exposes the transport descriptor.
func (t *TCPTransport) Configuration() *config.TransportConfig { return t.cfg }

// RegisterInputPort opens a logical input port.
func (t *TCPTransport) RegisterInputPort(port uint16, h DataHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputs[port] = h
}

// UnregisterInputPort closes a logical input port.
func (t *TCPTransport) UnregisterInputPort(port uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inputs, port)
}

// IsInputPortOpen reports whether a receiver is registered for port.
func (t *TCPTransport) IsInputPortOpen(port uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inputs[port]
	return ok
}

// Channels snapshots the channels currently tracked.
func (t *TCPTransport) Channels() []*channel.Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*channel.Channel, 0, len(t.conns))
	for ch := range t.conns {
		out = append(out, ch)
	}
	return out
}

// Addr returns the bound listener address, nil before Listen.
func (t *TCPTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Listen accepts inbound connections on addr until Close.
func (t *TCPTransport) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport listen: %w", err)
	}
	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()
	t.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	go func() {
		for {
			sock, err := ln.Accept()
			if err != nil {
				t.mu.Lock()
				closed := t.closed
				t.mu.Unlock()
				if !closed {
					t.log.Warn().Err(err).Msg("accept failed")
				}
				return
			}
			ch := t.track(sock)
			ch.ChangeStatus(channel.Connecting)
			go t.readLoop(ch)
		}
	}()
	return nil
}

// Connect dials a peer and returns the new channel. The caller starts the
// bind handshake on it.
func (t *TCPTransport) Connect(addr string) (*channel.Channel, error) {
	sock, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport connect: %w", err)
	}
	ch := t.track(sock)
	ch.ChangeStatus(channel.Connecting)
	go t.readLoop(ch)
	return ch, nil
}

func (t *TCPTransport) track(sock net.Conn) *channel.Channel {
	ch := channel.New(sock.LocalAddr(), sock.RemoteAddr())
	t.mu.Lock()
	t.conns[ch] = &conn{sock: sock}
	n := len(t.conns)
	t.mu.Unlock()
	observability.SetOpenChannels(n)
	return ch
}

// Send writes buf on the channel's connection. Writes on one channel are
// serialized; callers from any goroutine are safe.
func (t *TCPTransport) Send(ch *channel.Channel, buf []byte) (int, error) {
	t.mu.Lock()
	c, ok := t.conns[ch]
	t.mu.Unlock()
	if !ok {
		return 0, ErrChannelClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.Write(buf)
}

// CloseChannel tears the connection down and marks the channel disconnected.
func (t *TCPTransport) CloseChannel(ch *channel.Channel) {
	t.mu.Lock()
	c, ok := t.conns[ch]
	delete(t.conns, ch)
	n := len(t.conns)
	t.mu.Unlock()
	if !ok {
		return
	}
	_ = c.sock.Close()
	ch.ChangeStatus(channel.Disconnected)
	observability.SetOpenChannels(n)
	t.log.Info().Str("remote", ch.RemoteAddr().String()).Msg("channel closed")
}

// Close stops the listener and every channel.
func (t *TCPTransport) Close() {
	t.mu.Lock()
	t.closed = true
	ln := t.listener
	chans := make([]*channel.Channel, 0, len(t.conns))
	for ch := range t.conns {
		chans = append(chans, ch)
	}
	t.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	for _, ch := range chans {
		t.CloseChannel(ch)
	}
}

// readLoop reassembles frames for one channel until the connection dies.
func (t *TCPTransport) readLoop(ch *channel.Channel) {
	t.mu.Lock()
	c, ok := t.conns[ch]
	t.mu.Unlock()
	if !ok {
		return
	}

	headerBuf := make([]byte, protocol.TCPHeaderSize)
	for {
		if _, err := io.ReadFull(c.sock, headerBuf); err != nil {
			t.dropChannel(ch, err)
			return
		}
		header, err := protocol.DecodeTCPHeader(headerBuf, protocol.DefaultEndian)
		if err != nil {
			t.dropChannel(ch, err)
			return
		}
		if header.Length < protocol.TCPHeaderSize || header.Length > protocol.TCPHeaderSize+2*protocol.MaxPayloadSize {
			t.log.Warn().Uint32("length", header.Length).Msg("frame length out of range")
			t.dropChannel(ch, nil)
			return
		}
		rest := make([]byte, header.Length-protocol.TCPHeaderSize)
		if _, err := io.ReadFull(c.sock, rest); err != nil {
			t.dropChannel(ch, err)
			return
		}

		if header.LogicalPort == 0 {
			// A zero CRC means the peer skipped computation.
			if t.cfg.CheckCRC && header.CRC != 0 {
				if crc := protocol.Checksum(rest); crc != header.CRC {
					t.log.Warn().Uint32("crc", header.CRC).Uint32("computed", crc).Msg("bad frame CRC")
					observability.RecordBadFrame()
					continue
				}
			}
			code := t.onControl(ch, rest)
			switch code {
			case protocol.RetcodeIncompatibleVersion, protocol.RetcodeUnknownLocator:
				t.log.Warn().Str("code", code.String()).Msg("fatal control verdict, closing channel")
				t.CloseChannel(ch)
				return
			}
			if ch.Status() == channel.Disconnected {
				return
			}
			continue
		}

		t.mu.Lock()
		handler, open := t.inputs[header.LogicalPort]
		t.mu.Unlock()
		if !open {
			t.log.Warn().Uint16("logical_port", header.LogicalPort).Msg("data frame for closed logical port")
			continue
		}
		handler(ch, rest)
	}
}

func (t *TCPTransport) dropChannel(ch *channel.Channel, err error) {
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		t.log.Debug().Err(err).Msg("read loop ended")
	}
	t.CloseChannel(ch)
}
