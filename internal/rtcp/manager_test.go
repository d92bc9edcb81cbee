package rtcp

import (
	"net"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/rtcpctl/internal/channel"
	"github.com/danmuck/rtcpctl/internal/config"
	"github.com/danmuck/rtcpctl/internal/protocol"
)

// fakeTransport captures outbound frames and serves the capability without
// sockets.
type fakeTransport struct {
	cfg config.TransportConfig

	mu     sync.Mutex
	sent   [][]byte
	open   map[uint16]bool
	closed []*channel.Channel
}

func newFakeTransport() *fakeTransport {
	cfg := config.Default()
	return &fakeTransport{cfg: cfg, open: make(map[uint16]bool)}
}

func (f *fakeTransport) Send(ch *channel.Channel, buf []byte) (int, error) {
	frame := make([]byte, len(buf))
	copy(frame, buf)
	f.mu.Lock()
	f.sent = append(f.sent, frame)
	f.mu.Unlock()
	return len(buf), nil
}

func (f *fakeTransport) CloseChannel(ch *channel.Channel) {
	f.mu.Lock()
	f.closed = append(f.closed, ch)
	f.mu.Unlock()
	ch.ChangeStatus(channel.Disconnected)
}

// sentFrames snapshots captured frames for tests that run the manager on
// another goroutine.
func (f *fakeTransport) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeTransport) closedChannels() []*channel.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*channel.Channel(nil), f.closed...)
}

func (f *fakeTransport) IsInputPortOpen(port uint16) bool { return f.open[port] }

func (f *fakeTransport) Configuration() *config.TransportConfig { return &f.cfg }

func newTestManager() (*Manager, *fakeTransport) {
	fake := newFakeTransport()
	return NewManager(fake, zerolog.Nop()), fake
}

func newTestChannel() *channel.Channel {
	local := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5100}
	remote := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 41000}
	return channel.New(local, remote)
}

// stripTCP drops the outer header, leaving what the dispatcher consumes.
func stripTCP(t *testing.T, frame []byte) []byte {
	t.Helper()
	if len(frame) < protocol.TCPHeaderSize {
		t.Fatalf("frame shorter than TCP header: %d", len(frame))
	}
	return frame[protocol.TCPHeaderSize:]
}

type parsedFrame struct {
	header  protocol.TCPHeader
	ctrl    protocol.ControlHeader
	code    protocol.ResponseCode
	payload protocol.SerializedPayload
}

// parseFrame splits one captured frame. hasCode/hasPayload follow from the
// kind under test.
func parseFrame(t *testing.T, frame []byte, hasCode, hasPayload bool) parsedFrame {
	t.Helper()
	header, err := protocol.DecodeTCPHeader(frame, protocol.DefaultEndian)
	if err != nil {
		t.Fatalf("decode tcp header: %v", err)
	}
	ctrl, err := protocol.DecodeControlHeader(frame[protocol.TCPHeaderSize:])
	if err != nil {
		t.Fatalf("decode control header: %v", err)
	}
	out := parsedFrame{header: header, ctrl: ctrl, code: protocol.RetcodeVoid}
	order := ctrl.Endianness()
	rest := frame[protocol.TCPHeaderSize+protocol.ControlHeaderSize:]
	if hasCode {
		if len(rest) < protocol.ResponseCodeSize {
			t.Fatalf("frame missing response code")
		}
		out.code = protocol.ResponseCode(order.Uint32(rest))
		rest = rest[protocol.ResponseCodeSize:]
	}
	if hasPayload {
		payload, err := protocol.DecodeEnvelope(rest, order)
		if err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		out.payload = payload
	}
	return out
}

func lastFrame(t *testing.T, fake *fakeTransport) []byte {
	t.Helper()
	if len(fake.sent) == 0 {
		t.Fatalf("no frames sent")
	}
	return fake.sent[len(fake.sent)-1]
}

func TestSendConnectionRequestFramesAndState(t *testing.T) {
	m, fake := newTestManager()
	fake.cfg.ListeningPorts = []uint16{5100}
	ch := newTestChannel()

	id, err := m.SendConnectionRequest(ch)
	if err != nil {
		t.Fatalf("send connection request: %v", err)
	}
	if ch.Status() != channel.WaitingForBindResponse {
		t.Fatalf("status = %s, want waiting_for_bind_response", ch.Status())
	}
	if !m.registry.Find(id) {
		t.Fatalf("transaction not registered")
	}

	frame := parseFrame(t, lastFrame(t, fake), false, true)
	if frame.ctrl.Kind != protocol.BindConnectionRequest {
		t.Fatalf("kind = %s", frame.ctrl.Kind)
	}
	if !frame.ctrl.HasPayload() || !frame.ctrl.RequiresResponse() {
		t.Fatalf("request flags wrong: %02x", frame.ctrl.Flags)
	}
	if frame.header.LogicalPort != 0 {
		t.Fatalf("control frame on logical port %d", frame.header.LogicalPort)
	}

	var request protocol.ConnectionRequest
	if err := request.Deserialize(frame.payload); err != nil {
		t.Fatalf("deserialize request: %v", err)
	}
	if request.ProtocolVersion != protocol.RTCPProtocolVersion {
		t.Fatalf("version = %+v", request.ProtocolVersion)
	}
	if request.TransportLocator.PhysicalPort != 5100 {
		t.Fatalf("physical port = %d, want configured 5100", request.TransportLocator.PhysicalPort)
	}
}

func TestSendConnectionRequestFallsBackToPID(t *testing.T) {
	m, fake := newTestManager()
	ch := newTestChannel()
	if _, err := m.SendConnectionRequest(ch); err != nil {
		t.Fatalf("send connection request: %v", err)
	}
	frame := parseFrame(t, lastFrame(t, fake), false, true)
	var request protocol.ConnectionRequest
	if err := request.Deserialize(frame.payload); err != nil {
		t.Fatalf("deserialize request: %v", err)
	}
	if request.TransportLocator.PhysicalPort == 0 {
		t.Fatalf("fallback physical port not stamped")
	}
}

func TestFrameLengthConsistency(t *testing.T) {
	m, fake := newTestManager()
	ch := newTestChannel()
	fake.cfg.ListeningPorts = []uint16{5100}

	if _, err := m.SendConnectionRequest(ch); err != nil {
		t.Fatalf("send: %v", err)
	}
	m.SendUnbindConnectionRequest(ch)

	for _, raw := range fake.sent {
		header, err := protocol.DecodeTCPHeader(raw, protocol.DefaultEndian)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if int(header.Length) != len(raw) {
			t.Fatalf("TCPHeader.Length = %d, frame is %d bytes", header.Length, len(raw))
		}
		ctrl, err := protocol.DecodeControlHeader(raw[protocol.TCPHeaderSize:])
		if err != nil {
			t.Fatalf("decode control: %v", err)
		}
		if int(ctrl.Length) != len(raw)-protocol.TCPHeaderSize {
			t.Fatalf("ControlHeader.Length = %d, want %d", ctrl.Length, len(raw)-protocol.TCPHeaderSize)
		}
	}
}

func TestCRCDeterministicAndOptional(t *testing.T) {
	m, fake := newTestManager()
	fake.cfg.ListeningPorts = []uint16{5100}
	ch := newTestChannel()

	payload, err := protocol.KeepAliveRequest{Locator: ch.Locator()}.Serialize(protocol.DefaultEncapsulation)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	m.sendData(ch, protocol.KeepAliveRequestKind, 7, &payload, protocol.RetcodeVoid)
	m.sendData(ch, protocol.KeepAliveRequestKind, 7, &payload, protocol.RetcodeVoid)

	first := parseFrame(t, fake.sent[0], false, true)
	second := parseFrame(t, fake.sent[1], false, true)
	if first.header.CRC == 0 {
		t.Fatalf("CRC not computed with calculate_crc=true")
	}
	if first.header.CRC != second.header.CRC {
		t.Fatalf("CRC not deterministic: %d vs %d", first.header.CRC, second.header.CRC)
	}

	fake.cfg.CalculateCRC = false
	m.sendData(ch, protocol.KeepAliveRequestKind, 7, &payload, protocol.RetcodeVoid)
	third := parseFrame(t, fake.sent[2], false, true)
	if third.header.CRC != 0 {
		t.Fatalf("CRC = %d with calculate_crc=false", third.header.CRC)
	}
}

func TestUnbindFrameHasNoPayloadFlags(t *testing.T) {
	m, fake := newTestManager()
	ch := newTestChannel()
	m.SendUnbindConnectionRequest(ch)
	frame := parseFrame(t, lastFrame(t, fake), false, false)
	if frame.ctrl.Kind != protocol.UnbindConnectionRequest {
		t.Fatalf("kind = %s", frame.ctrl.Kind)
	}
	if frame.ctrl.HasPayload() || frame.ctrl.RequiresResponse() {
		t.Fatalf("unbind flags wrong: %02x", frame.ctrl.Flags)
	}
}
