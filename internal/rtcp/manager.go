// Package rtcp implements the RTPS-over-TCP control sub-protocol: building
// outbound control messages and dispatching inbound ones against per-channel
// connection state.
package rtcp

import (
	"encoding/binary"
	"os"

	"github.com/rs/zerolog"

	"github.com/danmuck/rtcpctl/internal/channel"
	"github.com/danmuck/rtcpctl/internal/locator"
	"github.com/danmuck/rtcpctl/internal/observability"
	"github.com/danmuck/rtcpctl/internal/protocol"
	"github.com/danmuck/rtcpctl/internal/transaction"
)

// Manager builds and dispatches RTCP control messages for every channel of
// one transport. The transaction registry is shared across those channels.
type Manager struct {
	transport Transport
	registry  *transaction.Registry
	log       zerolog.Logger
}

func NewManager(t Transport, logger zerolog.Logger) *Manager {
	return &Manager{
		transport: t,
		registry:  transaction.NewRegistry(),
		log:       logger,
	}
}

// Registry exposes the outstanding-transaction set.
func (m *Manager) Registry() *transaction.Registry { return m.registry }

// fillHeaders populates both wire headers for one outbound message and
// registers the transaction id for request kinds that expect a response.
func (m *Manager) fillHeaders(kind protocol.Kind, id protocol.TransactionID,
	payload *protocol.SerializedPayload, code protocol.ResponseCode) (protocol.TCPHeader, protocol.ControlHeader) {

	ctrl := protocol.ControlHeader{
		Kind:          kind,
		Length:        uint16(protocol.ControlHeaderSize),
		TransactionID: id,
	}
	if payload != nil {
		ctrl.Length += uint16(payload.WireSize())
	}
	if code != protocol.RetcodeVoid {
		ctrl.Length += protocol.ResponseCodeSize
	}

	switch kind {
	case protocol.BindConnectionRequest,
		protocol.OpenLogicalPortRequestKind,
		protocol.CheckLogicalPortRequest,
		protocol.KeepAliveRequestKind:
		ctrl.Flags = protocol.FlagHasPayload | protocol.FlagRequiresResponse
		m.registry.Add(id)
	case protocol.LogicalPortIsClosedRequestKind,
		protocol.BindConnectionResponseKind,
		protocol.CheckLogicalPortResponse:
		ctrl.Flags = protocol.FlagHasPayload
	case protocol.OpenLogicalPortResponse,
		protocol.KeepAliveResponse,
		protocol.UnbindConnectionRequest:
		ctrl.Flags = 0
	}
	if protocol.DefaultEndian == binary.LittleEndian {
		ctrl.Flags |= protocol.FlagLittleEndian
	}

	header := protocol.TCPHeader{
		LogicalPort: 0,
		Length:      uint32(ctrl.Length) + protocol.TCPHeaderSize,
	}
	return header, ctrl
}

// sendData assembles one control message and hands it to the transport.
// Returns true when the transport accepted any bytes.
func (m *Manager) sendData(ch *channel.Channel, kind protocol.Kind, id protocol.TransactionID,
	payload *protocol.SerializedPayload, code protocol.ResponseCode) bool {

	header, ctrl := m.fillHeaders(kind, id, payload, code)
	order := ctrl.Endianness()

	ctrlBytes := protocol.EncodeControlHeader(ctrl)
	var codeBytes, envBytes []byte
	if code != protocol.RetcodeVoid {
		codeBytes = make([]byte, protocol.ResponseCodeSize)
		order.PutUint32(codeBytes, uint32(code))
	}
	if payload != nil {
		envBytes = protocol.EncodeEnvelope(*payload, order)
	}

	if m.transport.Configuration().CalculateCRC {
		header.CRC = protocol.Checksum(ctrlBytes, codeBytes, envBytes)
	}

	buf := make([]byte, 0, header.Length)
	buf = append(buf, protocol.EncodeTCPHeader(header, order)...)
	buf = append(buf, ctrlBytes...)
	buf = append(buf, codeBytes...)
	buf = append(buf, envBytes...)

	sent, err := m.transport.Send(ch, buf)
	if err != nil {
		m.log.Warn().Err(err).Str("kind", kind.String()).Msg("send failed")
		return false
	}
	if sent != len(buf) {
		m.log.Warn().Int("sent", sent).Int("want", len(buf)).Msg("bad sent size")
	}
	observability.RecordControlSent(kind.String())
	return sent > 0
}

// SendConnectionRequest starts the bind handshake on a freshly connected
// channel and moves it to WaitingForBindResponse.
func (m *Manager) SendConnectionRequest(ch *channel.Channel) (protocol.TransactionID, error) {
	loc, err := locator.FromTCPAddr(ch.LocalAddr())
	if err != nil {
		return 0, err
	}

	cfg := m.transport.Configuration()
	if len(cfg.ListeningPorts) > 0 {
		loc.PhysicalPort = cfg.ListeningPorts[0]
	} else {
		// No listening port configured: the process id, truncated to 16
		// bits, stands in as the advertised physical port.
		loc.PhysicalPort = uint16(os.Getpid())
	}
	if loc.Kind == locator.KindTCPv4 {
		loc.SetWAN(cfg.WAN())
	}

	request := protocol.ConnectionRequest{
		ProtocolVersion:  protocol.RTCPProtocolVersion,
		TransportLocator: loc,
	}
	payload, err := request.Serialize(protocol.DefaultEncapsulation)
	if err != nil {
		return 0, err
	}

	m.log.Info().Uint16("physical_port", loc.PhysicalPort).Msg("send BIND_CONNECTION_REQUEST")
	id := m.registry.Next()
	m.sendData(ch, protocol.BindConnectionRequest, id, &payload, protocol.RetcodeVoid)
	ch.ChangeStatus(channel.WaitingForBindResponse)
	return id, nil
}

// SendOpenLogicalPortRequest asks the peer to open one logical port and
// records the port against the transaction for the response handler.
func (m *Manager) SendOpenLogicalPortRequest(ch *channel.Channel, port uint16) (protocol.TransactionID, error) {
	request := protocol.OpenLogicalPortRequest{LogicalPort: port}
	payload, err := request.Serialize(protocol.DefaultEncapsulation)
	if err != nil {
		return 0, err
	}
	m.log.Info().Uint16("logical_port", port).Msg("send OPEN_LOGICAL_PORT_REQUEST")
	id := m.registry.Next()
	ch.AddPendingLogicalPort(port)
	ch.SetNegotiatingLogicalPort(id, port)
	m.sendData(ch, protocol.OpenLogicalPortRequestKind, id, &payload, protocol.RetcodeVoid)
	return id, nil
}

// SendCheckLogicalPortsRequest probes which of the given ports the peer has
// open.
func (m *Manager) SendCheckLogicalPortsRequest(ch *channel.Channel, ports []uint16) (protocol.TransactionID, error) {
	request := protocol.CheckLogicalPortsRequest{LogicalPortsRange: ports}
	payload, err := request.Serialize(protocol.DefaultEncapsulation)
	if err != nil {
		return 0, err
	}
	m.log.Info().Msg("send CHECK_LOGICAL_PORT_REQUEST")
	id := m.registry.Next()
	m.sendData(ch, protocol.CheckLogicalPortRequest, id, &payload, protocol.RetcodeVoid)
	return id, nil
}

// SendKeepAliveRequest asserts liveliness for the channel's bound locator.
func (m *Manager) SendKeepAliveRequest(ch *channel.Channel) (protocol.TransactionID, error) {
	request := protocol.KeepAliveRequest{Locator: ch.Locator()}
	payload, err := request.Serialize(protocol.DefaultEncapsulation)
	if err != nil {
		return 0, err
	}
	m.log.Debug().Msg("send KEEP_ALIVE_REQUEST")
	id := m.registry.Next()
	m.sendData(ch, protocol.KeepAliveRequestKind, id, &payload, protocol.RetcodeVoid)
	return id, nil
}

// SendLogicalPortIsClosedRequest notifies the peer a local logical port went
// away. The peer does not answer.
func (m *Manager) SendLogicalPortIsClosedRequest(ch *channel.Channel, port uint16) (protocol.TransactionID, error) {
	request := protocol.LogicalPortIsClosedRequest{LogicalPort: port}
	payload, err := request.Serialize(protocol.DefaultEncapsulation)
	if err != nil {
		return 0, err
	}
	m.log.Info().Uint16("logical_port", port).Msg("send LOGICAL_PORT_IS_CLOSED_REQUEST")
	id := m.registry.Next()
	m.sendData(ch, protocol.LogicalPortIsClosedRequestKind, id, &payload, protocol.RetcodeVoid)
	return id, nil
}

// SendUnbindConnectionRequest announces an orderly teardown.
func (m *Manager) SendUnbindConnectionRequest(ch *channel.Channel) protocol.TransactionID {
	m.log.Info().Msg("send UNBIND_CONNECTION_REQUEST")
	id := m.registry.Next()
	m.sendData(ch, protocol.UnbindConnectionRequest, id, nil, protocol.RetcodeVoid)
	return id
}

func (m *Manager) isCompatibleProtocol(v protocol.ProtocolVersion) bool {
	return v == protocol.RTCPProtocolVersion
}
