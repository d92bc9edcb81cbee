package rtcp

import (
	"github.com/danmuck/rtcpctl/internal/channel"
	"github.com/danmuck/rtcpctl/internal/locator"
	"github.com/danmuck/rtcpctl/internal/observability"
	"github.com/danmuck/rtcpctl/internal/protocol"
)

// ProcessRTCPMessage parses one inbound control frame (TCP header already
// stripped) and runs the per-kind handler. The returned code is local
// policy for the caller: INCOMPATIBLE_VERSION and UNKNOWN_LOCATOR mean the
// channel should be closed; everything else leaves it open.
func (m *Manager) ProcessRTCPMessage(ch *channel.Channel, buf []byte) protocol.ResponseCode {
	ctrl, err := protocol.DecodeControlHeader(buf)
	if err != nil {
		m.log.Warn().Int("size", len(buf)).Msg("control frame shorter than header")
		observability.RecordBadFrame()
		return protocol.RetcodeOK
	}

	dataSize := int(ctrl.Length) - protocol.ControlHeaderSize

	// Message size checking.
	if dataSize < 0 || dataSize+protocol.ControlHeaderSize != len(buf) {
		observability.RecordBadFrame()
		m.sendData(ch, ctrl.Kind, ctrl.TransactionID, nil, protocol.RetcodeBadRequest)
		return protocol.RetcodeOK
	}

	observability.RecordControlReceived(ctrl.Kind.String())
	order := ctrl.Endianness()
	body := buf[protocol.ControlHeaderSize:]

	switch ctrl.Kind {
	case protocol.BindConnectionRequest:
		var request protocol.ConnectionRequest
		payload, err := protocol.DecodeEnvelope(body, order)
		if err == nil {
			err = request.Deserialize(payload)
		}
		if err != nil {
			m.log.Warn().Err(err).Msg("malformed BIND_CONNECTION_REQUEST")
			m.sendData(ch, ctrl.Kind, ctrl.TransactionID, nil, protocol.RetcodeBadRequest)
			return protocol.RetcodeOK
		}
		m.log.Info().
			Uint16("logical_port", request.TransportLocator.LogicalPort).
			Uint16("physical_remote", request.TransportLocator.PhysicalPort).
			Msg("receive BIND_CONNECTION_REQUEST")
		return m.processBindConnectionRequest(ch, request, ctrl.TransactionID)

	case protocol.BindConnectionResponseKind:
		if len(body) < protocol.ResponseCodeSize {
			m.sendData(ch, ctrl.Kind, ctrl.TransactionID, nil, protocol.RetcodeBadRequest)
			return protocol.RetcodeOK
		}
		respCode := protocol.ResponseCode(order.Uint32(body))
		var response protocol.BindConnectionResponse
		payload, err := protocol.DecodeEnvelope(body[protocol.ResponseCodeSize:], order)
		if err == nil {
			err = response.Deserialize(payload)
		}
		if err != nil {
			m.log.Warn().Err(err).Msg("malformed BIND_CONNECTION_RESPONSE")
			return protocol.RetcodeOK
		}
		m.log.Info().
			Str("code", respCode.String()).
			Uint16("logical_port", response.Locator.LogicalPort).
			Msg("receive BIND_CONNECTION_RESPONSE")
		return m.processBindConnectionResponse(ch, response, respCode, ctrl.TransactionID)

	case protocol.OpenLogicalPortRequestKind:
		var request protocol.OpenLogicalPortRequest
		payload, err := protocol.DecodeEnvelope(body, order)
		if err == nil {
			err = request.Deserialize(payload)
		}
		if err != nil {
			m.sendData(ch, ctrl.Kind, ctrl.TransactionID, nil, protocol.RetcodeBadRequest)
			return protocol.RetcodeOK
		}
		m.log.Info().Uint16("logical_port", request.LogicalPort).Msg("receive OPEN_LOGICAL_PORT_REQUEST")
		return m.processOpenLogicalPortRequest(ch, request, ctrl.TransactionID)

	case protocol.CheckLogicalPortRequest:
		var request protocol.CheckLogicalPortsRequest
		payload, err := protocol.DecodeEnvelope(body, order)
		if err == nil {
			err = request.Deserialize(payload)
		}
		if err != nil {
			m.sendData(ch, ctrl.Kind, ctrl.TransactionID, nil, protocol.RetcodeBadRequest)
			return protocol.RetcodeOK
		}
		m.log.Info().Msg("receive CHECK_LOGICAL_PORT_REQUEST")
		m.processCheckLogicalPortsRequest(ch, request, ctrl.TransactionID)
		return protocol.RetcodeOK

	case protocol.CheckLogicalPortResponse:
		if len(body) < protocol.ResponseCodeSize {
			return protocol.RetcodeOK
		}
		var response protocol.CheckLogicalPortsResponse
		payload, err := protocol.DecodeEnvelope(body[protocol.ResponseCodeSize:], order)
		if err == nil {
			err = response.Deserialize(payload)
		}
		if err != nil {
			m.log.Warn().Err(err).Msg("malformed CHECK_LOGICAL_PORT_RESPONSE")
			return protocol.RetcodeOK
		}
		m.log.Info().Msg("receive CHECK_LOGICAL_PORT_RESPONSE")
		m.processCheckLogicalPortsResponse(ch, response, ctrl.TransactionID)
		return protocol.RetcodeOK

	case protocol.KeepAliveRequestKind:
		var request protocol.KeepAliveRequest
		payload, err := protocol.DecodeEnvelope(body, order)
		if err == nil {
			err = request.Deserialize(payload)
		}
		if err != nil {
			m.sendData(ch, ctrl.Kind, ctrl.TransactionID, nil, protocol.RetcodeBadRequest)
			return protocol.RetcodeOK
		}
		m.log.Debug().Msg("receive KEEP_ALIVE_REQUEST")
		return m.processKeepAliveRequest(ch, request, ctrl.TransactionID)

	case protocol.KeepAliveResponse:
		if len(body) < protocol.ResponseCodeSize {
			return protocol.RetcodeOK
		}
		respCode := protocol.ResponseCode(order.Uint32(body))
		m.log.Debug().Str("code", respCode.String()).Msg("receive KEEP_ALIVE_RESPONSE")
		return m.processKeepAliveResponse(ch, respCode, ctrl.TransactionID)

	case protocol.LogicalPortIsClosedRequestKind:
		var request protocol.LogicalPortIsClosedRequest
		payload, err := protocol.DecodeEnvelope(body, order)
		if err == nil {
			err = request.Deserialize(payload)
		}
		if err != nil {
			m.sendData(ch, ctrl.Kind, ctrl.TransactionID, nil, protocol.RetcodeBadRequest)
			return protocol.RetcodeOK
		}
		m.log.Info().Uint16("logical_port", request.LogicalPort).Msg("receive LOGICAL_PORT_IS_CLOSED_REQUEST")
		m.processLogicalPortIsClosedRequest(ch, request, ctrl.TransactionID)
		return protocol.RetcodeOK

	case protocol.OpenLogicalPortResponse:
		// This kind never carries a payload envelope, only the code.
		if len(body) < protocol.ResponseCodeSize {
			return protocol.RetcodeOK
		}
		respCode := protocol.ResponseCode(order.Uint32(body))
		m.log.Info().Str("code", respCode.String()).Msg("receive OPEN_LOGICAL_PORT_RESPONSE")
		m.processOpenLogicalPortResponse(ch, respCode, ctrl.TransactionID)
		return protocol.RetcodeOK

	case protocol.UnbindConnectionRequest:
		m.log.Info().Msg("receive UNBIND_CONNECTION_REQUEST")
		m.transport.CloseChannel(ch)
		return protocol.RetcodeOK

	default:
		m.sendData(ch, ctrl.Kind, ctrl.TransactionID, nil, protocol.RetcodeBadRequest)
		return protocol.RetcodeOK
	}
}

func (m *Manager) processBindConnectionRequest(ch *channel.Channel,
	request protocol.ConnectionRequest, id protocol.TransactionID) protocol.ResponseCode {

	localLocator, err := locator.FromTCPAddr(ch.LocalAddr())
	if err != nil {
		m.log.Warn().Err(err).Msg("cannot build local locator")
		return protocol.RetcodeServerError
	}
	if localLocator.Kind == locator.KindTCPv4 {
		localLocator.SetWAN(m.transport.Configuration().WAN())
	}

	response := protocol.BindConnectionResponse{Locator: localLocator}
	payload, err := response.Serialize(protocol.DefaultEncapsulation)
	if err != nil {
		return protocol.RetcodeServerError
	}

	if !m.isCompatibleProtocol(request.ProtocolVersion) {
		m.sendData(ch, protocol.BindConnectionResponseKind, id, &payload, protocol.RetcodeIncompatibleVersion)
		m.log.Warn().
			Uint8("major", request.ProtocolVersion.Major).
			Uint8("minor", request.ProtocolVersion.Minor).
			Msg("rejected client due to INCOMPATIBLE_VERSION")
		return protocol.RetcodeIncompatibleVersion
	}

	code := ch.ProcessBindRequest(request.TransportLocator)
	m.sendData(ch, protocol.BindConnectionResponseKind, id, &payload, code)
	return protocol.RetcodeOK
}

func (m *Manager) processBindConnectionResponse(ch *channel.Channel,
	response protocol.BindConnectionResponse, respCode protocol.ResponseCode,
	id protocol.TransactionID) protocol.ResponseCode {

	switch respCode {
	case protocol.RetcodeOK, protocol.RetcodeExistingConnection:
		orphan := false
		established := ch.TryEstablish(func() bool {
			if !m.registry.Find(id) {
				orphan = true
				return false
			}
			return true
		})
		if established {
			ch.SetLocator(response.Locator)
			m.log.Info().
				Uint16("physical_port", response.Locator.PhysicalPort).
				Msg("connection established")
			m.registry.Remove(id)
		}
		if orphan {
			m.log.Warn().Uint64("transaction_id", uint64(id)).
				Msg("BIND_CONNECTION_RESPONSE with an invalid transaction id")
		}
		return protocol.RetcodeOK
	case protocol.RetcodeIncompatibleVersion:
		m.log.Error().Msg("received INCOMPATIBLE_VERSION from server")
		return respCode
	default:
		return respCode
	}
}

func (m *Manager) processOpenLogicalPortRequest(ch *channel.Channel,
	request protocol.OpenLogicalPortRequest, id protocol.TransactionID) protocol.ResponseCode {

	if !ch.ConnectionEstablished() {
		// Same response kind the check handler uses; peers key on it.
		m.sendData(ch, protocol.CheckLogicalPortResponse, id, nil, protocol.RetcodeServerError)
	} else if request.LogicalPort == 0 || !m.transport.IsInputPortOpen(request.LogicalPort) {
		m.log.Info().Uint16("logical_port", request.LogicalPort).Msg("logical port not found")
		m.sendData(ch, protocol.OpenLogicalPortResponse, id, nil, protocol.RetcodeInvalidPort)
	} else {
		m.log.Info().Uint16("logical_port", request.LogicalPort).Msg("logical port found")
		m.sendData(ch, protocol.OpenLogicalPortResponse, id, nil, protocol.RetcodeOK)
	}
	return protocol.RetcodeOK
}

func (m *Manager) processCheckLogicalPortsRequest(ch *channel.Channel,
	request protocol.CheckLogicalPortsRequest, id protocol.TransactionID) {

	if !ch.ConnectionEstablished() {
		m.sendData(ch, protocol.CheckLogicalPortResponse, id, nil, protocol.RetcodeServerError)
		return
	}

	var response protocol.CheckLogicalPortsResponse
	if len(request.LogicalPortsRange) == 0 {
		m.log.Warn().Msg("no available logical ports")
	} else {
		for _, port := range request.LogicalPortsRange {
			if !m.transport.IsInputPortOpen(port) {
				continue
			}
			if port == 0 {
				m.log.Info().Msg("found opened logical port 0, but will not be considered")
				continue
			}
			m.log.Info().Uint16("logical_port", port).Msg("found opened logical port")
			response.AvailableLogicalPorts = append(response.AvailableLogicalPorts, port)
		}
	}

	payload, err := response.Serialize(protocol.DefaultEncapsulation)
	if err != nil {
		m.sendData(ch, protocol.CheckLogicalPortResponse, id, nil, protocol.RetcodeServerError)
		return
	}
	m.sendData(ch, protocol.CheckLogicalPortResponse, id, &payload, protocol.RetcodeOK)
}

func (m *Manager) processCheckLogicalPortsResponse(ch *channel.Channel,
	response protocol.CheckLogicalPortsResponse, id protocol.TransactionID) {

	if !m.registry.Find(id) {
		m.log.Warn().Uint64("transaction_id", uint64(id)).
			Msg("CHECK_LOGICAL_PORT_RESPONSE with an invalid transaction id")
		return
	}
	next, ok := ch.ProcessCheckLogicalPortsResponse(id, response.AvailableLogicalPorts)
	m.registry.Remove(id)
	if ok {
		if _, err := m.SendOpenLogicalPortRequest(ch, next); err != nil {
			m.log.Warn().Err(err).Uint16("logical_port", next).Msg("cannot request alternate port")
		}
	}
}

func (m *Manager) processOpenLogicalPortResponse(ch *channel.Channel,
	respCode protocol.ResponseCode, id protocol.TransactionID) {

	if !m.registry.Find(id) {
		m.log.Warn().Uint64("transaction_id", uint64(id)).
			Msg("OPEN_LOGICAL_PORT_RESPONSE with an invalid transaction id")
		return
	}
	switch respCode {
	case protocol.RetcodeOK:
		m.nextLogicalPort(ch, id, true)
	case protocol.RetcodeInvalidPort:
		m.nextLogicalPort(ch, id, false)
	default:
		m.log.Warn().Str("code", respCode.String()).Msg("OPEN_LOGICAL_PORT_RESPONSE with error code")
	}
	m.registry.Remove(id)
}

func (m *Manager) nextLogicalPort(ch *channel.Channel, id protocol.TransactionID, accepted bool) {
	next, ok := ch.AddLogicalPortResponse(id, accepted)
	if !ok {
		return
	}
	if _, err := m.SendOpenLogicalPortRequest(ch, next); err != nil {
		m.log.Warn().Err(err).Uint16("logical_port", next).Msg("cannot request next pending port")
	}
}

func (m *Manager) processKeepAliveRequest(ch *channel.Channel,
	request protocol.KeepAliveRequest, id protocol.TransactionID) protocol.ResponseCode {

	if !ch.ConnectionEstablished() {
		m.sendData(ch, protocol.KeepAliveResponse, id, nil, protocol.RetcodeServerError)
	} else if ch.Locator().LogicalPort == request.Locator.LogicalPort {
		m.sendData(ch, protocol.KeepAliveResponse, id, nil, protocol.RetcodeOK)
	} else {
		m.sendData(ch, protocol.KeepAliveResponse, id, nil, protocol.RetcodeUnknownLocator)
		return protocol.RetcodeUnknownLocator
	}
	return protocol.RetcodeOK
}

func (m *Manager) processKeepAliveResponse(ch *channel.Channel,
	respCode protocol.ResponseCode, id protocol.TransactionID) protocol.ResponseCode {

	if !m.registry.Find(id) {
		m.log.Warn().Uint64("transaction_id", uint64(id)).
			Msg("KEEP_ALIVE_RESPONSE with an unexpected transaction id")
		return protocol.RetcodeOK
	}
	switch respCode {
	case protocol.RetcodeOK:
		ch.SetWaitingForKeepAlive(false)
	case protocol.RetcodeUnknownLocator:
		// The transaction stays outstanding; the caller closes the channel.
		return protocol.RetcodeUnknownLocator
	}
	m.registry.Remove(id)
	return protocol.RetcodeOK
}

func (m *Manager) processLogicalPortIsClosedRequest(ch *channel.Channel,
	request protocol.LogicalPortIsClosedRequest, id protocol.TransactionID) {

	if !ch.ConnectionEstablished() {
		// Same response kind the check handler uses; peers key on it.
		m.sendData(ch, protocol.CheckLogicalPortResponse, id, nil, protocol.RetcodeServerError)
		return
	}
	ch.SetLogicalPortPending(request.LogicalPort)
}
