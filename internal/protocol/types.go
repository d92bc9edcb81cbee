package protocol

import "encoding/binary"

// Kind identifies one RTCP control message.
type Kind uint8

// Control message kinds. Wire values are fixed by the protocol.
const (
	BindConnectionRequest      Kind = 0xD1
	BindConnectionResponseKind Kind = 0xE1
	OpenLogicalPortRequestKind Kind = 0xD2
	OpenLogicalPortResponse    Kind = 0xE2
	CheckLogicalPortRequest    Kind = 0xD3
	CheckLogicalPortResponse   Kind = 0xE3
	KeepAliveRequestKind       Kind = 0xD4
	KeepAliveResponse          Kind = 0xE4
	LogicalPortIsClosedRequestKind Kind = 0xD5
	UnbindConnectionRequest    Kind = 0xD6
)

func (k Kind) String() string {
	switch k {
	case BindConnectionRequest:
		return "BIND_CONNECTION_REQUEST"
	case BindConnectionResponseKind:
		return "BIND_CONNECTION_RESPONSE"
	case OpenLogicalPortRequestKind:
		return "OPEN_LOGICAL_PORT_REQUEST"
	case OpenLogicalPortResponse:
		return "OPEN_LOGICAL_PORT_RESPONSE"
	case CheckLogicalPortRequest:
		return "CHECK_LOGICAL_PORT_REQUEST"
	case CheckLogicalPortResponse:
		return "CHECK_LOGICAL_PORT_RESPONSE"
	case KeepAliveRequestKind:
		return "KEEP_ALIVE_REQUEST"
	case KeepAliveResponse:
		return "KEEP_ALIVE_RESPONSE"
	case LogicalPortIsClosedRequestKind:
		return "LOGICAL_PORT_IS_CLOSED_REQUEST"
	case UnbindConnectionRequest:
		return "UNBIND_CONNECTION_REQUEST"
	}
	return "UNKNOWN"
}

// ResponseCode is the status carried by RTCP responses.
type ResponseCode uint32

const (
	RetcodeOK                  ResponseCode = 0
	RetcodeExistingConnection  ResponseCode = 1
	RetcodeBadRequest          ResponseCode = 2
	RetcodeInvalidPort         ResponseCode = 3
	RetcodeIncompatibleVersion ResponseCode = 4
	RetcodeServerError         ResponseCode = 5
	RetcodeUnknownLocator      ResponseCode = 6

	// RetcodeVoid marks "no response code field"; never serialized.
	RetcodeVoid ResponseCode = 0xFFFFFFFF
)

func (c ResponseCode) String() string {
	switch c {
	case RetcodeOK:
		return "OK"
	case RetcodeExistingConnection:
		return "EXISTING_CONNECTION"
	case RetcodeBadRequest:
		return "BAD_REQUEST"
	case RetcodeInvalidPort:
		return "INVALID_PORT"
	case RetcodeIncompatibleVersion:
		return "INCOMPATIBLE_VERSION"
	case RetcodeServerError:
		return "SERVER_ERROR"
	case RetcodeUnknownLocator:
		return "UNKNOWN_LOCATOR"
	case RetcodeVoid:
		return "VOID"
	}
	return "UNKNOWN"
}

// TransactionID correlates a request with its response.
type TransactionID uint64

// ProtocolVersion is the RTCP protocol revision pair.
type ProtocolVersion struct {
	Major uint8
	Minor uint8
}

// RTCPProtocolVersion is the revision this implementation speaks. Any other
// version in a bind request is rejected with INCOMPATIBLE_VERSION.
var RTCPProtocolVersion = ProtocolVersion{Major: 1, Minor: 0}

// Flag bits of the control header. Bit0 carries endianness (set = little),
// bit1 payload presence, bit2 whether the peer must answer.
const (
	FlagLittleEndian     uint8 = 0x01
	FlagHasPayload       uint8 = 0x02
	FlagRequiresResponse uint8 = 0x04
)

// Payload encapsulation identifiers, PL_CDR big- and little-endian.
const (
	EncapsulationPLCDRBE uint16 = 0x0002
	EncapsulationPLCDRLE uint16 = 0x0003
)

// DefaultEndian is the byte order stamped on outbound frames.
var DefaultEndian binary.ByteOrder = binary.LittleEndian

// DefaultEncapsulation matches DefaultEndian.
const DefaultEncapsulation = EncapsulationPLCDRLE
