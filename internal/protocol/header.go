package protocol

import "encoding/binary"

// Wire sizes of the two fixed headers and the response code field.
const (
	TCPHeaderSize     = 10
	ControlHeaderSize = 12
	ResponseCodeSize  = 4
)

// TCPHeader frames every message on the physical connection. logical_port 0
// marks control traffic; data traffic carries the negotiated logical port.
// Length counts the whole frame, this header included.
type TCPHeader struct {
	LogicalPort uint16
	Length      uint32
	CRC         uint32
}

// EncodeTCPHeader serializes h in the given byte order.
func EncodeTCPHeader(h TCPHeader, order binary.ByteOrder) []byte {
	buf := make([]byte, TCPHeaderSize)
	order.PutUint16(buf[0:2], h.LogicalPort)
	order.PutUint32(buf[2:6], h.Length)
	order.PutUint32(buf[6:10], h.CRC)
	return buf
}

// DecodeTCPHeader parses the outer frame header.
func DecodeTCPHeader(b []byte, order binary.ByteOrder) (TCPHeader, error) {
	if len(b) < TCPHeaderSize {
		return TCPHeader{}, ErrShortHeader
	}
	return TCPHeader{
		LogicalPort: order.Uint16(b[0:2]),
		Length:      order.Uint32(b[2:6]),
		CRC:         order.Uint32(b[6:10]),
	}, nil
}

// ControlHeader is the RTCP control message header. Length counts this
// header plus the optional response code and payload envelope.
type ControlHeader struct {
	Kind          Kind
	Flags         uint8
	Length        uint16
	TransactionID TransactionID
}

// Endianness returns the byte order declared by the flags.
func (h ControlHeader) Endianness() binary.ByteOrder {
	if h.Flags&FlagLittleEndian != 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// HasPayload reports the payload-present flag.
func (h ControlHeader) HasPayload() bool { return h.Flags&FlagHasPayload != 0 }

// RequiresResponse reports the response-required flag.
func (h ControlHeader) RequiresResponse() bool { return h.Flags&FlagRequiresResponse != 0 }

// EncodeControlHeader serializes h using the byte order its own flags declare.
func EncodeControlHeader(h ControlHeader) []byte {
	order := h.Endianness()
	buf := make([]byte, ControlHeaderSize)
	buf[0] = byte(h.Kind)
	buf[1] = h.Flags
	order.PutUint16(buf[2:4], h.Length)
	order.PutUint64(buf[4:12], uint64(h.TransactionID))
	return buf
}

// DecodeControlHeader parses a control header. Kind and flags are single
// bytes, so the endianness bit can be read before the multi-byte fields.
func DecodeControlHeader(b []byte) (ControlHeader, error) {
	if len(b) < ControlHeaderSize {
		return ControlHeader{}, ErrShortHeader
	}
	h := ControlHeader{Kind: Kind(b[0]), Flags: b[1]}
	order := h.Endianness()
	h.Length = order.Uint16(b[2:4])
	h.TransactionID = TransactionID(order.Uint64(b[4:12]))
	return h, nil
}
