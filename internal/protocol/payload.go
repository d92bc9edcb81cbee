package protocol

import "encoding/binary"

// EnvelopePrefixSize covers the encapsulation and length fields that precede
// the payload data on the wire.
const EnvelopePrefixSize = 6

// MaxPayloadSize bounds decode allocations for a single control message.
const MaxPayloadSize = 64 * 1024

// SerializedPayload is the payload envelope: an encapsulation identifier
// selecting the byte order of the serialized body, and the body octets.
type SerializedPayload struct {
	Encapsulation uint16
	Data          []byte
}

// Order returns the byte order the encapsulation declares for Data.
func (p SerializedPayload) Order() (binary.ByteOrder, error) {
	switch p.Encapsulation {
	case EncapsulationPLCDRBE:
		return binary.BigEndian, nil
	case EncapsulationPLCDRLE:
		return binary.LittleEndian, nil
	}
	return nil, ErrBadEncapsulation
}

// WireSize is the envelope's size on the wire: prefix plus data.
func (p SerializedPayload) WireSize() int { return EnvelopePrefixSize + len(p.Data) }

// EncodeEnvelope serializes the envelope. The prefix fields use the message
// byte order; the data bytes were already laid out per the encapsulation.
func EncodeEnvelope(p SerializedPayload, order binary.ByteOrder) []byte {
	buf := make([]byte, p.WireSize())
	order.PutUint16(buf[0:2], p.Encapsulation)
	order.PutUint32(buf[2:6], uint32(len(p.Data)))
	copy(buf[EnvelopePrefixSize:], p.Data)
	return buf
}

// DecodeEnvelope parses a payload envelope from b.
func DecodeEnvelope(b []byte, order binary.ByteOrder) (SerializedPayload, error) {
	if len(b) < EnvelopePrefixSize {
		return SerializedPayload{}, ErrTruncatedPayload
	}
	length := order.Uint32(b[2:6])
	if length > MaxPayloadSize {
		return SerializedPayload{}, ErrPayloadTooLarge
	}
	if int(length) > len(b)-EnvelopePrefixSize {
		return SerializedPayload{}, ErrTruncatedPayload
	}
	data := make([]byte, length)
	copy(data, b[EnvelopePrefixSize:EnvelopePrefixSize+int(length)])
	return SerializedPayload{
		Encapsulation: order.Uint16(b[0:2]),
		Data:          data,
	}, nil
}
