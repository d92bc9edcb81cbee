package protocol

import (
	"encoding/binary"

	"github.com/danmuck/rtcpctl/internal/locator"
)

// Wire layout of a locator inside a message body: kind u32, port u32 with
// the logical port in the upper half and the physical port in the lower,
// then the 16 address bytes.
const locatorWireSize = 4 + 4 + locator.AddressSize

func putLocator(buf []byte, order binary.ByteOrder, loc locator.Locator) {
	order.PutUint32(buf[0:4], uint32(loc.Kind))
	order.PutUint32(buf[4:8], uint32(loc.LogicalPort)<<16|uint32(loc.PhysicalPort))
	copy(buf[8:8+locator.AddressSize], loc.Address[:])
}

func getLocator(buf []byte, order binary.ByteOrder) locator.Locator {
	var loc locator.Locator
	loc.Kind = int32(order.Uint32(buf[0:4]))
	port := order.Uint32(buf[4:8])
	loc.LogicalPort = uint16(port >> 16)
	loc.PhysicalPort = uint16(port)
	copy(loc.Address[:], buf[8:8+locator.AddressSize])
	return loc
}

func orderFor(encapsulation uint16) (binary.ByteOrder, error) {
	return SerializedPayload{Encapsulation: encapsulation}.Order()
}

// ConnectionRequest opens the bind handshake: the protocol revision the
// sender speaks and the locator it advertises for itself.
type ConnectionRequest struct {
	ProtocolVersion  ProtocolVersion
	TransportLocator locator.Locator
}

// Serialize lays the request out per the given encapsulation. The
// advertised locator must carry a physical port.
func (r ConnectionRequest) Serialize(encapsulation uint16) (SerializedPayload, error) {
	order, err := orderFor(encapsulation)
	if err != nil {
		return SerializedPayload{}, err
	}
	if r.TransportLocator.PhysicalPort == 0 {
		return SerializedPayload{}, ErrMissingPhysicalPort
	}
	buf := make([]byte, 2+locatorWireSize)
	buf[0] = r.ProtocolVersion.Major
	buf[1] = r.ProtocolVersion.Minor
	putLocator(buf[2:], order, r.TransportLocator)
	return SerializedPayload{Encapsulation: encapsulation, Data: buf}, nil
}

func (r *ConnectionRequest) Deserialize(p SerializedPayload) error {
	order, err := p.Order()
	if err != nil {
		return err
	}
	if len(p.Data) < 2+locatorWireSize {
		return ErrTruncatedPayload
	}
	r.ProtocolVersion = ProtocolVersion{Major: p.Data[0], Minor: p.Data[1]}
	r.TransportLocator = getLocator(p.Data[2:], order)
	return nil
}

// BindConnectionResponse carries the responder's own locator.
type BindConnectionResponse struct {
	Locator locator.Locator
}

func (r BindConnectionResponse) Serialize(encapsulation uint16) (SerializedPayload, error) {
	order, err := orderFor(encapsulation)
	if err != nil {
		return SerializedPayload{}, err
	}
	buf := make([]byte, locatorWireSize)
	putLocator(buf, order, r.Locator)
	return SerializedPayload{Encapsulation: encapsulation, Data: buf}, nil
}

func (r *BindConnectionResponse) Deserialize(p SerializedPayload) error {
	order, err := p.Order()
	if err != nil {
		return err
	}
	if len(p.Data) < locatorWireSize {
		return ErrTruncatedPayload
	}
	r.Locator = getLocator(p.Data, order)
	return nil
}

// OpenLogicalPortRequest asks the peer to accept one logical port.
type OpenLogicalPortRequest struct {
	LogicalPort uint16
}

func (r OpenLogicalPortRequest) Serialize(encapsulation uint16) (SerializedPayload, error) {
	order, err := orderFor(encapsulation)
	if err != nil {
		return SerializedPayload{}, err
	}
	buf := make([]byte, 2)
	order.PutUint16(buf, r.LogicalPort)
	return SerializedPayload{Encapsulation: encapsulation, Data: buf}, nil
}

func (r *OpenLogicalPortRequest) Deserialize(p SerializedPayload) error {
	order, err := p.Order()
	if err != nil {
		return err
	}
	if len(p.Data) < 2 {
		return ErrTruncatedPayload
	}
	r.LogicalPort = order.Uint16(p.Data)
	return nil
}

// CheckLogicalPortsRequest probes which of a range of logical ports the
// peer has open.
type CheckLogicalPortsRequest struct {
	LogicalPortsRange []uint16
}

func serializePortList(ports []uint16, encapsulation uint16) (SerializedPayload, error) {
	order, err := orderFor(encapsulation)
	if err != nil {
		return SerializedPayload{}, err
	}
	buf := make([]byte, 4+2*len(ports))
	order.PutUint32(buf[0:4], uint32(len(ports)))
	for i, port := range ports {
		order.PutUint16(buf[4+2*i:], port)
	}
	return SerializedPayload{Encapsulation: encapsulation, Data: buf}, nil
}

func deserializePortList(p SerializedPayload) ([]uint16, error) {
	order, err := p.Order()
	if err != nil {
		return nil, err
	}
	if len(p.Data) < 4 {
		return nil, ErrTruncatedPayload
	}
	count := order.Uint32(p.Data[0:4])
	if int(count) > (len(p.Data)-4)/2 {
		return nil, ErrTruncatedPayload
	}
	ports := make([]uint16, count)
	for i := range ports {
		ports[i] = order.Uint16(p.Data[4+2*i:])
	}
	return ports, nil
}

func (r CheckLogicalPortsRequest) Serialize(encapsulation uint16) (SerializedPayload, error) {
	return serializePortList(r.LogicalPortsRange, encapsulation)
}

func (r *CheckLogicalPortsRequest) Deserialize(p SerializedPayload) error {
	ports, err := deserializePortList(p)
	if err != nil {
		return err
	}
	r.LogicalPortsRange = ports
	return nil
}

// CheckLogicalPortsResponse lists the probed ports found open.
type CheckLogicalPortsResponse struct {
	AvailableLogicalPorts []uint16
}

func (r CheckLogicalPortsResponse) Serialize(encapsulation uint16) (SerializedPayload, error) {
	return serializePortList(r.AvailableLogicalPorts, encapsulation)
}

func (r *CheckLogicalPortsResponse) Deserialize(p SerializedPayload) error {
	ports, err := deserializePortList(p)
	if err != nil {
		return err
	}
	r.AvailableLogicalPorts = ports
	return nil
}

// KeepAliveRequest asserts liveliness for the locator bound on the channel.
type KeepAliveRequest struct {
	Locator locator.Locator
}

func (r KeepAliveRequest) Serialize(encapsulation uint16) (SerializedPayload, error) {
	order, err := orderFor(encapsulation)
	if err != nil {
		return SerializedPayload{}, err
	}
	buf := make([]byte, locatorWireSize)
	putLocator(buf, order, r.Locator)
	return SerializedPayload{Encapsulation: encapsulation, Data: buf}, nil
}

func (r *KeepAliveRequest) Deserialize(p SerializedPayload) error {
	order, err := p.Order()
	if err != nil {
		return err
	}
	if len(p.Data) < locatorWireSize {
		return ErrTruncatedPayload
	}
	r.Locator = getLocator(p.Data, order)
	return nil
}

// LogicalPortIsClosedRequest notifies the peer a logical port went away.
type LogicalPortIsClosedRequest struct {
	LogicalPort uint16
}

func (r LogicalPortIsClosedRequest) Serialize(encapsulation uint16) (SerializedPayload, error) {
	order, err := orderFor(encapsulation)
	if err != nil {
		return SerializedPayload{}, err
	}
	buf := make([]byte, 2)
	order.PutUint16(buf, r.LogicalPort)
	return SerializedPayload{Encapsulation: encapsulation, Data: buf}, nil
}

func (r *LogicalPortIsClosedRequest) Deserialize(p SerializedPayload) error {
	order, err := p.Order()
	if err != nil {
		return err
	}
	if len(p.Data) < 2 {
		return ErrTruncatedPayload
	}
	r.LogicalPort = order.Uint16(p.Data)
	return nil
}
