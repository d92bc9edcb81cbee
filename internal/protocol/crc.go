package protocol

const crcMax = uint32(0xffffffff)

// addToCRC folds one octet into the running checksum. Overflow wraps by
// subtracting (max - data), matching the peer's saturating sum.
func addToCRC(crc uint32, data byte) uint32 {
	if crc+uint32(data) < crc {
		return crc - (crcMax - uint32(data))
	}
	return crc + uint32(data)
}

// Checksum computes the frame CRC over the already-encoded control header,
// response code and payload envelope bytes, in wire order.
func Checksum(sections ...[]byte) uint32 {
	var crc uint32
	for _, section := range sections {
		for _, b := range section {
			crc = addToCRC(crc, b)
		}
	}
	return crc
}
