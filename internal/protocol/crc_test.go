package protocol

import "testing"

func TestChecksumDeterministic(t *testing.T) {
	data := []byte{0x01, 0x02, 0xF0, 0xFF, 0x00, 0x7C}
	a := Checksum(data)
	b := Checksum(data)
	if a != b {
		t.Fatalf("checksum not deterministic: %d vs %d", a, b)
	}
	if a == 0 {
		t.Fatalf("checksum of non-zero data is zero")
	}
}

func TestChecksumSectionsMatchConcatenation(t *testing.T) {
	head := []byte{0xD1, 0x07, 0x22, 0x00}
	tail := []byte{0xAA, 0xBB}
	joined := append(append([]byte{}, head...), tail...)
	if Checksum(head, tail) != Checksum(joined) {
		t.Fatalf("sectioned checksum differs from concatenated")
	}
}

func TestChecksumWraparound(t *testing.T) {
	// Drive the accumulator past max: wrap subtracts (max - data).
	crc := uint32(0xFFFFFFFE)
	got := addToCRC(crc, 5)
	want := crc - (crcMax - 5)
	if got != want {
		t.Fatalf("wraparound mismatch: got %d want %d", got, want)
	}
	// No wrap below the limit.
	if addToCRC(10, 5) != 15 {
		t.Fatalf("plain sum broken")
	}
}

func TestChecksumEmptyIsZero(t *testing.T) {
	if Checksum(nil, []byte{}) != 0 {
		t.Fatalf("empty checksum not zero")
	}
}
