package wire

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

// Decode failure modes, named per the spec so callers can match on them
// with errors.Cause.
var (
	ErrShortHeader      = errors.New("wire: short header")
	ErrBadMagic         = errors.New("wire: bad magic or version")
	ErrTruncatedPayload = errors.New("wire: truncated payload")
)

// crc32Table is the IEEE 802.3 polynomial table (0xEDB88320, reflected),
// matching the checksum every corpus repo that checksums a datagram
// reaches for via hash/crc32 (e.g. v4lli-go-abp's rdt.VerifyChecksum).
var crc32Table = crc32.MakeTable(crc32.IEEE)

// Checksum computes the CRC-32 (IEEE) of payload.
func Checksum(payload []byte) uint32 {
	return crc32.Checksum(payload, crc32Table)
}

// Encode lays out p as a 20-octet header followed by its payload. For
// DATA packets with a zero checksum, Encode fills in the CRC-32 over the
// payload; for every other type the checksum field is forced to zero on
// the wire regardless of what p.Checksum held.
func Encode(p Packet) []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	EncodeInto(buf, p)
	return buf
}

// EncodeInto writes p into a caller-provided buffer sized at least
// HeaderSize+len(p.Payload), so a caller that reuses buf avoids a
// per-datagram allocation. It returns the number of octets written.
func EncodeInto(buf []byte, p Packet) int {
	buf[0] = magic0
	buf[1] = magic1
	buf[2] = version
	buf[3] = byte(p.Type)
	binary.BigEndian.PutUint32(buf[4:8], p.Seq)
	binary.BigEndian.PutUint32(buf[8:12], p.Total)
	binary.BigEndian.PutUint16(buf[12:14], p.Length())
	binary.BigEndian.PutUint16(buf[14:16], p.Window)

	checksum := p.Checksum
	if p.Type == Data {
		if checksum == 0 {
			checksum = Checksum(p.Payload)
		}
	} else {
		checksum = 0
	}
	binary.BigEndian.PutUint32(buf[16:20], checksum)

	n := copy(buf[HeaderSize:], p.Payload)
	return HeaderSize + n
}

// Decode parses a raw datagram into a Packet. It does not validate the
// checksum; that is the receiver's responsibility once a session is
// known, since an unrecognized checksum and a truncated payload are
// distinguishable failure modes with different dispositions (see
// internal/receiver).
func Decode(raw []byte) (Packet, error) {
	if len(raw) < HeaderSize {
		return Packet{}, ErrShortHeader
	}
	if raw[0] != magic0 || raw[1] != magic1 || raw[2] != version {
		return Packet{}, ErrBadMagic
	}

	length := binary.BigEndian.Uint16(raw[12:14])
	if int(length) > len(raw)-HeaderSize {
		return Packet{}, ErrTruncatedPayload
	}

	p := Packet{
		Type:     Type(raw[3]),
		Seq:      binary.BigEndian.Uint32(raw[4:8]),
		Total:    binary.BigEndian.Uint32(raw[8:12]),
		Window:   binary.BigEndian.Uint16(raw[14:16]),
		Checksum: binary.BigEndian.Uint32(raw[16:20]),
	}
	if length > 0 {
		p.Payload = append([]byte(nil), raw[HeaderSize:HeaderSize+length]...)
	}
	return p, nil
}
