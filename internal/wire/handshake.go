package wire

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrBadHandshake is returned by DecodeHandshake when the payload does
// not carry at least the five required fields.
var ErrBadHandshake = errors.New("wire: bad handshake payload")

// HandshakeInfo is the decoded form of a HANDSHAKE packet's payload:
// "<filename>|<filesize>|<total>|<chunk>|<window>".
type HandshakeInfo struct {
	Filename string
	Filesize uint64
	Total    uint32
	Chunk    uint32
	Window   uint16
}

// EncodeHandshake renders h as the pipe-delimited payload text.
func EncodeHandshake(h HandshakeInfo) []byte {
	fields := []string{
		h.Filename,
		strconv.FormatUint(h.Filesize, 10),
		strconv.FormatUint(uint64(h.Total), 10),
		strconv.FormatUint(uint64(h.Chunk), 10),
		strconv.FormatUint(uint64(h.Window), 10),
	}
	return []byte(strings.Join(fields, string(FieldSep)))
}

// DecodeHandshake parses a HANDSHAKE payload. Extra trailing fields are
// tolerated; fewer than five is ErrBadHandshake.
func DecodeHandshake(payload []byte) (HandshakeInfo, error) {
	parts := strings.Split(string(payload), string(FieldSep))
	if len(parts) < 5 {
		return HandshakeInfo{}, ErrBadHandshake
	}

	filesize, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return HandshakeInfo{}, errors.Wrap(ErrBadHandshake, "filesize")
	}
	total, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return HandshakeInfo{}, errors.Wrap(ErrBadHandshake, "total")
	}
	chunk, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return HandshakeInfo{}, errors.Wrap(ErrBadHandshake, "chunk")
	}
	window, err := strconv.ParseUint(parts[4], 10, 16)
	if err != nil {
		return HandshakeInfo{}, errors.Wrap(ErrBadHandshake, "window")
	}

	return HandshakeInfo{
		Filename: parts[0],
		Filesize: filesize,
		Total:    uint32(total),
		Chunk:    uint32(chunk),
		Window:   uint16(window),
	}, nil
}
