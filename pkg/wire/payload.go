package wire

import (
	"encoding/binary"
	"unicode/utf8"
)

const (
	// MaxLogChunk is the most log bytes returned by one GET_LOG.
	MaxLogChunk = 4096
	// MaxStatusMessage bounds the message carried in a STATUS payload.
	MaxStatusMessage = 128
	// StatusCapacity is the receive capacity fitting any STATUS response.
	StatusCapacity = HeaderSize + 2 + MaxStatusMessage
	// LogCapacity is the receive capacity fitting any DATA response to GET_LOG.
	LogCapacity = HeaderSize + 4 + MaxLogChunk
)

// Sentinel is appended by the DUT to its console output when its test
// suite finishes.
var Sentinel = [8]byte{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE, 0xBA, 0xBE}

// EncodeSize encodes the UPLOAD_START payload.
func EncodeSize(size uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, size)
	return b
}

// DecodeSize decodes the UPLOAD_START payload.
func DecodeSize(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, ErrShortPayload
	}
	return binary.LittleEndian.Uint32(payload), nil
}

// Status is the content of a STATUS response.
type Status struct {
	State    State
	Progress uint8
	Message  string
}

// Bytes encodes the status as [state][progress][message...].
// The message is truncated to MaxStatusMessage bytes on a rune boundary.
func (s Status) Bytes() []byte {
	msg := s.Message
	if len(msg) > MaxStatusMessage {
		// back off to the start of a cut rune only
		n := MaxStatusMessage
		for i := 1; i < utf8.UTFMax && n > 0 && !utf8.RuneStart(msg[n]); i++ {
			n--
		}
		msg = msg[:n]
	}
	b := make([]byte, 2+len(msg))
	b[0], b[1] = byte(s.State), s.Progress
	copy(b[2:], msg)
	return b
}

// DecodeStatus decodes a STATUS payload. The trailing message is optional.
func DecodeStatus(payload []byte) (Status, error) {
	if len(payload) < 2 {
		return Status{}, ErrShortPayload
	}
	return Status{
		State:    State(payload[0]),
		Progress: payload[1],
		Message:  string(payload[2:]),
	}, nil
}

// EncodeLog encodes a GET_LOG payload as [length:4 LE][bytes].
// Callers cap data at MaxLogChunk.
func EncodeLog(data []byte) []byte {
	b := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(b, uint32(len(data)))
	copy(b[4:], data)
	return b
}

// DecodeLog decodes a GET_LOG payload.
func DecodeLog(payload []byte) ([]byte, error) {
	if len(payload) < 4 {
		return nil, ErrShortPayload
	}
	size := binary.LittleEndian.Uint32(payload)
	if uint64(size) > uint64(len(payload)-4) {
		return nil, ErrLengthMismatch
	}
	return payload[4 : 4+int(size)], nil
}
