package wire

import "encoding/binary"

const (
	// HeaderSize is the size of code plus length.
	HeaderSize = 5
	// DefaultMaxFrame is the receive buffer size of the target controller.
	DefaultMaxFrame = 8192
	// DefaultMaxPayload is the largest payload fitting DefaultMaxFrame.
	DefaultMaxPayload = DefaultMaxFrame - HeaderSize
)

// Frame is one command or response unit.
type Frame struct {
	Code    byte
	Payload []byte
}

// Request builds a request frame.
func Request(cmd Command, payload []byte) Frame {
	return Frame{Code: byte(cmd), Payload: payload}
}

// Response builds a response frame.
func Response(code Code, payload []byte) Frame {
	return Frame{Code: byte(code), Payload: payload}
}

// Command interprets the code as a command.
func (f Frame) Command() Command {
	return Command(f.Code)
}

// ResponseCode interprets the code as a response code.
func (f Frame) ResponseCode() Code {
	return Code(f.Code)
}

// Size is the encoded size.
func (f Frame) Size() int {
	return HeaderSize + len(f.Payload)
}

// Bytes returns encoded bytes for sending.
func (f Frame) Bytes() []byte {
	b := make([]byte, f.Size())
	b[0] = f.Code
	binary.LittleEndian.PutUint32(b[1:], uint32(len(f.Payload)))
	copy(b[HeaderSize:], f.Payload)
	return b
}

// Decode decodes a frame from buf without a size limit.
// Bytes following the declared payload are ignored, so buf may be a
// whole padded receive buffer. The payload aliases buf.
func Decode(buf []byte) (Frame, error) {
	return DecodeLimit(buf, -1)
}

// DecodeLimit decodes a frame, rejecting payloads longer than
// maxPayload. A negative maxPayload disables the check.
func DecodeLimit(buf []byte, maxPayload int) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, ErrFrameTooShort
	}
	size := binary.LittleEndian.Uint32(buf[1:])
	if maxPayload >= 0 && uint64(size) > uint64(maxPayload) {
		return Frame{}, ErrFrameTooLarge
	}
	if uint64(size) > uint64(len(buf)-HeaderSize) {
		return Frame{}, ErrLengthMismatch
	}
	return Frame{Code: buf[0], Payload: buf[HeaderSize : HeaderSize+int(size)]}, nil
}

// EncodeRequest encodes a request frame.
func EncodeRequest(cmd Command, payload []byte) []byte {
	return Request(cmd, payload).Bytes()
}

// DecodeRequest decodes a request frame.
func DecodeRequest(buf []byte) (Command, []byte, error) {
	f, err := Decode(buf)
	return f.Command(), f.Payload, err
}

// EncodeResponse encodes a response frame.
func EncodeResponse(code Code, payload []byte) []byte {
	return Response(code, payload).Bytes()
}

// DecodeResponse decodes a response frame.
func DecodeResponse(buf []byte) (Code, []byte, error) {
	f, err := Decode(buf)
	return f.ResponseCode(), f.Payload, err
}
