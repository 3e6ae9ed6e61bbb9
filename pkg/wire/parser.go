package wire

import "encoding/binary"

// Parser assembles frames from a byte stream, one byte at a time.
// It is used on links without transaction boundaries (serial, TCP).
type Parser struct {
	// MaxPayload rejects frames declaring a longer payload.
	// Zero means DefaultMaxPayload, negative means unlimited.
	MaxPayload int

	state   parseState
	head    [4]byte
	headLen int
	frame   *Frame
	recvLen int
}

// ParseResult is the result after one parsing step.
type ParseResult struct {
	// Frame is set when a complete frame is received.
	Frame *Frame
	// Err is set when a partial frame is discarded.
	Err error
}

type parseState int

const (
	stateCode parseState = iota // waiting for code, idle bytes skipped
	stateLen                    // collecting 4 length bytes
	stateData                   // collecting payload
)

// Receiving tells whether a frame is partially received.
func (p *Parser) Receiving() bool {
	return p.state != stateCode
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state, p.frame, p.headLen, p.recvLen = stateCode, nil, 0, 0
}

// Timeout notifies the parser the inter-byte timer expired. A partially
// received frame is discarded.
func (p *Parser) Timeout() (pr ParseResult) {
	if p.Receiving() {
		p.Reset()
		pr.Err = ErrFrameTooShort
	}
	return
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	switch p.state {
	case stateCode:
		if IsIdleByte(b) {
			return
		}
		p.frame = &Frame{Code: b}
		p.headLen = 0
		p.state = stateLen
	case stateLen:
		p.head[p.headLen] = b
		if p.headLen++; p.headLen < len(p.head) {
			return
		}
		size := binary.LittleEndian.Uint32(p.head[:])
		if max := p.maxPayload(); max >= 0 && uint64(size) > uint64(max) {
			p.Reset()
			pr.Err = ErrFrameTooLarge
			return
		}
		if size == 0 {
			return p.frameReady()
		}
		p.frame.Payload, p.recvLen = make([]byte, size), 0
		p.state = stateData
	case stateData:
		p.frame.Payload[p.recvLen] = b
		if p.recvLen++; p.recvLen >= len(p.frame.Payload) {
			return p.frameReady()
		}
	}
	return
}

func (p *Parser) maxPayload() int {
	if p.MaxPayload == 0 {
		return DefaultMaxPayload
	}
	return p.MaxPayload
}

func (p *Parser) frameReady() (pr ParseResult) {
	pr.Frame = p.frame
	p.Reset()
	return
}

// IsIdleByte tells whether b is a line-idle byte that never starts a frame.
func IsIdleByte(b byte) bool {
	return b == 0x00 || b == 0xFF
}
