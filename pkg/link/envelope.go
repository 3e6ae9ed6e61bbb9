package link

import (
	"github.com/robotalks/testboard/pkg/wire"
)

// MaxPacket is the largest sealed transaction: one envelope header
// around a full receive buffer of the target.
const MaxPacket = wire.HeaderSize + wire.DefaultMaxFrame

// Each transaction travels in an envelope frame whose code is a
// sequence tag. The slave echoes the tag on its reply, and the master
// drops replies carrying any other tag, such as the late answer to a
// transaction that already timed out.

func seal(tag byte, pkt []byte) []byte {
	return wire.Frame{Code: tag, Payload: pkt}.Bytes()
}

func unseal(pkt []byte) (byte, []byte, error) {
	f, err := wire.Decode(pkt)
	if err != nil {
		return 0, nil, err
	}
	return f.Code, f.Payload, nil
}

// nextTag returns the tag following tag, skipping line-idle bytes.
func nextTag(tag byte) byte {
	for {
		tag++
		if !wire.IsIdleByte(tag) {
			return tag
		}
	}
}
