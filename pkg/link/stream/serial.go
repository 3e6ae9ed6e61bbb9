package stream

import (
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate of serial links.
const DefaultBaudRate = 115200

// OpenSerial opens a serial port as a frame stream.
func OpenSerial(path string, baud int) (*ReadWriter, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		port.Close()
		return nil, err
	}
	rw := New(port)
	rw.ReadTimeout = true
	return rw, nil
}
