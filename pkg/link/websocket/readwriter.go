// Package websocket carries link packets as binary websocket messages.
package websocket

import (
	"context"
	"net/http"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/testboard/pkg/link"
)

// ReadWriter implements link.PacketReadWriter.
type ReadWriter websocket.Conn

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return (*ReadWriter)(conn)
}

// Dial connects to a slave endpoint, e.g. ws://target:8081/spi.
func Dial(url string) (*ReadWriter, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// ReadPacket implements link.PacketReader.
func (p *ReadWriter) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive((*websocket.Conn)(p), &pkt)
	return
}

// WritePacket implements link.PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	return websocket.Message.Send((*websocket.Conn)(p), pkt)
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}

// Handler serves the slave side for every websocket connection.
// Connections are served one after another by the same link.Handler.
func Handler(ctx context.Context, h link.Handler) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		glog.Infof("link connected from %s", conn.Request().RemoteAddr)
		err := link.Serve(ctx, New(conn), h)
		glog.Infof("link from %s closed: %v", conn.Request().RemoteAddr, err)
	})
}
