// Package endpoint opens links described by URLs:
//
//	serial:///dev/ttyUSB0?baud=115200
//	tcp://host:7070
//	mqtt://broker:1883/prefix?board=rpi4
//	ws://host:8081/spi
package endpoint

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/testboard/pkg/link"
	"github.com/robotalks/testboard/pkg/link/mqtt"
	"github.com/robotalks/testboard/pkg/link/stream"
	"github.com/robotalks/testboard/pkg/link/websocket"
)

// Conn is the master side of an opened link.
type Conn interface {
	link.Transactor
	io.Closer
}

type masterConn struct {
	*link.Master
	closers []io.Closer
}

func (c *masterConn) Close() error {
	err := c.Master.Close()
	for _, closer := range c.closers {
		closer.Close()
	}
	return err
}

func baudRate(u *url.URL) (int, error) {
	if s := u.Query().Get("baud"); s != "" {
		return strconv.Atoi(s)
	}
	return stream.DefaultBaudRate, nil
}

func mqttLink(rawURL string) (*mqtt.Queue, string, error) {
	opts, err := mqtt.OptionsFromURL(rawURL)
	if err != nil {
		return nil, "", err
	}
	if opts.Board == "" {
		return nil, "", fmt.Errorf("mqtt link %q: board query parameter required", rawURL)
	}
	q := mqtt.NewQueue(opts.Client, opts.TopicPrefix)
	if err := q.Connect(); err != nil {
		return nil, "", err
	}
	return q, opts.Board, nil
}

// Dial opens the master side of a link.
func Dial(ctx context.Context, rawURL string, timeout time.Duration) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	var (
		rw      link.PacketReadWriter
		closers []io.Closer
	)
	switch u.Scheme {
	case "serial":
		baud, err := baudRate(u)
		if err != nil {
			return nil, err
		}
		if rw, err = stream.OpenSerial(u.Path, baud); err != nil {
			return nil, err
		}
	case "tcp":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		rw = stream.New(conn)
	case "mqtt", "mqtts":
		q, board, err := mqttLink(rawURL)
		if err != nil {
			return nil, err
		}
		rw, closers = mqtt.ForMaster(q, board), []io.Closer{q}
	case "ws", "wss":
		if rw, err = websocket.Dial(rawURL); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported link scheme %q", u.Scheme)
	}
	m := link.NewMaster(rw)
	if timeout > 0 {
		m.Timeout = timeout
	}
	glog.Infof("link %s opened", u.Redacted())
	return &masterConn{Master: m, closers: closers}, nil
}

// Serve runs the slave side of a link until ctx is done.
func Serve(ctx context.Context, rawURL string, h link.Handler) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "serial":
		baud, err := baudRate(u)
		if err != nil {
			return err
		}
		rw, err := stream.OpenSerial(u.Path, baud)
		if err != nil {
			return err
		}
		return link.Serve(ctx, rw, h)
	case "tcp":
		return serveTCP(ctx, u.Host, h)
	case "mqtt", "mqtts":
		q, board, err := mqttLink(rawURL)
		if err != nil {
			return err
		}
		defer q.Close()
		return link.Serve(ctx, mqtt.ForTarget(q, board), h)
	case "ws":
		return serveWebsocket(ctx, u, h)
	}
	return fmt.Errorf("unsupported link scheme %q", u.Scheme)
}

func serveTCP(ctx context.Context, addr string, h link.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	glog.Infof("link listening on tcp %s", ln.Addr())
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		glog.Infof("link connected from %s", conn.RemoteAddr())
		err = link.Serve(ctx, stream.New(conn), h)
		glog.Infof("link from %s closed: %v", conn.RemoteAddr(), err)
	}
}

func serveWebsocket(ctx context.Context, u *url.URL, h link.Handler) error {
	mux := http.NewServeMux()
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux.Handle(path, websocket.Handler(ctx, h))
	srv := &http.Server{Addr: u.Host, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	glog.Infof("link listening on ws://%s%s", u.Host, path)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
