// Package gateway is the operator HTTP API of the coordinator.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/robotalks/testboard/pkg/coordinator/bridge"
	"github.com/robotalks/testboard/pkg/coordinator/state"
	"github.com/robotalks/testboard/pkg/wire"
)

const (
	// DefaultChunkSize is the UPLOAD_DATA payload size.
	DefaultChunkSize = 4096
	// MaxLogCalls bounds the GET_LOG calls made by one /uart-log request.
	MaxLogCalls = 16

	shutdownTimeout = 5 * time.Second
)

// Target is the set of bridge calls the gateway makes.
type Target interface {
	UploadStart(ctx context.Context, size uint32) error
	UploadData(ctx context.Context, chunk []byte) error
	UploadEnd(ctx context.Context) error
	RunTest(ctx context.Context) error
	Reset(ctx context.Context) error
	Log(ctx context.Context) ([]byte, error)
}

// Refresher resyncs the cached state from the target.
type Refresher interface {
	Refresh(ctx context.Context) bool
}

// StatusJSON is the body of GET /status and of every /ws message.
type StatusJSON struct {
	State    string `json:"state"`
	Progress uint8  `json:"progress"`
	Message  string `json:"message"`
}

// NewStatusJSON converts a snapshot.
func NewStatusJSON(snap state.Snapshot) StatusJSON {
	return StatusJSON{State: snap.State.String(), Progress: snap.Progress, Message: snap.Message}
}

// Server serves the HTTP API.
type Server struct {
	Listen    string
	ChunkSize int
	Refresher Refresher

	target   Target
	store    *state.Store
	upgrader websocket.Upgrader
}

// New creates a Server.
func New(target Target, store *state.Store) *Server {
	return &Server{
		ChunkSize: DefaultChunkSize,
		target:    target,
		store:     store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Name implements framework.Named.
func (s *Server) Name() string {
	return "gateway"
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.method(http.MethodGet, s.handleStatus))
	mux.HandleFunc("/upload", s.method(http.MethodPost, s.handleUpload))
	mux.HandleFunc("/run", s.method(http.MethodPost, s.handleRun))
	mux.HandleFunc("/uart-log", s.method(http.MethodGet, s.handleLog))
	mux.HandleFunc("/reset", s.method(http.MethodPost, s.handleReset))
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.Listen, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()
	glog.Infof("gateway listening on %s", s.Listen)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

func (s *Server) method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, NewStatusJSON(s.store.Snapshot()))
}

// fail pins the cache in Error with message and answers 500 with reason.
func (s *Server) fail(w http.ResponseWriter, err error, message, reason string) {
	glog.Errorf("%s: %v", message, err)
	s.store.Set(state.Snapshot{State: wire.StateError, Progress: s.store.Snapshot().Progress, Message: message})
	http.Error(w, reason, http.StatusInternalServerError)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	size := r.ContentLength
	if size < 0 {
		http.Error(w, "Content-Length required", http.StatusLengthRequired)
		return
	}
	if size > math.MaxUint32 {
		http.Error(w, "Image too large", http.StatusBadRequest)
		return
	}
	if !s.store.Begin(wire.StateUploading, "Receiving ISO...") {
		http.Error(w, "Board is busy", http.StatusBadRequest)
		return
	}
	glog.Infof("receiving image: %d bytes", size)

	ctx := r.Context()
	if err := s.target.UploadStart(ctx, uint32(size)); err != nil {
		s.fail(w, err, "Target rejected upload", "Target error")
		return
	}

	chunkSize := s.ChunkSize
	if chunkSize <= 0 || chunkSize > wire.DefaultMaxPayload {
		chunkSize = DefaultChunkSize
	}
	chunk := make([]byte, chunkSize)
	var received int64
	for received < size {
		n := chunkSize
		if remain := size - received; remain < int64(n) {
			n = int(remain)
		}
		if _, err := io.ReadFull(r.Body, chunk[:n]); err != nil {
			s.fail(w, err, "Upload interrupted", "Upload failed")
			return
		}
		if err := s.target.UploadData(ctx, chunk[:n]); err != nil {
			s.fail(w, err, "Target write error", "Target write error")
			return
		}
		received += int64(n)
		s.store.SetProgress(uint8(received * 100 / size))
		glog.V(2).Infof("upload progress: %d/%d", received, size)
	}

	if err := s.target.UploadEnd(ctx); err != nil {
		s.fail(w, err, "Upload verification failed", "Upload verification failed")
		return
	}
	s.store.Set(state.Snapshot{State: wire.StateIdle, Progress: 100, Message: "Upload complete"})
	writeSuccess(w)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	booting := state.Snapshot{State: wire.StateBooting, Message: "Starting test..."}
	if !s.store.Begin(booting.State, booting.Message) {
		http.Error(w, "Board is busy", http.StatusBadRequest)
		return
	}
	err := s.target.RunTest(r.Context())
	var rspErr *bridge.ResponseError
	switch {
	case err == nil:
		// A poll issued before RUN_TEST reached the target may have
		// cached Idle, which stops polling for the whole run.
		if s.store.Replace(wire.StateIdle, booting) {
			glog.V(2).Info("run: cached state restored to booting")
		}
		writeSuccess(w)
	case errors.As(err, &rspErr) && rspErr.Code == wire.RspBusy:
		glog.Warningf("run: target busy, resyncing")
		s.store.Set(state.Snapshot{State: wire.StateIdle, Message: "Ready"})
		if s.Refresher != nil {
			s.Refresher.Refresh(r.Context())
		}
		http.Error(w, "Board is busy", http.StatusBadRequest)
	default:
		s.fail(w, err, "Failed to start test", "Start failed")
	}
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	flusher, _ := w.(http.Flusher)
	for i := 0; i < MaxLogCalls; i++ {
		data, err := s.target.Log(r.Context())
		if err != nil {
			if i == 0 {
				glog.Warningf("log: %v", err)
				http.Error(w, "Failed to get log", http.StatusInternalServerError)
				return
			}
			glog.Warningf("log: stopped after %d chunks: %v", i, err)
			return
		}
		if i == 0 {
			w.Header().Set("Content-Type", "text/plain")
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if len(data) < wire.MaxLogChunk {
			return
		}
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.target.Reset(r.Context()); err != nil {
		glog.Warningf("reset: %v", err)
	}
	s.store.Set(state.Snapshot{State: wire.StateIdle, Message: "Ready"})
	writeSuccess(w)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.store.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if err := conn.WriteJSON(NewStatusJSON(snap)); err != nil {
				glog.V(2).Infof("ws write: %v", err)
				return
			}
		}
	}
}
