// Package events publishes target status changes over MQTT.
package events

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/testboard/pkg/coordinator/state"
	"github.com/robotalks/testboard/pkg/link/mqtt"
	"github.com/robotalks/testboard/pkg/wire"
)

// StatusEvent reports the status of one board.
type StatusEvent struct {
	Board     string `protobuf:"bytes,1,opt,name=board,proto3" json:"board,omitempty"`
	State     uint32 `protobuf:"varint,2,opt,name=state,proto3" json:"state,omitempty"`
	StateName string `protobuf:"bytes,3,opt,name=state_name,proto3" json:"state_name,omitempty"`
	Progress  uint32 `protobuf:"varint,4,opt,name=progress,proto3" json:"progress,omitempty"`
	Message   string `protobuf:"bytes,5,opt,name=message,proto3" json:"message,omitempty"`
	// Stamp is in unix milliseconds.
	Stamp int64 `protobuf:"varint,6,opt,name=stamp,proto3" json:"stamp,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *StatusEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatusEvent) Reset() { *m = StatusEvent{} }

// String implements proto.Message.
func (m *StatusEvent) String() string { return proto.CompactTextString(m) }

// RunState returns State as wire.State.
func (m *StatusEvent) RunState() wire.State { return wire.State(m.State) }

// NewStatusEvent creates an event from a snapshot.
func NewStatusEvent(board string, snap state.Snapshot, at time.Time) *StatusEvent {
	return &StatusEvent{
		Board:     board,
		State:     uint32(snap.State),
		StateName: snap.State.String(),
		Progress:  uint32(snap.Progress),
		Message:   snap.Message,
		Stamp:     at.UnixNano() / int64(time.Millisecond),
	}
}

// Encode serializes an event.
func Encode(ev *StatusEvent) ([]byte, error) {
	return proto.Marshal(ev)
}

// Decode parses an event.
func Decode(data []byte) (*StatusEvent, error) {
	ev := &StatusEvent{}
	if err := proto.Unmarshal(data, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Pub publishes to a topic.
type Pub interface {
	Pub(topic string, payload []byte, qos byte, retain bool) error
}

// Publisher sends retained StatusEvents to mqtt.StatusTopic(Board).
// It is a poller.Indicator.
type Publisher struct {
	Queue Pub
	Board string
	Now   func() time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(q Pub, board string) *Publisher {
	return &Publisher{Queue: q, Board: board, Now: time.Now}
}

// Indicate publishes snap.
func (p *Publisher) Indicate(_ context.Context, snap state.Snapshot) error {
	data, err := Encode(NewStatusEvent(p.Board, snap, p.Now()))
	if err != nil {
		return err
	}
	glog.V(2).Infof("publish %s: %s", p.Board, snap.State)
	return p.Queue.Pub(mqtt.StatusTopic(p.Board), data, 1, true)
}
