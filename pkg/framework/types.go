package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Message is anything posted into a Loop for its controllers.
type Message interface{}

// Controller is the logic executed on every loop iteration.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc defines the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(ctx ControlContext) error {
	return f(ctx)
}

// ControlContext provides the context of current loop iteration.
type ControlContext interface {
	// Context retrieves context.Context.
	Context() context.Context
	// Time is when the iteration started.
	Time() time.Time
	// Messages retrieves messages collected when this iteration starts.
	Messages() MessageStore

	LoopControl
}

// LoopControl exposes access to the loop from other goroutines.
type LoopControl interface {
	// PostMessage enqueues the message for the next iteration.
	PostMessage(Message)
	// TriggerNext runs the next iteration immediately.
	TriggerNext()
}

// MessageStore provides access to the messages of one iteration.
type MessageStore interface {
	// ProcessMessages passes every message to proc. Messages not taken
	// stay for controllers at lower priority levels.
	ProcessMessages(proc func(msg Message) (taken bool))
	// Len returns the number of pending messages.
	Len() int
}

// Priority levels, lower runs first.
const (
	PrLvTop    int = 0
	PrLvNormal int = 1
	PrLvIdle   int = 2

	// PriorityLevels is the total levels of priorities.
	PriorityLevels int = 3
)
