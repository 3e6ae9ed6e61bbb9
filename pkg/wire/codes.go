package wire

import "fmt"

// Command is a request code sent by the coordinator.
type Command byte

// Commands.
const (
	CmdPing        Command = 0x01
	CmdUploadStart Command = 0x02
	CmdUploadData  Command = 0x03
	CmdUploadEnd   Command = 0x04
	CmdRunTest     Command = 0x05
	CmdGetStatus   Command = 0x06
	CmdGetLog      Command = 0x07
	CmdReset       Command = 0x08
)

var commandNames = map[Command]string{
	CmdPing:        "PING",
	CmdUploadStart: "UPLOAD_START",
	CmdUploadData:  "UPLOAD_DATA",
	CmdUploadEnd:   "UPLOAD_END",
	CmdRunTest:     "RUN_TEST",
	CmdGetStatus:   "GET_STATUS",
	CmdGetLog:      "GET_LOG",
	CmdReset:       "RESET",
}

// String implements fmt.Stringer.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CMD(0x%02x)", byte(c))
}

// Known tells whether the command is part of the command set.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// Code is a response code sent by the target controller.
type Code byte

// Response codes.
const (
	RspOK     Code = 0x10
	RspError  Code = 0x11
	RspBusy   Code = 0x12
	RspData   Code = 0x13
	RspStatus Code = 0x14
)

var codeNames = map[Code]string{
	RspOK:     "OK",
	RspError:  "ERROR",
	RspBusy:   "BUSY",
	RspData:   "DATA",
	RspStatus: "STATUS",
}

// String implements fmt.Stringer.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("RSP(0x%02x)", byte(c))
}

// State is the run state of the target controller.
type State byte

// Run states.
const (
	StateIdle      State = 0x00
	StateUploading State = 0x01
	StateFlashing  State = 0x02
	StateBooting   State = 0x03
	StateRunning   State = 0x04
	StateCompleted State = 0x05
	StateError     State = 0xFF
)

var stateNames = map[State]string{
	StateIdle:      "idle",
	StateUploading: "uploading",
	StateFlashing:  "flashing",
	StateBooting:   "booting",
	StateRunning:   "running",
	StateCompleted: "completed",
	StateError:     "error",
}

// String returns the lower-case name used by the HTTP API.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Busy tells whether a test is being booted or executed.
func (s State) Busy() bool {
	return s == StateBooting || s == StateRunning
}

// Terminal tells whether the state ends a test run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// ParseState parses a state name as returned by String.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return StateError, fmt.Errorf("unknown state %q", name)
}
