package board

import (
	"time"

	"github.com/robotalks/testboard/pkg/framework"
	"github.com/robotalks/testboard/pkg/wire"
)

// LEDController blinks the status LED according to the run state.
// Add it to the main loop.
type LEDController struct {
	Machine *Machine

	known bool
	lit   bool
}

// LEDLevel returns the LED level for state s at time t.
func LEDLevel(s wire.State, t time.Time) bool {
	var period time.Duration
	switch s {
	case wire.StateIdle:
		return true
	case wire.StateCompleted:
		return false
	case wire.StateError:
		period = 200 * time.Millisecond
	default:
		period = 500 * time.Millisecond
	}
	return t.UnixNano()/int64(period/2)%2 == 0
}

// Control implements framework.Controller.
func (c *LEDController) Control(cc framework.ControlContext) error {
	lit := LEDLevel(c.Machine.State(), cc.Time())
	if c.known && lit == c.lit {
		return nil
	}
	c.known, c.lit = true, lit
	return c.Machine.Pins.SetStatusLED(lit)
}
