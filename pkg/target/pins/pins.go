// Package pins drives the DUT control lines of the target controller.
package pins

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/warthog618/go-gpiocdev"

	"github.com/robotalks/testboard/pkg/framework"
)

// Pins is the set of output lines the target controller drives.
type Pins interface {
	SetBoot(on bool) error
	SetPower(on bool) error
	SetStatusLED(on bool) error
}

// LogPins only logs pin changes and remembers the levels.
type LogPins struct {
	lock  sync.Mutex
	boot  bool
	power bool
	led   bool
}

// SetBoot implements Pins.
func (p *LogPins) SetBoot(on bool) error {
	p.lock.Lock()
	changed := p.boot != on
	p.boot = on
	p.lock.Unlock()
	if changed {
		glog.Infof("pin BOOT=%v", on)
	}
	return nil
}

// SetPower implements Pins.
func (p *LogPins) SetPower(on bool) error {
	p.lock.Lock()
	changed := p.power != on
	p.power = on
	p.lock.Unlock()
	if changed {
		glog.Infof("pin POWER=%v", on)
	}
	return nil
}

// SetStatusLED implements Pins.
func (p *LogPins) SetStatusLED(on bool) error {
	p.lock.Lock()
	p.led = on
	p.lock.Unlock()
	glog.V(4).Infof("pin LED=%v", on)
	return nil
}

// Levels returns the current boot, power and LED levels.
func (p *LogPins) Levels() (boot, power, led bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.boot, p.power, p.led
}

// Line is one requested output line. *gpiocdev.Line implements it.
type Line interface {
	SetValue(value int) error
	Close() error
}

// RequestFunc requests an output line on a GPIO chip.
type RequestFunc func(chip string, offset int, opts ...gpiocdev.LineReqOption) (Line, error)

// RequestLine requests a line through the GPIO character device.
func RequestLine(chip string, offset int, opts ...gpiocdev.LineReqOption) (Line, error) {
	l, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ChipPins drives lines of a GPIO chip, such as gpiochip0.
type ChipPins struct {
	Chip     string
	Consumer string
	Boot     int
	Power    int
	LED      int // negative disables the LED
	Request  RequestFunc

	boot, power, led Line
}

// NewChipPins creates ChipPins on chip.
func NewChipPins(chip string, boot, power, led int) *ChipPins {
	return &ChipPins{
		Chip:     chip,
		Consumer: "testboard",
		Boot:     boot,
		Power:    power,
		LED:      led,
		Request:  RequestLine,
	}
}

// Open requests the lines as outputs driven low.
func (p *ChipPins) Open() error {
	request := p.Request
	if request == nil {
		request = RequestLine
	}
	for _, l := range []struct {
		offset int
		line   *Line
	}{{p.Boot, &p.boot}, {p.Power, &p.power}, {p.LED, &p.led}} {
		if l.offset < 0 {
			continue
		}
		line, err := request(p.Chip, l.offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(p.Consumer))
		if err != nil {
			p.Close()
			return fmt.Errorf("%s line %d: %w", p.Chip, l.offset, err)
		}
		*l.line = line
	}
	glog.Infof("gpio %s: boot=%d power=%d led=%d", p.Chip, p.Boot, p.Power, p.LED)
	return nil
}

// Close releases the lines.
func (p *ChipPins) Close() error {
	var errs framework.AggregatedError
	for _, l := range []*Line{&p.boot, &p.power, &p.led} {
		if *l != nil {
			errs.Add((*l).Close())
			*l = nil
		}
	}
	return errs.Aggregate()
}

func set(l Line, on bool) error {
	if l == nil {
		return nil
	}
	if on {
		return l.SetValue(1)
	}
	return l.SetValue(0)
}

// SetBoot implements Pins.
func (p *ChipPins) SetBoot(on bool) error { return set(p.boot, on) }

// SetPower implements Pins.
func (p *ChipPins) SetPower(on bool) error { return set(p.power, on) }

// SetStatusLED implements Pins.
func (p *ChipPins) SetStatusLED(on bool) error { return set(p.led, on) }
