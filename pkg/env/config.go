// Package env loads daemon configuration.
//
// Values are layered: built-in defaults, then the YAML file named by
// TESTBOARD_CONFIG, then TESTBOARD_* environment variables, then
// command line flags registered by the Setup*Flags functions.
package env

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	fx "github.com/robotalks/testboard/pkg/framework"
	"github.com/robotalks/testboard/pkg/wire"
)

// CoordinatorConfig configures hil-coordinator.
type CoordinatorConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// Link is the master side link URL, see package endpoint.
	Link         string        `yaml:"link"`
	Board        string        `yaml:"board"`
	ChunkSize    int           `yaml:"chunk_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	// MQTTURL enables status events when set,
	// e.g. mqtt://host:port/topic-prefix
	MQTTURL string `yaml:"mqtt"`
}

// TargetConfig configures hil-target.
type TargetConfig struct {
	// Link is the slave side link URL.
	Link          string `yaml:"link"`
	Board         string `yaml:"board"`
	Storage       string `yaml:"storage"`
	CreateStorage bool   `yaml:"create_storage"`
	LogCapacity   int    `yaml:"log_capacity"`

	SettleDelay  time.Duration `yaml:"settle_delay"`
	LoopInterval time.Duration `yaml:"loop_interval"`
	Timeout      time.Duration `yaml:"timeout"`

	UARTPort string `yaml:"uart_port"`
	UARTBaud int    `yaml:"uart_baud"`
	UARTTee  string `yaml:"uart_tee"`

	// GPIOChip empty logs pin changes instead of driving GPIO lines.
	GPIOChip string `yaml:"gpio_chip"`
	BootPin  int    `yaml:"boot_pin"`
	PowerPin int    `yaml:"power_pin"`
	LEDPin   int    `yaml:"led_pin"`
}

// File is the layout of the YAML config file.
type File struct {
	Coordinator *CoordinatorConfig `yaml:"coordinator"`
	Target      *TargetConfig      `yaml:"target"`
}

var defaultCoordinator = CoordinatorConfig{
	Listen:       ":8080",
	Link:         "tcp://localhost:7070",
	ChunkSize:    4096,
	PollInterval: 500 * time.Millisecond,
	Timeout:      2 * time.Second,
}

var defaultTarget = TargetConfig{
	Link:         "tcp://:7070",
	Storage:      "testboard.img",
	LogCapacity:  64 * 1024,
	SettleDelay:  100 * time.Millisecond,
	LoopInterval: 100 * time.Millisecond,
	Timeout:      2 * time.Second,
	UARTBaud:     115200,
	GPIOChip:     "",
	BootPin:      17,
	PowerPin:     27,
	LEDPin:       22,
}

// loadErr is reported by Validate.
var loadErr error

func init() {
	board := MachineID()
	defaultCoordinator.Board = board
	defaultTarget.Board = board
	if path := os.Getenv("TESTBOARD_CONFIG"); path != "" {
		loadErr = LoadFile(path, &defaultCoordinator, &defaultTarget)
	}
	if err := ApplyEnv(os.LookupEnv, &defaultCoordinator, &defaultTarget); err != nil && loadErr == nil {
		loadErr = err
	}
}

// LoadFile overlays the YAML file at path onto coord and target.
func LoadFile(path string, coord *CoordinatorConfig, target *TargetConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	f := File{Coordinator: coord, Target: target}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays TESTBOARD_* variables.
func ApplyEnv(lookup func(string) (string, bool), coord *CoordinatorConfig, target *TargetConfig) error {
	str := func(name string, dst ...*string) {
		if val, ok := lookup(name); ok && val != "" {
			for _, d := range dst {
				*d = val
			}
		}
	}
	errs := &fx.AggregatedError{}
	num := func(name string, dst *int) {
		if val, ok := lookup(name); ok && val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				errs.Add(fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if val, ok := lookup(name); ok && val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs.Add(fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	str("TESTBOARD_BOARD", &coord.Board, &target.Board)
	str("TESTBOARD_LISTEN", &coord.Listen)
	str("TESTBOARD_LINK", &coord.Link)
	str("TESTBOARD_MQTT_URL", &coord.MQTTURL)
	num("TESTBOARD_CHUNK_SIZE", &coord.ChunkSize)
	dur("TESTBOARD_POLL_INTERVAL", &coord.PollInterval)

	str("TESTBOARD_TARGET_LINK", &target.Link)
	str("TESTBOARD_STORAGE", &target.Storage)
	str("TESTBOARD_UART", &target.UARTPort)
	num("TESTBOARD_UART_BAUD", &target.UARTBaud)
	str("TESTBOARD_GPIO_CHIP", &target.GPIOChip)
	dur("TESTBOARD_SETTLE_DELAY", &target.SettleDelay)
	return errs.Aggregate()
}

// SetupCoordinatorFlags sets up command line flags for the coordinator.
func SetupCoordinatorFlags() {
	c := &defaultCoordinator
	flag.StringVar(&c.Listen, "listen", c.Listen, "HTTP listen address")
	flag.StringVar(&c.Link, "link", c.Link, "Target link URL (serial://, tcp://, mqtt://, ws://)")
	flag.StringVar(&c.Board, "board", c.Board, "Board ID")
	flag.IntVar(&c.ChunkSize, "chunk-size", c.ChunkSize, "Upload chunk size in bytes")
	flag.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "Status poll interval")
	flag.DurationVar(&c.Timeout, "timeout", c.Timeout, "Link transaction timeout")
	flag.StringVar(&c.MQTTURL, "mqtt", c.MQTTURL, "MQTT broker URL for status events")
}

// SetupTargetFlags sets up command line flags for the target controller.
func SetupTargetFlags() {
	c := &defaultTarget
	flag.StringVar(&c.Link, "link", c.Link, "Link URL to serve (serial://, tcp://, mqtt://, ws://)")
	flag.StringVar(&c.Board, "board", c.Board, "Board ID")
	flag.StringVar(&c.Storage, "storage", c.Storage, "Block device or image file")
	flag.BoolVar(&c.CreateStorage, "create-storage", c.CreateStorage, "Create the image file if missing")
	flag.IntVar(&c.LogCapacity, "log-capacity", c.LogCapacity, "UART log ring size")
	flag.DurationVar(&c.SettleDelay, "settle-delay", c.SettleDelay, "Delay between boot select and power on")
	flag.DurationVar(&c.LoopInterval, "loop-interval", c.LoopInterval, "Main loop interval")
	flag.DurationVar(&c.Timeout, "timeout", c.Timeout, "Transaction handling timeout")
	flag.StringVar(&c.UARTPort, "uart", c.UARTPort, "DUT console serial port")
	flag.IntVar(&c.UARTBaud, "uart-baud", c.UARTBaud, "DUT console baud rate")
	flag.StringVar(&c.UARTTee, "uart-tee", c.UARTTee, "Append raw DUT console output to this file")
	flag.StringVar(&c.GPIOChip, "gpio-chip", c.GPIOChip, "GPIO chip, e.g. gpiochip0, empty to only log pin changes")
	flag.IntVar(&c.BootPin, "boot-pin", c.BootPin, "Boot select GPIO")
	flag.IntVar(&c.PowerPin, "power-pin", c.PowerPin, "DUT power GPIO")
	flag.IntVar(&c.LEDPin, "led-pin", c.LEDPin, "Status LED GPIO, negative to disable")
}

// NewCoordinatorConfig creates a CoordinatorConfig with default configurations.
func NewCoordinatorConfig() *CoordinatorConfig {
	conf := defaultCoordinator
	return &conf
}

// NewTargetConfig creates a TargetConfig with default configurations.
func NewTargetConfig() *TargetConfig {
	conf := defaultTarget
	return &conf
}

func validateLink(s string) error {
	if s == "" {
		return errors.New("link URL required")
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid link URL: %w", err)
	}
	switch u.Scheme {
	case "serial", "tcp", "mqtt", "mqtts", "ws", "wss":
		return nil
	}
	return fmt.Errorf("unknown link URL scheme: %q", u.Scheme)
}

// Validate checks the config.
func (c *CoordinatorConfig) Validate() error {
	if loadErr != nil {
		return loadErr
	}
	if err := validateLink(c.Link); err != nil {
		return err
	}
	if c.ChunkSize <= 0 || c.ChunkSize > wire.DefaultMaxPayload {
		return fmt.Errorf("chunk size must be in 1..%d", wire.DefaultMaxPayload)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// Validate checks the config.
func (c *TargetConfig) Validate() error {
	if loadErr != nil {
		return loadErr
	}
	if err := validateLink(c.Link); err != nil {
		return err
	}
	if c.Storage == "" {
		return errors.New("storage device required")
	}
	if c.LogCapacity < wire.MaxLogChunk {
		return fmt.Errorf("log capacity must be at least %d", wire.MaxLogChunk)
	}
	if c.GPIOChip != "" && (c.BootPin < 0 || c.PowerPin < 0) {
		return errors.New("boot and power pins required")
	}
	return nil
}
