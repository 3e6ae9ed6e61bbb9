package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/testboard/pkg/env"
	"github.com/robotalks/testboard/pkg/framework"
	"github.com/robotalks/testboard/pkg/link"
	"github.com/robotalks/testboard/pkg/link/endpoint"
	"github.com/robotalks/testboard/pkg/target/board"
	"github.com/robotalks/testboard/pkg/target/dispatch"
	"github.com/robotalks/testboard/pkg/target/logring"
	"github.com/robotalks/testboard/pkg/target/pins"
	"github.com/robotalks/testboard/pkg/target/storage"
	"github.com/robotalks/testboard/pkg/target/uart"
)

func init() {
	env.SetupTargetFlags()
}

func setupPins(conf *env.TargetConfig) (pins.Pins, func()) {
	if conf.GPIOChip == "" {
		return &pins.LogPins{}, func() {}
	}
	p := pins.NewChipPins(conf.GPIOChip, conf.BootPin, conf.PowerPin, conf.LEDPin)
	if err := p.Open(); err != nil {
		log.Fatalln(err)
	}
	return p, func() { p.Close() }
}

func setupUART(conf *env.TargetConfig, m *board.Machine) *uart.Capture {
	if conf.UARTPort == "" {
		glog.Warning("no DUT console configured")
		return nil
	}
	port, err := uart.OpenPort(conf.UARTPort, conf.UARTBaud)
	if err != nil {
		log.Fatalln(err)
	}
	c := &uart.Capture{Source: port, Receiver: m}
	if conf.UARTTee != "" {
		f, err := os.OpenFile(conf.UARTTee, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalln(err)
		}
		c.Tee = f
	}
	return c
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := env.NewTargetConfig()
	if err := conf.Validate(); err != nil {
		log.Fatalln(err)
	}

	dev := storage.NewFileDevice(conf.Storage, conf.CreateStorage)
	defer dev.Close()
	p, closePins := setupPins(conf)
	defer closePins()
	m := board.New(dev, p, logring.New(conf.LogCapacity))
	m.SettleDelay = conf.SettleDelay

	loop := framework.NewLoop()
	loop.Interval = conf.LoopInterval
	loop.AddController(framework.PrLvTop, dispatch.New(m))
	loop.AddController(framework.PrLvIdle, &board.LEDController{Machine: m})

	handler := &link.LoopHandler{Loop: loop, Timeout: conf.Timeout}
	runner := framework.NewRunner().HandleSignals()
	runner.Go(loop, framework.NamedRun("link", framework.RunFunc(func(ctx context.Context) error {
		return endpoint.Serve(ctx, conf.Link, handler)
	})))
	if c := setupUART(conf, m); c != nil {
		if closer, ok := c.Tee.(io.Closer); ok {
			defer closer.Close()
		}
		runner.Go(c)
	}
	glog.Infof("target %s serving %s", conf.Board, conf.Link)
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
