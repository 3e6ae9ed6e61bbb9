package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/urfave/cli/v2"

	"github.com/robotalks/testboard/pkg/cli/sh"
	"github.com/robotalks/testboard/pkg/client"
	"github.com/robotalks/testboard/pkg/link"
)

const appName = "hilctl"

func openBoard(c *cli.Context) (client.Board, func(), error) {
	endpoint := c.String("endpoint")
	if endpoint == "" {
		return nil, nil, cli.Exit("--endpoint is required", 2)
	}
	b, closer, err := client.Open(c.Context, endpoint, c.Duration("link-timeout"))
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to test board: %w", err)
	}
	return b, func() { closer.Close() }, nil
}

func runCI(c *cli.Context) error {
	b, done, err := openBoard(c)
	if err != nil {
		return err
	}
	defer done()
	ci := &client.CI{
		Image:    c.String("iso"),
		Output:   c.String("output"),
		Timeout:  c.Duration("timeout"),
		Interval: c.Duration("interval"),
		Out:      os.Stdout,
	}
	result, err := ci.Run(c.Context, b)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	if res := result.Results; res != nil && res.Failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d tests failed", res.Failed, res.Total), 1)
	}
	if !result.Success {
		return cli.Exit("", 1)
	}
	return nil
}

func runShell(c *cli.Context) error {
	s := sh.New()
	s.Interactive = !c.Bool("e")
	s.OutputJSON = c.Bool("json")
	s.Timeout = c.Duration("link-timeout")
	if endpoint := c.String("endpoint"); endpoint != "" {
		if err := s.Connect(c.Context, endpoint); err != nil {
			return err
		}
	}
	s.Main(c.Args().Slice()...)
	return nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  appName,
		Usage: "Drive a hardware-in-the-loop test board",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "endpoint",
				Usage:   "Coordinator URL (http://host:8080) or link URL (serial://, tcp://, mqtt://, ws://)",
				EnvVars: []string{"TESTBOARD_ENDPOINT"},
			},
			&cli.DurationFlag{
				Name:  "link-timeout",
				Usage: "Transaction timeout for direct link connections",
				Value: link.DefaultTimeout,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
		},
		Before: func(c *cli.Context) error {
			flag.Set("logtostderr", "true")
			if c.Bool("verbose") {
				flag.Set("v", "2")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "ci",
				Usage:  "Upload an image, run the test and save the console log",
				Action: runCI,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "iso", Usage: "Path to the OS image", Required: true},
					&cli.StringFlag{Name: "output", Usage: "Path to write the UART log", Required: true},
					&cli.DurationFlag{Name: "timeout", Usage: "Test timeout", Value: client.DefaultTimeout},
					&cli.DurationFlag{Name: "interval", Usage: "Status poll interval", Value: client.DefaultPollInterval},
				},
			},
			{
				Name:      "shell",
				Aliases:   []string{"sh"},
				Usage:     "Interactive shell, or run a single shell command",
				ArgsUsage: "[COMMAND ARGS...]",
				Action:    runShell,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "e", Usage: "Evaluation only, no interactive shell"},
					&cli.BoolFlag{Name: "json", Usage: "Print output in JSON"},
				},
			},
		},
	}
}

func main() {
	defer glog.Flush()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
