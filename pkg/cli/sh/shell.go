// Package sh provides the interactive test board shell.
package sh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/testboard/pkg/client"
	"github.com/robotalks/testboard/pkg/coordinator/gateway"
	"github.com/robotalks/testboard/pkg/coordinator/state"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration
	Out         io.Writer

	Target string
	Board  client.Board

	closer io.Closer
	shell  *ishell.Shell
}

const unconnectedPrompt = "[none] > "

// New creates a new shell.
func New() *Shell {
	return &Shell{Interactive: true, Timeout: 2 * time.Second, Out: os.Stdout}
}

func (s *Shell) printf(format string, args ...interface{}) {
	fmt.Fprintf(s.Out, format, args...)
}

func (s *Shell) println(args ...interface{}) {
	fmt.Fprintln(s.Out, args...)
}

func (s *Shell) setPrompt() {
	if s.shell == nil {
		return
	}
	if s.Board == nil {
		s.shell.SetPrompt(unconnectedPrompt)
		return
	}
	s.shell.SetPrompt(fmt.Sprintf("[%s] > ", s.Target))
}

// Connect opens a board by URL, replacing the current one.
func (s *Shell) Connect(ctx context.Context, target string) error {
	b, closer, err := client.Open(ctx, target, s.Timeout)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Target, s.Board, s.closer = target, b, closer
	s.setPrompt()
	return nil
}

// Disconnect closes the current board.
func (s *Shell) Disconnect() {
	if s.closer != nil {
		s.closer.Close()
	}
	s.Board, s.closer, s.Target = nil, nil, ""
	s.setPrompt()
}

func (s *Shell) board() (client.Board, error) {
	if s.Board == nil {
		return nil, fmt.Errorf("not connected")
	}
	return s.Board, nil
}

// PrintStatus prints one status.
func (s *Shell) PrintStatus(st client.Status) {
	if s.OutputJSON {
		out, _ := json.Marshal(gateway.NewStatusJSON(state.Snapshot(st)))
		s.println(string(out))
		return
	}
	s.println(st.String())
}

// Status queries and prints the status.
func (s *Shell) Status(ctx context.Context) error {
	b, err := s.board()
	if err != nil {
		return err
	}
	st, err := b.Status(ctx)
	if err != nil {
		return err
	}
	s.PrintStatus(st)
	return nil
}

// Upload sends an image file.
func (s *Shell) Upload(ctx context.Context, path string) error {
	b, err := s.board()
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if err := b.Upload(ctx, f, info.Size()); err != nil {
		return err
	}
	s.printf("uploaded %d bytes\n", info.Size())
	return nil
}

// Run starts the test.
func (s *Shell) Run(ctx context.Context) error {
	b, err := s.board()
	if err != nil {
		return err
	}
	if err := b.Run(ctx); err != nil {
		return err
	}
	s.println("OK")
	return nil
}

// Log prints the captured console output.
func (s *Shell) Log(ctx context.Context) error {
	b, err := s.board()
	if err != nil {
		return err
	}
	data, err := client.ReadLog(ctx, b)
	if len(data) > 0 {
		s.Out.Write(data)
		if data[len(data)-1] != '\n' {
			s.println()
		}
	}
	return err
}

// Reset returns the board to idle.
func (s *Shell) Reset(ctx context.Context) error {
	b, err := s.board()
	if err != nil {
		return err
	}
	if err := b.Reset(ctx); err != nil {
		return err
	}
	s.println("OK")
	return nil
}

// Wait polls until the test ends or timeout passes.
func (s *Shell) Wait(ctx context.Context, timeout time.Duration) error {
	b, err := s.board()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err = client.WaitForCompletion(ctx, b, client.DefaultPollInterval, s.PrintStatus)
	return err
}

func (s *Shell) cmd(name string, aliases []string, help string, fn func(ctx context.Context, args []string) error) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    name,
		Aliases: aliases,
		Help:    help,
		Func: func(c *ishell.Context) {
			if err := fn(context.Background(), c.Args); err != nil {
				c.Err(err)
			}
		},
	}
}

func (s *Shell) commands() []*ishell.Cmd {
	noArgs := func(fn func(context.Context) error) func(context.Context, []string) error {
		return func(ctx context.Context, _ []string) error { return fn(ctx) }
	}
	return []*ishell.Cmd{
		s.cmd("connect", []string{"c"}, "URL (http://coordinator:8080 or a link URL)", func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("URL expected")
			}
			return s.Connect(ctx, args[0])
		}),
		s.cmd("disconnect", []string{"d"}, "", func(context.Context, []string) error {
			s.Disconnect()
			return nil
		}),
		s.cmd("ping", nil, "", func(ctx context.Context, _ []string) error {
			b, err := s.board()
			if err != nil {
				return err
			}
			if err := b.Ping(ctx); err != nil {
				return err
			}
			s.println("OK")
			return nil
		}),
		s.cmd("status", []string{"st"}, "", noArgs(s.Status)),
		s.cmd("upload", []string{"up"}, "FILE", func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("image file expected")
			}
			return s.Upload(ctx, args[0])
		}),
		s.cmd("run", nil, "", noArgs(s.Run)),
		s.cmd("log", nil, "", noArgs(s.Log)),
		s.cmd("reset", nil, "", noArgs(s.Reset)),
		s.cmd("wait", nil, "[TIMEOUT]", func(ctx context.Context, args []string) error {
			timeout := client.DefaultTimeout
			if len(args) > 0 {
				d, err := time.ParseDuration(args[0])
				if err != nil {
					return err
				}
				timeout = d
			}
			return s.Wait(ctx, timeout)
		}),
	}
}

// Main runs the shell. With args, they are processed as a single
// command and the shell exits.
func (s *Shell) Main(args ...string) {
	s.shell = ishell.New()
	for _, cmd := range s.commands() {
		s.shell.AddCmd(cmd)
	}
	s.setPrompt()
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.shell.Run()
		return
	}
	log.Fatalln("command expected: " + strings.Join(commandNames(s.commands()), ", "))
}

func commandNames(cmds []*ishell.Cmd) []string {
	names := make([]string, len(cmds))
	for n, cmd := range cmds {
		names[n] = cmd.Name
	}
	return names
}
