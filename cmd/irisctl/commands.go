package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/iris-bridge/pkg/client"
	"github.com/morezero/iris-bridge/pkg/command"
	"github.com/morezero/iris-bridge/pkg/commsutil"
	"github.com/morezero/iris-bridge/pkg/transport"
	"github.com/morezero/iris-bridge/pkg/wire"
)

// CLI is the irisctl command line. Every flag can also come from a config
// file or an IRISCTL_* variable.
type CLI struct {
	Config   string        `help:"Config file (JSON, YAML or TOML)" type:"path" env:"IRISCTL_CONFIG"`
	URL      string        `help:"COMMS URL" default:"nats://127.0.0.1:4222" env:"IRISCTL_URL"`
	Instance string        `help:"Iris service instance" default:"default" env:"IRISCTL_INSTANCE"`
	Subject  string        `help:"Service subject (derived from instance when empty)" env:"IRISCTL_SUBJECT"`
	Fallback string        `help:"Fallback service subject used when the primary is unreachable" env:"IRISCTL_FALLBACK"`
	Timeout  time.Duration `help:"Per-call timeout" default:"5s" env:"IRISCTL_TIMEOUT"`
	LogLevel string        `help:"Log level" name:"log-level" default:"warn" enum:"debug,info,warn,error" env:"IRISCTL_LOG_LEVEL"`

	Get     GetCmd     `cmd:"" help:"Read the values of a feature type"`
	Set     SetCmd     `cmd:"" help:"Write the values of a feature type"`
	Command CommandCmd `cmd:"" help:"Apply a type-v1-v2 command string"`
	Watch   WatchCmd   `cmd:"" help:"Register a callback and print feature changes"`
	Version VersionCmd `cmd:"" help:"Show the remote interface version, hash and chip feature"`
}

// session is what every command runs against.
type session struct {
	primary *client.Proxy
	helper  *command.Helper
	timeout time.Duration
	out     io.Writer
	closers []func()
	// stop ends watch; nil means SIGINT/SIGTERM.
	stop <-chan struct{}
}

func (c *CLI) subject() string {
	if c.Subject != "" {
		return c.Subject
	}
	return commsutil.BuildServiceSubject(c.Instance, wire.InterfaceVersion)
}

func (c *CLI) connect() (*session, error) {
	nc, err := commsutil.Connect(c.URL, "irisctl", &commsutil.ConnectOpts{MaxReconnects: 1})
	if err != nil {
		return nil, err
	}
	t := transport.NewComms(nc, &transport.CommsOpts{CallTimeout: c.Timeout})
	s := newSession(t, c.subject(), c.Fallback, c.Timeout, os.Stdout)
	s.closers = append(s.closers, func() { _ = t.Close() }, func() { closeConn(nc) })
	return s, nil
}

func closeConn(nc *comms.Conn) {
	if err := nc.Drain(); err != nil {
		nc.Close()
	}
}

func newSession(t transport.Transport, subject, fallback string, timeout time.Duration, out io.Writer) *session {
	primary := client.New(t, subject)
	s := &session{primary: primary, timeout: timeout, out: out}
	s.helper = command.NewHelper(primary, nil)
	s.closers = append(s.closers, func() { _ = primary.Close() })
	if fallback != "" {
		fb := client.New(t, fallback)
		s.helper.Fallback = fb
		s.closers = append(s.closers, func() { _ = fb.Close() })
	}
	return s
}

func (s *session) Close() {
	for _, c := range s.closers {
		c()
	}
}

func (s *session) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func formatValues(values []int32) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// GetCmd reads one feature type.
type GetCmd struct {
	Type   int32   `arg:"" help:"Feature type"`
	Values []int32 `help:"Request values passed to the driver" default:"0"`
}

func (c *GetCmd) Run(s *session) error {
	ctx, cancel := s.ctx()
	defer cancel()
	values, err := s.primary.ConfigureGet(ctx, c.Type, c.Values)
	if err != nil {
		return err
	}
	if values == nil {
		fmt.Fprintf(s.out, "type %d: unsupported\n", c.Type)
		return nil
	}
	fmt.Fprintf(s.out, "type %d: %s\n", c.Type, formatValues(values))
	return nil
}

// SetCmd writes one feature type.
type SetCmd struct {
	Type   int32   `arg:"" help:"Feature type"`
	Values []int32 `arg:"" optional:"" help:"Values to apply"`
}

func (c *SetCmd) Run(s *session) error {
	ctx, cancel := s.ctx()
	defer cancel()
	status, err := s.primary.ConfigureSet(ctx, c.Type, c.Values)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "type %d: status %d\n", c.Type, status)
	if status != 0 {
		return fmt.Errorf("set type %d failed with status %d", c.Type, status)
	}
	return nil
}

// CommandCmd applies or reads a command string through the helper.
type CommandCmd struct {
	Command string `arg:"" help:"Command such as 258-1-0, or a bare type with --get"`
	Get     bool   `help:"Read the first value of the type instead of setting it"`
}

func (c *CommandCmd) Run(s *session) error {
	ctx, cancel := s.ctx()
	defer cancel()
	if c.Get {
		cmd, err := command.ParseCommand(c.Command)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%d\n", s.helper.GetCommand(ctx, cmd.Type))
		return nil
	}
	status := s.helper.SetCommand(ctx, c.Command)
	fmt.Fprintf(s.out, "%d\n", status)
	if status < 0 {
		return fmt.Errorf("command %q failed", c.Command)
	}
	return nil
}

// WatchCmd prints feature changes until interrupted or Count is reached.
type WatchCmd struct {
	Cookie int64 `help:"Callback cookie" default:"-2138930830"`
	Count  int   `help:"Exit after this many changes (0 = run until interrupted)"`
}

func (c *WatchCmd) Run(s *session) error {
	ctx, cancel := s.ctx()
	changes := make(chan string, 16)
	finished := make(chan struct{})
	defer close(finished)
	ok, err := s.helper.RegisterCallback(ctx, c.Cookie, client.CallbackFunc(func(featureType int32, values []int32) {
		select {
		case changes <- fmt.Sprintf("type %d: %s", featureType, formatValues(values)):
		case <-finished:
		}
	}))
	cancel()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("chip reports no feature support, nothing to watch")
	}

	stop := s.stop
	if stop == nil {
		sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stopSignals()
		stop = sigCtx.Done()
	}
	seen := 0
	for {
		select {
		case line := <-changes:
			fmt.Fprintln(s.out, line)
			seen++
			if c.Count > 0 && seen >= c.Count {
				return nil
			}
		case <-stop:
			return nil
		}
	}
}

// VersionCmd prints the remote identity.
type VersionCmd struct {
	Require string `help:"Fail unless the remote version satisfies this constraint (e.g. ^1)"`
}

func (c *VersionCmd) Run(s *session) error {
	ctx, cancel := s.ctx()
	defer cancel()
	v, err := s.primary.InterfaceVersion(ctx)
	if err != nil {
		return err
	}
	h, err := s.primary.InterfaceHash(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "endpoint: %s\nversion:  %d\nhash:     %s\nchip:     %d\n", s.primary.Endpoint(), v, h, s.helper.ChipFeature(ctx))
	if c.Require != "" {
		return s.primary.RequireVersion(ctx, c.Require)
	}
	return nil
}
