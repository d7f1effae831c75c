package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/slab.go/pkg/board"
	"github.com/robotalks/slab.go/pkg/env"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell   *ishell.Shell
	Config  *env.Config
	Session *board.Session
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&InfoCmd,
		&ResetCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:   ishell.New(),
		Config:  conf,
		Session: conf.NewSession(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session.State() != board.Ready {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Print prints v as JSON when enabled, otherwise as text.
func (s *Shell) Print(c *ishell.Context, v interface{}, text string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Print(text)
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect connects a board, on port or autodetected if port is empty.
func (s *Shell) Connect(port string) error {
	conf := s.Config.SessionConfig()
	if port != "" {
		conf.Port = port
	}
	conf.OnStateChange = func(st board.State) {
		if st == board.Disconnected {
			s.Shell.SetPrompt(unconnectedPrompt)
		}
	}
	if s.Session.State() != board.Disconnected {
		s.Session.Disconnect()
	}
	s.Session = board.New(conf)
	if err := s.Session.Connect(context.TODO()); err != nil {
		return err
	}
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", s.Session.PortName()))
	return nil
}

// Disconnect disconnects current board.
func (s *Shell) Disconnect() {
	if s.Session.State() != board.Disconnected {
		s.Session.Disconnect()
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect {
		if s.Interactive {
			s.Shell.Println("Connecting ...")
		}
		if err := s.Connect(s.Config.Port); err != nil {
			log.Fatalf("connect failed: %v", err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// PortsCmd lists candidate serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			names, err := board.EnumeratePorts()
			if err != nil {
				c.Err(err)
				return
			}
			if names == nil {
				// in case names is nil, make it empty slice.
				names = []string{}
			}
			if s.OutputJSON {
				s.Print(c, names, "")
				return
			}
			if len(names) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, name := range names {
				c.Println(name)
			}
		},
	}

	// ConnectCmd connects a board.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[PORT]",
		Func: func(c *ishell.Context) {
			var port string
			if len(c.Args) > 0 {
				port = c.Args[0]
			}
			if err := ShellFrom(c).Connect(port); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current board.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// InfoCmd shows the board capabilities.
	InfoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"i"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			caps := s.Session.Capabilities()
			s.Print(c, caps, caps.String())
		}),
	}

	// ResetCmd soft resets the board.
	ResetCmd = ishell.Cmd{
		Name:    "reset",
		Aliases: []string{},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).Session.SoftReset(); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoConnect(false).Run(flag.Args()...)
}
