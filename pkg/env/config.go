// Package env provides the common configuration of slab tools.
package env

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/robotalks/slab.go/pkg/board"
	"github.com/robotalks/slab.go/pkg/cal"
)

// Config provides common options to setup a board session.
type Config struct {
	// Port is the serial port, empty to autodetect.
	Port     string
	BaudRate int
	// DataDir keeps calibration data and the last good port.
	DataDir string
	// CalPrefix names calibration files of one board.
	CalPrefix    string
	ProbeTimeout time.Duration
	AutoReset    bool
	// Settle is the delay between calibration steps.
	Settle time.Duration
}

var defaultConfig = Config{
	BaudRate:     board.DefaultBaudRate,
	DataDir:      ".",
	ProbeTimeout: 500 * time.Millisecond,
	AutoReset:    true,
	Settle:       cal.DefaultSettle,
}

func init() {
	if val := os.Getenv("SLAB_PORT"); val != "" {
		defaultConfig.Port = val
	}
	if val := os.Getenv("SLAB_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.BaudRate = baud
		}
	}
	if val := os.Getenv("SLAB_DATA_DIR"); val != "" {
		defaultConfig.DataDir = val
	}
	if val := os.Getenv("SLAB_CAL_PREFIX"); val != "" {
		defaultConfig.CalPrefix = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Serial port of the board, autodetect if empty.")
	flag.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Serial baud rate.")
	flag.StringVar(&defaultConfig.DataDir, "data-dir", defaultConfig.DataDir, "Directory of calibration data.")
	flag.StringVar(&defaultConfig.CalPrefix, "cal-prefix", defaultConfig.CalPrefix, "Prefix of calibration files.")
	flag.DurationVar(&defaultConfig.ProbeTimeout, "probe-timeout", defaultConfig.ProbeTimeout, "Timeout for probing each port.")
	flag.BoolVar(&defaultConfig.AutoReset, "auto-reset", defaultConfig.AutoReset, "Reset a board found out of reset state.")
	flag.DurationVar(&defaultConfig.Settle, "settle", defaultConfig.Settle, "Delay between calibration steps.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Store returns the calibration store in DataDir.
func (c *Config) Store() *cal.FileStore {
	return &cal.FileStore{Dir: c.DataDir, CalPrefix: c.CalPrefix}
}

// SessionConfig builds the board session configuration.
func (c *Config) SessionConfig() board.Config {
	conf := board.DefaultConfig()
	conf.Port = c.Port
	if c.BaudRate > 0 {
		conf.BaudRate = c.BaudRate
	}
	if c.ProbeTimeout > 0 {
		conf.ProbeTimeout = c.ProbeTimeout
	}
	conf.AutoReset = c.AutoReset
	conf.Store = c.Store()
	conf.MachineID = MachineID()
	return conf
}

// NewSession creates a disconnected session.
func (c *Config) NewSession() *board.Session {
	return board.New(c.SessionConfig())
}

// MustConnect connects a session and fails on error.
func (c *Config) MustConnect() *board.Session {
	s := c.NewSession()
	if err := s.Connect(context.TODO()); err != nil {
		log.Fatalln(err)
	}
	return s
}
