package env

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/robotalks/slab.go/pkg/board"
	"github.com/robotalks/slab.go/pkg/cal"
)

func TestSessionConfig(t *testing.T) {
	c := NewConfig()
	c.Port = "/dev/ttyACM1"
	c.DataDir = "data"
	c.CalPrefix = "b2_"
	c.ProbeTimeout = time.Second
	c.AutoReset = false
	conf := c.SessionConfig()
	assert.Equal(t, "/dev/ttyACM1", conf.Port)
	assert.Equal(t, board.DefaultBaudRate, conf.BaudRate)
	assert.Equal(t, time.Second, conf.ProbeTimeout)
	assert.False(t, conf.AutoReset)
	assert.NotNil(t, conf.Opener)
	store, ok := conf.Store.(*cal.FileStore)
	if assert.True(t, ok) {
		assert.Equal(t, filepath.Join("data", "b2_cal_dac.pb"), store.Path(cal.DACCalibration))
	}
}

func TestNewConfigCopies(t *testing.T) {
	c := NewConfig()
	c.DataDir = "elsewhere"
	assert.NotEqual(t, "elsewhere", Default().DataDir)
	assert.Equal(t, cal.DefaultSettle, Default().Settle)
}
