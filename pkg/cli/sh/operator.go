package sh

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/slab.go/pkg/cal"
)

// console is the part of ishell.Context the operator prompts with.
type console interface {
	Print(val ...interface{})
	Println(val ...interface{})
	ReadLineErr() (string, error)
}

// Operator implements cal.Operator over the shell input.
type Operator struct {
	c console
}

// OperatorFrom creates an Operator for the running command.
func OperatorFrom(c *ishell.Context) *Operator {
	return &Operator{c: c}
}

// Notify implements cal.Operator.
func (o *Operator) Notify(msg string) {
	o.c.Println(msg)
}

func (o *Operator) readLine() (string, error) {
	line, err := o.c.ReadLineErr()
	if err != nil {
		return "", fmt.Errorf("operator input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Confirm implements cal.Operator, "q" aborts.
func (o *Operator) Confirm(msg string) error {
	o.c.Print(msg + " (enter to continue, q to abort) ")
	line, err := o.readLine()
	if err != nil {
		return err
	}
	if line == "q" {
		return cal.ErrAborted
	}
	return nil
}

// ReadVoltage implements cal.Operator. It asks again on invalid input,
// "q" aborts and end of input fails.
func (o *Operator) ReadVoltage(prompt string) (float64, error) {
	for {
		o.c.Print(prompt + " [V]: ")
		line, err := o.readLine()
		if err != nil {
			return 0, err
		}
		if line == "q" {
			return 0, cal.ErrAborted
		}
		v, err := strconv.ParseFloat(line, 64)
		if err == nil {
			return v, nil
		}
		o.c.Println(fmt.Sprintf("invalid voltage %q", line))
	}
}
