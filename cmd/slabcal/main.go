package main

import (
	"github.com/robotalks/slab.go/pkg/cli/sh"
	"github.com/robotalks/slab.go/pkg/env"

	_ "github.com/robotalks/slab.go/pkg/cli/cmds/all"
)

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
