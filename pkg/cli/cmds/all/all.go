package all

import (
	// registering commands
	_ "github.com/robotalks/slab.go/pkg/cli/cmds/analog"
	_ "github.com/robotalks/slab.go/pkg/cli/cmds/calib"
	_ "github.com/robotalks/slab.go/pkg/cli/cmds/capture"
)
