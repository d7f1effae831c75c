package env

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const appID = "slab"

// MachineID retrieves the ID identifying the machine, hashed for this
// application. It is empty if the ID is not available.
func MachineID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Errorf("machine id: %v", err)
		return ""
	}
	return id
}
