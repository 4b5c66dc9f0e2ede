package mqtt

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// machineIDPath holds the systemd machine identity.
var machineIDPath = "/etc/machine-id"

// ClientID derives a per-device client identifier: prefix, a dash, and
// twelve hex characters of the machine id. Without a readable machine id
// a random UUID is used, which is unique but changes on every start.
func ClientID(prefix string) string {
	return prefix + "-" + deviceID()
}

func deviceID() string {
	if data, err := os.ReadFile(machineIDPath); err == nil {
		id := strings.TrimSpace(string(data))
		if len(id) >= 12 {
			return id[:12]
		}
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
