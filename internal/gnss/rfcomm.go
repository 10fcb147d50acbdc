package gnss

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

// rfcommBindPause is how long ensureDevice waits after issuing `rfcomm
// bind` for the device node to appear, before attempting to open it.
const rfcommBindPause = 2 * time.Second

// ensureDevice binds device to mac via `rfcomm bind` if device does not
// already exist, then waits briefly for the kernel to create the node.
func ensureDevice(device, mac string) error {
	if _, err := os.Stat(device); err == nil {
		return nil
	}
	if mac == "" {
		return fmt.Errorf("gnss: device %s missing and no bluetooth MAC configured to bind it", device)
	}

	cmd := exec.Command("rfcomm", "bind", device, mac)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gnss: rfcomm bind %s %s: %w (%s)", device, mac, err, out)
	}
	time.Sleep(rfcommBindPause)

	if _, err := os.Stat(device); err != nil {
		return fmt.Errorf("gnss: %s still missing after rfcomm bind: %w", device, err)
	}
	return nil
}
