package daemon

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Uninstall stops and disables the service and removes its unit file. A
// missing unit is not an error.
func (i *Installer) Uninstall() error {
	// if the file doesn't exist, there is nothing to stop
	_, err := os.Stat(i.UnitPath)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Infof("%s does not exist, nothing to uninstall", i.UnitPath)
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", i.UnitPath, err)
	}

	logrus.Infof("stopping acuity")

	err = i.Run("systemctl", "disable", "--now", UnitName)
	if err != nil {
		return fmt.Errorf("failed to disable %s: %w. Are you root?", UnitName, err)
	}

	logrus.Infof("removing service unit")

	err = os.Remove(i.UnitPath)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", i.UnitPath, err)
	}

	return i.Run("systemctl", "daemon-reload")
}
