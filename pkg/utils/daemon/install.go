// Package daemon installs the acuity daemon as a systemd service.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultUnitPath is where the service unit is written.
	DefaultUnitPath = "/etc/systemd/system/acuity.service"
	// UnitName is the systemd name of the service.
	UnitName = "acuity.service"
)

const unitTemplate = `[Unit]
Description=acuity visual acuity test daemon
After=network.target

[Service]
ExecStart=/path/to/acuity daemon
Restart=on-failure
RestartSec=2

[Install]
WantedBy=multi-user.target
`

// Options are the daemon flags baked into the unit.
type Options struct {
	ConfigPath               string
	SocketPath               string
	AlwaysAllowNonRootAccess bool
}

// Installer writes the unit file and drives systemctl.
type Installer struct {
	UnitPath string
	// Run executes a command. It defaults to running it with os/exec.
	Run func(name string, args ...string) error
}

// NewInstaller returns an installer for the system-wide unit path.
func NewInstaller() *Installer {
	return &Installer{UnitPath: DefaultUnitPath, Run: runCommand}
}

func runCommand(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Unit renders the service unit that starts exePath as a daemon.
func Unit(exePath string, opts Options) string {
	execStart := exePath + " daemon"
	if opts.ConfigPath != "" {
		execStart += " --config " + opts.ConfigPath
	}
	if opts.SocketPath != "" {
		execStart += " --daemon-socket " + opts.SocketPath
	}
	if opts.AlwaysAllowNonRootAccess {
		execStart += " --always-allow-non-root-access"
	}
	return strings.ReplaceAll(unitTemplate, "/path/to/acuity daemon", execStart)
}

// Install writes the unit for exePath, then enables and starts it.
func (i *Installer) Install(exePath string, opts Options) error {
	exePath, err := filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the executable: %w", err)
	}

	logrus.Infof("executable path: %s", exePath)

	dir := filepath.Dir(i.UnitPath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	// warn if the file already exists
	_, err = os.Stat(i.UnitPath)
	if err == nil {
		logrus.Warnf("%s already exists, overwriting", i.UnitPath)
	}

	logrus.Infof("writing service unit to %s", i.UnitPath)

	err = os.WriteFile(i.UnitPath, []byte(Unit(exePath, opts)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", i.UnitPath, err)
	}

	logrus.Infof("starting acuity")

	if err := i.Run("systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if err := i.Run("systemctl", "enable", "--now", UnitName); err != nil {
		return fmt.Errorf("failed to enable %s: %w", UnitName, err)
	}

	return nil
}
