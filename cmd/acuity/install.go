package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/acuitylab/acuity/pkg/config"
	daemonutils "github.com/acuitylab/acuity/pkg/utils/daemon"
)

var gInstallation = "Installation:"

func init() {
	commandGroups = append(commandGroups, gInstallation)
}

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:         "install",
		Short:       "Install acuity daemon (system-wide)",
		GroupID:     gInstallation,
		Annotations: map[string]string{annotationOffline: "true"},
		Long: `Install acuity daemon as a systemd service (system-wide).

This makes the daemon run in the background and start on boot. You must run this command as root.

By default, only root is allowed to talk to the daemon. Use --allow-non-root-access to let other users run tests without sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the acuity daemon.")
			} else {
				logrus.Info("only root user is allowed to access the acuity daemon.")
			}

			exePath, err := os.Executable()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to get the path to the current executable")
			}

			err = daemonutils.NewInstaller().Install(exePath, daemonutils.Options{
				ConfigPath: configPath,
				SocketPath: unixSocketPath,
			})
			if err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v", err)
			}

			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			logrus.Infof("installation succeeded")

			cmd.Printf("systemd will start the current binary (%s) at boot, so do not move it. If it is moved or deleted, run `acuity install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access acuity daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "uninstall",
		Short:       "Uninstall acuity daemon (system-wide)",
		GroupID:     gInstallation,
		Annotations: map[string]string{annotationOffline: "true"},
		Long: `Uninstall acuity daemon from systemd (system-wide).

This stops the daemon and removes its service unit. You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.NewInstaller().Uninstall()
			if err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			fmt.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s, including the saved screen calibration. Remove it manually for a complete uninstall.\n", configPath)

			return nil
		},
	}

	return cmd
}
