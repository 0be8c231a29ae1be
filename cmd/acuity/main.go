package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/acuitylab/acuity/pkg/client"
	"github.com/acuitylab/acuity/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/acuity.sock"
	configPath     = "/etc/acuity.json"
)

var (
	gBasic        = "Basic:"
	gCalibration  = "Calibration:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gBasic,
		gCalibration,
		gAdvanced,
	}
)

var apiClient *client.Client

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: acuity daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'acuity daemon', or point --daemon-socket at a running one.")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or start the daemon with '--always-allow-non-root-access' to grant permissions to your user")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

// getVersion returns the client and daemon versions.
func getVersion() (string, string, error) {
	daemonVersion, err := apiClient.GetVersion()
	if err != nil {
		return version.Version, "", err
	}
	return version.Version, daemonVersion, nil
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acuity",
		Short: "acuity runs adaptive Landolt C visual acuity tests",
		Long: `acuity runs adaptive Landolt C visual acuity tests.

A daemon hosts test sessions. Each session calibrates the screen against an
object of known width, then walks a Snellen ladder until the patient's
threshold is found.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			// The daemon itself and offline commands do not talk to a daemon.
			if cmd.Annotations[annotationOffline] != "" {
				return nil
			}

			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. acuity may not work as expected.")
				}
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "acuity daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewTestCommand(),
		NewSessionCommand(),
		NewCalibrateCommand(),
		NewReferenceObjectsCommand(),
		NewDistanceCommand(),
		NewChartCommand(),
		NewEventsCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
