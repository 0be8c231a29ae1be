package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/acuitylab/acuity/pkg/config"
	"github.com/acuitylab/acuity/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		Annotations: map[string]string{annotationOffline: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
			if _, daemonVersion, err := getVersion(); err == nil {
				cmd.Printf("daemon: %s\n", daemonVersion)
			}
		},
	}
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of acuity",
		Long:    `Get daemon configuration and the list of live sessions.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := apiClient.GetConfig()
			if err != nil {
				return fmt.Errorf("failed to get config: %w", err)
			}
			ids, err := apiClient.ListSessions()
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}

			conf := config.NewFileFromConfig(raw, "")

			cmd.Println(bold("Defaults for new sessions:"))
			if ppmm := conf.PixelsPerMm(); ppmm > 0 {
				cmd.Printf("  Remembered scale: %s\n", bold("%.3f px/mm", ppmm))
			} else {
				cmd.Printf("  Remembered scale: %s\n", color.YellowString("none"))
			}
			cmd.Printf("  Reference object: %s\n", bold("%s", conf.ReferenceObject()))
			cmd.Printf("  Viewing distance: %s\n", bold("%g cm", conf.ViewingDistanceCm()))
			cmd.Printf("  Ladder: %s\n", levels(conf.Ladder().Levels()))
			cmd.Printf("  Start level: %s\n", bold("%s", conf.StartLevel()))
			cmd.Printf("  Rings per row: %d\n", conf.SymbolsPerRow())
			cmd.Printf("  Idle sessions removed after: %s\n", conf.SessionTTL())
			cmd.Println()

			cmd.Println(bold("Daemon:"))
			cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
			cmd.Printf("  TCP listener: %s\n", orNone(conf.ListenAddr()))
			cmd.Printf("  MQTT broker: %s\n", orNone(conf.MQTTBroker()))
			cmd.Printf("  Distance backend: %s\n", conf.DistanceBackend())
			cmd.Println()

			cmd.Println(bold("Sessions:"))
			if len(ids) == 0 {
				cmd.Println("  none")
			}
			for _, id := range ids {
				v, err := apiClient.GetSession(id)
				if err != nil {
					logrus.WithError(err).WithField("session", id).Warn("failed to get session")
					continue
				}
				state := string(v.State.Phase)
				switch {
				case v.Setup:
					state = "setup"
				case v.State.Terminal:
					state = "complete: " + string(v.State.FinalAcuity)
				}
				cmd.Printf("  %s  %s\n", id, bold("%s", state))
			}
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// NewTestCommand runs a whole test from the terminal: the patient reads
// the row on the chart screen and the operator types the answers.
func NewTestCommand() *cobra.Command {
	var (
		sessionID  string
		ppmm       float64
		distanceCm float64
		keep       bool
	)

	cmd := &cobra.Command{
		Use:     "test",
		Short:   "Run an acuity test interactively",
		GroupID: gBasic,
		Long: `Run an acuity test interactively.

For each row, answer "y" if the patient could read the gap directions and
"n" if not. "r" restarts the test and "q" quits.

The screen must be calibrated first, either with --pixels-per-mm or with
"acuity calibrate" on an existing session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id := sessionID
			if id == "" {
				v, err := apiClient.CreateSession()
				if err != nil {
					return fmt.Errorf("failed to create session: %v", err)
				}
				id = v.ID
				logrus.Infof("created session %s", id)
				if !keep {
					defer func() {
						if err := apiClient.DeleteSession(id); err != nil {
							logrus.Warnf("failed to delete session %s: %v", id, err)
						}
					}()
				}
			}

			if ppmm > 0 {
				if _, err := apiClient.SetPixelsPerMm(id, ppmm); err != nil {
					return fmt.Errorf("failed to set calibration: %v", err)
				}
			}
			if distanceCm > 0 {
				if _, err := apiClient.SetViewingDistance(id, distanceCm); err != nil {
					return fmt.Errorf("failed to set viewing distance: %v", err)
				}
			}

			v, err := apiClient.StartTest(id)
			if err != nil {
				return fmt.Errorf("failed to start test: %v", err)
			}
			cmd.Println(bold("Calibration:"))
			printSettings(cmd, v.Calibration)
			cmd.Println()

			return runInteractive(cmd, id, cmd.InOrStdin())
		},
	}

	f := cmd.Flags()
	f.StringVar(&sessionID, "session", "", "use an existing session instead of creating one")
	f.Float64Var(&ppmm, "pixels-per-mm", 0, "screen scale in pixels per millimeter")
	f.Float64Var(&distanceCm, "distance", 0, "viewing distance in centimeters")
	f.BoolVar(&keep, "keep", false, "keep the created session after the test")

	return cmd
}

var (
	errQuit    = errors.New("quit")
	errRestart = errors.New("restart")
)

func runInteractive(cmd *cobra.Command, id string, in io.Reader) error {
	prompt := true
	if f, ok := in.(*os.File); ok {
		prompt = term.IsTerminal(int(f.Fd()))
	}
	reader := bufio.NewReader(in)

	for {
		row, err := apiClient.GetPresentation(id)
		if err != nil {
			return fmt.Errorf("failed to get presentation: %v", err)
		}
		printPresentation(cmd, row)

		couldSee, err := ask(cmd, reader, prompt)
		if errors.Is(err, errQuit) {
			cmd.Println("test aborted")
			return nil
		}
		if errors.Is(err, errRestart) {
			if _, err := apiClient.Restart(id); err != nil {
				return fmt.Errorf("failed to restart: %v", err)
			}
			cmd.Println(color.CyanString("restarted"))
			continue
		}
		if err != nil {
			return err
		}

		snap, err := apiClient.SubmitResponse(id, couldSee)
		if err != nil {
			return fmt.Errorf("failed to submit response: %v", err)
		}
		if snap.Terminal {
			cmd.Println()
			printResult(cmd, snap)
			return nil
		}
	}
}

func ask(cmd *cobra.Command, reader *bufio.Reader, prompt bool) (bool, error) {
	for {
		if prompt {
			cmd.Print("Could the patient see this row? [y/n/r/q] ")
		}
		line, err := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		switch answer {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		case "r", "restart":
			return false, errRestart
		case "q", "quit":
			return false, errQuit
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, errQuit
			}
			return false, fmt.Errorf("failed to read answer: %v", err)
		}
		if answer != "" {
			cmd.Println(`please answer "y" or "n"`)
		}
	}
}
