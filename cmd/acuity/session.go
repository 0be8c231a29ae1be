package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Short:   "Manage test sessions",
		GroupID: gBasic,
		Long: `Manage test sessions.

A session starts in setup. Calibrate it, then "start" it to freeze the
calibration and present the first row. Answers are given with "see" and
"unclear".`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "new",
			Short: "Create a session",
			RunE: func(cmd *cobra.Command, _ []string) error {
				v, err := apiClient.CreateSession()
				if err != nil {
					return fmt.Errorf("failed to create session: %v", err)
				}
				cmd.Println(v.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List session ids",
			RunE: func(cmd *cobra.Command, _ []string) error {
				ids, err := apiClient.ListSessions()
				if err != nil {
					return fmt.Errorf("failed to list sessions: %v", err)
				}
				for _, id := range ids {
					cmd.Println(id)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show [id]",
			Short: "Show a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := apiClient.GetSession(args[0])
				if err != nil {
					return fmt.Errorf("failed to get session: %v", err)
				}
				cmd.Printf("Session %s (created %s)\n", bold("%s", v.ID), v.CreatedAt.Format("15:04:05"))
				cmd.Printf("  Setup: %s\n", bool2Text(v.Setup))
				cmd.Println(bold("Calibration:"))
				printSettings(cmd, v.Calibration)
				cmd.Println(bold("Staircase:"))
				printSnapshot(cmd, &v.State)
				return nil
			},
		},
		&cobra.Command{
			Use:   "start [id]",
			Short: "Finish setup and start the test",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				if _, err := apiClient.StartTest(args[0]); err != nil {
					return fmt.Errorf("failed to start test: %v", err)
				}
				logrus.Infof("test started, calibration is frozen")
				return nil
			},
		},
		&cobra.Command{
			Use:   "recalibrate [id]",
			Short: "Return to setup to change the calibration",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				if _, err := apiClient.Recalibrate(args[0]); err != nil {
					return fmt.Errorf("failed to return to setup: %v", err)
				}
				logrus.Infof("back in setup, test progress is kept")
				return nil
			},
		},
		&cobra.Command{
			Use:   "row [id]",
			Short: "Show the row being presented",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				row, err := apiClient.GetPresentation(args[0])
				if err != nil {
					return fmt.Errorf("failed to get presentation: %v", err)
				}
				printPresentation(cmd, row)
				return nil
			},
		},
		newResponseCommand("see", "The patient could read the row", true),
		newResponseCommand("unclear", "The patient could not read the row", false),
		&cobra.Command{
			Use:   "restart [id]",
			Short: "Restart the test from the first level",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				snap, err := apiClient.Restart(args[0])
				if err != nil {
					return fmt.Errorf("failed to restart: %v", err)
				}
				printSnapshot(cmd, snap)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete [id]",
			Short: "Delete a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := apiClient.DeleteSession(args[0]); err != nil {
					return fmt.Errorf("failed to delete session: %v", err)
				}
				logrus.Infof("deleted session %s", args[0])
				return nil
			},
		},
	)

	return cmd
}

func newResponseCommand(use, short string, couldSee bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := apiClient.SubmitResponse(args[0], couldSee)
			if err != nil {
				return fmt.Errorf("failed to submit response: %v", err)
			}
			if snap.Terminal {
				printResult(cmd, snap)
				return nil
			}
			row, err := apiClient.GetPresentation(args[0])
			if err != nil {
				return fmt.Errorf("failed to get presentation: %v", err)
			}
			printPresentation(cmd, row)
			return nil
		},
	}
}
