package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/acuitylab/acuity/pkg/calibration"
)

func NewCalibrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibrate",
		Short:   "Calibrate a session's screen and viewing distance",
		GroupID: gCalibration,
		Long: `Calibrate a session's screen and viewing distance.

Hold the reference object against the screen and resize the calibration
rectangle (see "acuity chart") until both are the same width. Then enter the
rectangle's width in pixels with "acuity calibrate pixels". Calibration can
only be changed while the session is in setup.`,
	}

	var customWidth float64
	object := &cobra.Command{
		Use:   "object [id] [key]",
		Short: "Select the reference object",
		Long: `Select the reference object.

Known objects are listed by "acuity reference-objects". For "custom", pass
the width with --width.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := apiClient.SetReferenceObject(args[0], args[1], customWidth)
			if err != nil {
				return fmt.Errorf("failed to set reference object: %v", err)
			}
			printSettings(cmd, *st)
			return nil
		},
	}
	object.Flags().Float64Var(&customWidth, "width", 0, "width of the custom object in millimeters")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "pixels [id] [width]",
			Short: "Calibrate from the on-screen width of the reference object",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				px, err := parseFloatArg(args[1], "width")
				if err != nil {
					return err
				}
				res, err := apiClient.CalibrateFromPixels(args[0], px)
				if err != nil {
					return fmt.Errorf("failed to calibrate: %v", err)
				}
				logrus.Infof("screen scale is %.4f px/mm", res.PixelsPerMm)
				return nil
			},
		},
		&cobra.Command{
			Use:   "scale [id] [pixels-per-mm]",
			Short: "Set the screen scale directly",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				v, err := parseFloatArg(args[1], "scale")
				if err != nil {
					return err
				}
				if _, err := apiClient.SetPixelsPerMm(args[0], v); err != nil {
					return fmt.Errorf("failed to set calibration: %v", err)
				}
				logrus.Infof("screen scale set to %g px/mm", v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "distance [id] [cm]",
			Short: "Set the viewing distance",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				cm, err := parseFloatArg(args[1], "distance")
				if err != nil {
					return err
				}
				if _, err := apiClient.SetViewingDistance(args[0], cm); err != nil {
					return fmt.Errorf("failed to set viewing distance: %v", err)
				}
				logrus.Infof("viewing distance set to %g cm", cm)
				return nil
			},
		},
		object,
		&cobra.Command{
			Use:   "save [id]",
			Short: "Remember this session's calibration for new sessions",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				st, err := apiClient.SaveCalibration(args[0])
				if err != nil {
					return fmt.Errorf("failed to save calibration: %v", err)
				}
				logrus.WithFields(logrus.Fields{
					"pixelsPerMm":       st.PixelsPerMm,
					"viewingDistanceCm": st.ViewingDistanceCm,
				}).Info("saved calibration as default")
				return nil
			},
		},
	)

	return cmd
}

func NewReferenceObjectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "reference-objects",
		Short:       "List the objects the screen can be calibrated against",
		GroupID:     gCalibration,
		Annotations: map[string]string{annotationOffline: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			for _, o := range calibration.ReferenceObjects() {
				cmd.Printf("  %-12s %-12s %s\n", o.Key, o.Name, bold("%g mm", o.WidthMm))
			}
		},
	}
}
