package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/acuitylab/acuity/pkg/chart"
)

func NewChartCommand() *cobra.Command {
	var (
		output        string
		width, height int
	)

	cmd := &cobra.Command{
		Use:     "chart [id]",
		Short:   "Save the current screen of a session as PNG",
		GroupID: gAdvanced,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			b, err := apiClient.GetChartPNG(args[0], width, height)
			if err != nil {
				return fmt.Errorf("failed to render chart: %v", err)
			}
			if err := os.WriteFile(output, b, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %v", output, err)
			}
			logrus.Infof("chart written to %s", output)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "chart.png", "output file")
	f.IntVar(&width, "width", chart.DefaultWidth, "image width in pixels")
	f.IntVar(&height, "height", chart.DefaultHeight, "image height in pixels")

	return cmd
}
