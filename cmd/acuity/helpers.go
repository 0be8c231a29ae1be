package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/acuitylab/acuity/pkg/acuity"
	"github.com/acuitylab/acuity/pkg/calibration"
	"github.com/acuitylab/acuity/pkg/chart"
	"github.com/acuitylab/acuity/pkg/optotype"
	"github.com/acuitylab/acuity/pkg/staircase"
)

// annotationOffline marks commands that must not contact the daemon before
// running.
const annotationOffline = "acuity/offline"

func parseFloatArg(arg string, valueName string) (float64, error) {
	value, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}
	return value, nil
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func arrows(row []optotype.Orientation) string {
	s := make([]string, len(row))
	for i, o := range row {
		s[i] = o.Arrow()
	}
	return strings.Join(s, "  ")
}

func classificationText(c acuity.Classification) string {
	switch c {
	case acuity.ClassNormal:
		return color.GreenString(c.Description())
	case acuity.ClassBetter:
		return color.New(color.Bold, color.FgGreen).Sprint(c.Description())
	default:
		return color.YellowString(c.Description())
	}
}

func printSettings(cmd *cobra.Command, st calibration.Settings) {
	if st.Calibrated() {
		cmd.Printf("  Scale: %s\n", bold("%.3f px/mm", st.PixelsPerMm))
	} else {
		cmd.Printf("  Scale: %s\n", color.YellowString("not calibrated"))
	}
	cmd.Printf("  Reference object: %s (%s)\n", bold("%s", st.ReferenceObject), bold("%g mm", st.ReferenceWidthMm))
	cmd.Printf("  Viewing distance: %s\n", bold("%g cm", st.ViewingDistanceCm))
	cmd.Printf("  Frozen: %s\n", bool2Text(st.Frozen))
}

func printPresentation(cmd *cobra.Command, row *chart.Row) {
	label := bold("%s", row.Level)
	if row.Refining {
		label += color.CyanString(" (refining)")
	}
	cmd.Printf("Level %s, ring size %s\n", label, bold("%.1f px", row.SizePx))
	cmd.Printf("  %s\n", arrows(row.Orientations))
}

func printSnapshot(cmd *cobra.Command, snap *staircase.Snapshot) {
	cmd.Printf("  Phase: %s\n", bold("%s", snap.Phase))
	cmd.Printf("  Direction: %s\n", snap.Direction)
	if !snap.Terminal {
		cmd.Printf("  Current level: %s\n", bold("%s", snap.Level))
		if snap.Refining() {
			cmd.Printf("  Refining: %s (%d of %d)\n", levels(snap.Refinement), snap.RefinementIndex+1, len(snap.Refinement))
		}
	}
	cmd.Printf("  Trials: %d\n", len(snap.History))
	if snap.Terminal {
		printResult(cmd, snap)
	}
}

func printResult(cmd *cobra.Command, snap *staircase.Snapshot) {
	cmd.Println(bold("Results:"))
	for _, t := range snap.History.Sorted() {
		cmd.Printf("  %-6s %s\n", t.Level, bool2Text(t.CouldSee))
	}
	cmd.Printf("Your visual acuity: %s\n", color.New(color.Bold, color.FgCyan).Sprint(snap.FinalAcuity))
	cmd.Println(classificationText(snap.Classification))
}

func levels(ls []acuity.Level) string {
	s := make([]string, len(ls))
	for i, l := range ls {
		s[i] = string(l)
	}
	return strings.Join(s, " ")
}
