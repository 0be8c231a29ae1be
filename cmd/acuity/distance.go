package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/acuitylab/acuity/pkg/distance"
)

const (
	frameInterval = 100 * time.Millisecond
	frameTimeout  = 2 * time.Second
)

func NewDistanceCommand() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:     "distance",
		Short:   "Measure the patient's distance with the face-detection backend",
		GroupID: gCalibration,
		Long: `Measure the patient's distance with the face-detection backend.

The backend estimates distance from the size of the patient's face. It first
needs one frame taken at arm's length ("distance calibrate"), after which
frames are measured until the patient holds the 4 m target.`,
		Annotations: map[string]string{annotationOffline: "true"},
	}

	cmd.PersistentFlags().StringVar(&backend, "backend", "", "backend WebSocket URL (default: from the daemon config)")

	dial := func(ctx context.Context) (*distance.Client, error) {
		url := backend
		if url == "" {
			url = distance.DefaultBackendURL
			if raw, err := apiClient.GetConfig(); err == nil && raw.DistanceBackend != nil {
				url = *raw.DistanceBackend
			}
		}
		return distance.Dial(ctx, url)
	}

	var armImage string
	calibrate := &cobra.Command{
		Use:         "calibrate",
		Short:       "Calibrate the backend from a frame taken at arm's length",
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			frame, err := readFrame(armImage)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			c, err := dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.BeginCalibration(ctx)
			if err != nil {
				return fmt.Errorf("failed to begin calibration: %v", err)
			}
			logrus.Info(resp.Message)

			resp, err = c.CaptureCalibrationFrame(ctx, frame)
			if err != nil {
				return fmt.Errorf("failed to capture calibration frame: %v", err)
			}
			if !resp.Calibrated() {
				return fmt.Errorf("backend did not calibrate: %s", resp.Message)
			}
			logrus.WithField("focalLength", resp.FocalLength).Info(resp.Message)
			return nil
		},
	}
	calibrate.Flags().StringVar(&armImage, "image", "", "JPEG frame of the patient at arm's length")
	_ = calibrate.MarkFlagRequired("image")

	var (
		images    []string
		sessionID string
		maxFrames int
	)
	measure := &cobra.Command{
		Use:         "measure",
		Short:       "Measure frames until the patient holds the target distance",
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			frames := make([]string, 0, len(images))
			for _, p := range images {
				f, err := readFrame(p)
				if err != nil {
					return err
				}
				frames = append(frames, f)
			}

			ctx := cmd.Context()
			dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			c, err := dial(dialCtx)
			cancel()
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.BeginDistanceMeasurement(ctx); err != nil {
				return fmt.Errorf("failed to begin measurement: %v", err)
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), frameTimeout)
				defer cancel()
				if c.Broken() {
					return
				}
				if _, err := c.Stop(stopCtx); err != nil {
					logrus.Warnf("failed to stop measurement: %v", err)
				}
			}()

			tracker := distance.NewTracker()
			ticker := time.NewTicker(frameInterval)
			defer ticker.Stop()

			for i := 0; i < maxFrames; i++ {
				<-ticker.C

				frameCtx, cancel := context.WithTimeout(ctx, frameTimeout)
				resp, err := c.SendFrame(frameCtx, frames[i%len(frames)])
				cancel()
				if err != nil {
					logrus.Warnf("frame %d: %v", i, err)
					if !errors.Is(err, distance.ErrConnectionLost) {
						continue
					}
					if ctx.Err() != nil {
						return ctx.Err()
					}
					if err := resumeMeasurement(ctx, c); err != nil {
						logrus.Warnf("failed to reconnect to distance backend: %v", err)
					}
					continue
				}

				reached := tracker.Observe(resp)
				if d, ok := resp.Distance(); ok {
					logrus.WithFields(logrus.Fields{
						"frame":    i,
						"distance": fmt.Sprintf("%.2fm", d),
						"atTarget": tracker.AtTarget(d),
					}).Debug("measured")
				} else {
					logrus.WithField("frame", i).Debug("no face detected")
				}
				if !reached {
					continue
				}

				cm := tracker.Last() * 100
				cmd.Printf("Patient is at %s\n", bold("%.0f cm", cm))
				if sessionID != "" {
					if _, err := apiClient.SetViewingDistance(sessionID, cm); err != nil {
						return fmt.Errorf("failed to set viewing distance: %v", err)
					}
					logrus.Infof("viewing distance of session %s set to %.0f cm", sessionID, cm)
				}
				return nil
			}

			if d := tracker.Last(); d > 0 {
				return fmt.Errorf("patient did not hold %.1fm (last seen at %.2fm)", distance.TargetDistanceM, d)
			}
			return fmt.Errorf("no face detected in %d frames", maxFrames)
		},
	}
	mf := measure.Flags()
	mf.StringSliceVar(&images, "image", nil, "JPEG frames to send, cycled in order")
	mf.StringVar(&sessionID, "session", "", "set this session's viewing distance once the target is held")
	mf.IntVar(&maxFrames, "frames", 150, "give up after this many frames")
	_ = measure.MarkFlagRequired("image")

	cmd.AddCommand(calibrate, measure)

	return cmd
}

// resumeMeasurement reconnects after a lost frame and puts the backend back
// into distance mode.
func resumeMeasurement(ctx context.Context, c *distance.Client) error {
	ctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()

	if err := c.Reconnect(ctx); err != nil {
		return err
	}
	_, err := c.BeginDistanceMeasurement(ctx)
	return err
}

func readFrame(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read frame: %v", err)
	}
	return distance.JPEGDataURL(b), nil
}
