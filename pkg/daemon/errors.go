package daemon

import "errors"

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotCalibrated is returned when a test is started before the screen
	// scale is known.
	ErrNotCalibrated = errors.New("screen is not calibrated")
	// ErrInSetup is returned for responses submitted before the test started.
	ErrInSetup = errors.New("session is still in setup")
	// ErrTestComplete is returned when a row is requested after the test ended.
	ErrTestComplete = errors.New("test is complete")
)
