package client

import "errors"

var (
	// ErrDaemonNotRunning is returned when the daemon is not running
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the user does not have permission to perform the requested action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when the session or route does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the session is in the wrong state for the request,
	// e.g. responding before calibration is done
	ErrConflict = errors.New("session state conflict")

	// ErrBadRequest is returned when the daemon rejects a value, e.g. a negative distance
	ErrBadRequest = errors.New("bad request")
)
