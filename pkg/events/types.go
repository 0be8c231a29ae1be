package events

import "encoding/json"

// Event names published by the daemon.
const (
	SessionCreated     = "session.created"
	SessionCalibration = "session.calibration"
	SessionLevel       = "session.level"
	SessionComplete    = "session.complete"
	SessionDeleted     = "session.deleted"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// SessionCreatedEvent is the payload for session.created.
type SessionCreatedEvent struct {
	ID    string `json:"id"`
	Level string `json:"level"`
	Ts    int64  `json:"ts"`
}

// SessionCalibrationEvent is the payload for session.calibration. It is
// sent whenever a session's calibration changes or is frozen.
type SessionCalibrationEvent struct {
	ID                string  `json:"id"`
	PixelsPerMm       float64 `json:"pixelsPerMm"`
	ReferenceObject   string  `json:"referenceObject"`
	ViewingDistanceCm float64 `json:"viewingDistanceCm"`
	Frozen            bool    `json:"frozen"`
	Ts                int64   `json:"ts"`
}

// SessionLevelEvent is the payload for session.level, sent when a new row
// is presented.
type SessionLevelEvent struct {
	ID       string  `json:"id"`
	Phase    string  `json:"phase"`
	Level    string  `json:"level"`
	SizePx   float64 `json:"sizePx"`
	Refining bool    `json:"refining"`
	Trials   int     `json:"trials"`
	Ts       int64   `json:"ts"`
}

// SessionCompleteEvent is the payload for session.complete.
type SessionCompleteEvent struct {
	ID             string `json:"id"`
	FinalAcuity    string `json:"finalAcuity"`
	Classification string `json:"classification"`
	Trials         int    `json:"trials"`
	Ts             int64  `json:"ts"`
}

// SessionDeletedEvent is the payload for session.deleted.
type SessionDeletedEvent struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Ts     int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.SessionCompleteEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.ID, payload.FinalAcuity)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
