// Package distance talks to the face-detection backend that measures how far
// the patient sits from the camera. The backend is an external service; this
// package only models its JSON message exchange over a WebSocket.
package distance

// Command is a control message understood by the backend.
type Command string

const (
	CommandBeginCalibration Command = "start_calibration"
	CommandCapture          Command = "capture"
	CommandBeginDistance    Command = "start_distance"
	CommandStop             Command = "stop_all"
)

// Request is sent to the backend. A request without a command carries a
// camera frame for distance measurement.
type Request struct {
	Command Command `json:"command,omitempty"`
	// Image is a data URL ("data:image/jpeg;base64,...").
	Image string `json:"image,omitempty"`
}

// Face is one detected face.
type Face struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
	// DistanceM is the smoothed distance in meters, or -1 if unknown.
	DistanceM float64 `json:"distance"`
}

// Box is the expected face size at the target distance, in pixels.
type Box struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Response is any message received from the backend. Which fields are set
// depends on the request.
type Response struct {
	Success          *bool   `json:"success,omitempty"`
	Message          string  `json:"message,omitempty"`
	Error            string  `json:"error,omitempty"`
	FocalLength      float64 `json:"focal_length,omitempty"`
	Faces            []Face  `json:"faces,omitempty"`
	ReferenceBox     *Box    `json:"reference_box,omitempty"`
	FaceDetected     bool    `json:"face_detected"`
	AtTargetDistance bool    `json:"at_target_distance"`
	ProcessedImage   string  `json:"processed_image,omitempty"`
}

// Distance returns the distance to the first detected face in meters.
func (r *Response) Distance() (float64, bool) {
	if len(r.Faces) == 0 || r.Faces[0].DistanceM <= 0 {
		return 0, false
	}
	return r.Faces[0].DistanceM, true
}

// Calibrated reports whether the response carries a focal length.
func (r *Response) Calibrated() bool {
	return r.FocalLength > 0
}
