// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Recognition constants
const (
	// DefaultRecognitionThreshold is the minimum cosine similarity required to
	// accept a probe embedding as a match for a registered student
	DefaultRecognitionThreshold = 0.6

	// DefaultAmbiguityMargin is the minimum similarity gap required between the
	// best and second-best student before a match is accepted
	DefaultAmbiguityMargin = 0.05

	// DefaultDetectionConfidence is the minimum detection score for a face
	// returned by the embedding service to be considered at all
	DefaultDetectionConfidence = 0.5

	// DefaultLivenessThreshold is the minimum combined liveness score for a
	// captured frame to pass the anti-spoofing gate
	DefaultLivenessThreshold = 0.5

	// MinFaceSizePx is the minimum width/height of a detected face box in pixels
	MinFaceSizePx = 20
)

// Attendance constants
const (
	// DefaultLateArrivalMinutes is how long after session start a check-in is
	// still recorded as present; later check-ins are recorded as late
	DefaultLateArrivalMinutes = 15

	// DefaultDuplicateWindowMinutes suppresses repeated camera hits for the
	// same student within this window
	DefaultDuplicateWindowMinutes = 5
)

// Handler constants
const (
	// DefaultHandlerPageSize is the page size for paginated handler endpoints
	DefaultHandlerPageSize = 100

	// MaxUploadSize is the maximum frame upload size in bytes (10MB)
	MaxUploadSize = 10 << 20
)

// Stream constants
const (
	// StreamMaxFrameBytes is the maximum base64-decoded frame size accepted
	// over the websocket
	StreamMaxFrameBytes = 8 << 20
)
