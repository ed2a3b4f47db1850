// Package recognition implements the face-matching decision core: given a
// probe embedding captured from a camera frame and the roster of registered
// embeddings, decide whether it is a confident match, which student it belongs
// to, and whether the frame should be accepted at all.
package recognition

// Outcome classifies the result of a recognition attempt.
type Outcome string

const (
	OutcomeMatch          Outcome = "match"           // Confident single-student match
	OutcomeNoFace         Outcome = "no_face"         // No face detected in the frame
	OutcomeMultipleFaces  Outcome = "multiple_faces"  // More than one face in the frame
	OutcomeUnknownFace    Outcome = "unknown_face"    // Best similarity below threshold
	OutcomeAmbiguous      Outcome = "ambiguous"       // Two students too close to call
	OutcomeLivenessFailed Outcome = "liveness_failed" // Frame looks like a photo/screen
	OutcomeLowQuality     Outcome = "low_quality"     // Detection score or face size too low
)

// Probe is a single face extracted from a captured frame, ready for matching.
type Probe struct {
	Embedding []float32
	DetScore  float64   // Detection confidence from the embedding service
	BBox      []float64 // [x1, y1, x2, y2] in pixels
	Liveness  float64   // Combined liveness score in [0, 1]
}

// Candidate is one student's score against the probe.
type Candidate struct {
	StudentID   int64
	RollNumber  string
	Similarity  float64 // Best cosine similarity over the student's samples
	SampleCount int     // Number of samples that contributed
}

// Decision is the final verdict for a probe.
type Decision struct {
	Outcome    Outcome
	StudentID  int64   // Set when Outcome == OutcomeMatch
	RollNumber string  // Set when Outcome == OutcomeMatch
	Confidence float64 // Best similarity, also set for unknown/ambiguous
	RunnerUp   float64 // Second-best student's similarity, 0 if none
	Reason     string  // Human-readable explanation for logs and API clients
}

// Matched reports whether the decision identifies a student.
func (d *Decision) Matched() bool {
	return d.Outcome == OutcomeMatch
}
