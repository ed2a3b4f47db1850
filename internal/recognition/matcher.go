package recognition

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/facemark/facemark/internal/constants"
	"github.com/facemark/facemark/internal/database"
)

// Options tunes the matching decision. Zero values fall back to the defaults
// from the original deployment (threshold 0.6, margin 0.05).
type Options struct {
	Threshold           float64 // Min similarity to accept a match
	AmbiguityMargin     float64 // Min gap between best and runner-up student
	DetectionConfidence float64 // Min detection score for the probe
	LivenessThreshold   float64 // Min liveness score; 0 disables the gate
	MinFaceSizePx       float64 // Min face box width/height in pixels
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.Threshold == 0 {
		o.Threshold = constants.DefaultRecognitionThreshold
	}
	if o.AmbiguityMargin == 0 {
		o.AmbiguityMargin = constants.DefaultAmbiguityMargin
	}
	if o.DetectionConfidence == 0 {
		o.DetectionConfidence = constants.DefaultDetectionConfidence
	}
	if o.MinFaceSizePx == 0 {
		o.MinFaceSizePx = constants.MinFaceSizePx
	}
	return o
}

// Matcher makes accept/reject decisions for probes against a roster.
// It is stateless; all inputs arrive per call.
type Matcher struct {
	opts Options
}

// NewMatcher creates a matcher with the given options.
func NewMatcher(opts Options) *Matcher {
	return &Matcher{opts: opts.withDefaults()}
}

// boxTooSmall reports whether a [x1, y1, x2, y2] face box is below the
// minimum usable size.
func boxTooSmall(bbox []float64, minPx float64) bool {
	if len(bbox) != 4 {
		return false // unknown geometry, let the detection score decide
	}
	return bbox[2]-bbox[0] < minPx || bbox[3]-bbox[1] < minPx
}

// Score ranks every student in the roster against the probe. Each student's
// score is the best cosine similarity over their registered samples, so extra
// angles can only help. Students with no usable sample are skipped.
func (m *Matcher) Score(probe *Probe, roster []database.FaceSample) []Candidate {
	type agg struct {
		roll  string
		sims  []float64
		count int
	}
	byStudent := make(map[int64]*agg)

	for i := range roster {
		sample := &roster[i]
		if len(sample.Embedding) == 0 || len(sample.Embedding) != len(probe.Embedding) {
			continue
		}
		sim := database.CosineSimilarity(probe.Embedding, sample.Embedding)

		a, ok := byStudent[sample.StudentID]
		if !ok {
			a = &agg{roll: sample.StudentRoll}
			byStudent[sample.StudentID] = a
		}
		a.sims = append(a.sims, sim)
		a.count++
	}

	candidates := make([]Candidate, 0, len(byStudent))
	for id, a := range byStudent {
		candidates = append(candidates, Candidate{
			StudentID:   id,
			RollNumber:  a.roll,
			Similarity:  floats.Max(a.sims),
			SampleCount: a.count,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	return candidates
}

// Match decides whether the probe identifies exactly one registered student.
//
// Gates are applied in order: detection quality, liveness, then similarity.
// A match requires the best student's similarity to reach the threshold AND
// the runner-up to trail by at least the ambiguity margin. The margin guards
// against siblings and low-quality enrollments: accepting the closest of two
// near-equal students would silently mark the wrong person.
func (m *Matcher) Match(probe *Probe, roster []database.FaceSample) Decision {
	if probe == nil || len(probe.Embedding) == 0 {
		return Decision{Outcome: OutcomeNoFace, Reason: "no face embedding in probe"}
	}

	if probe.DetScore > 0 && probe.DetScore < m.opts.DetectionConfidence {
		return Decision{
			Outcome: OutcomeLowQuality,
			Reason:  fmt.Sprintf("detection score %.2f below %.2f", probe.DetScore, m.opts.DetectionConfidence),
		}
	}
	if boxTooSmall(probe.BBox, m.opts.MinFaceSizePx) {
		return Decision{
			Outcome: OutcomeLowQuality,
			Reason:  fmt.Sprintf("face smaller than %.0fpx", m.opts.MinFaceSizePx),
		}
	}

	if m.opts.LivenessThreshold > 0 && probe.Liveness > 0 && probe.Liveness < m.opts.LivenessThreshold {
		return Decision{
			Outcome: OutcomeLivenessFailed,
			Reason:  fmt.Sprintf("liveness score %.2f below %.2f", probe.Liveness, m.opts.LivenessThreshold),
		}
	}

	candidates := m.Score(probe, roster)
	if len(candidates) == 0 {
		return Decision{Outcome: OutcomeUnknownFace, Reason: "no registered faces to compare against"}
	}

	best := candidates[0]
	var runnerUp float64
	if len(candidates) > 1 {
		runnerUp = candidates[1].Similarity
	}

	if best.Similarity < m.opts.Threshold {
		return Decision{
			Outcome:    OutcomeUnknownFace,
			Confidence: best.Similarity,
			RunnerUp:   runnerUp,
			Reason:     fmt.Sprintf("best similarity %.2f below threshold %.2f", best.Similarity, m.opts.Threshold),
		}
	}

	if len(candidates) > 1 && best.Similarity-runnerUp < m.opts.AmbiguityMargin {
		return Decision{
			Outcome:    OutcomeAmbiguous,
			Confidence: best.Similarity,
			RunnerUp:   runnerUp,
			Reason: fmt.Sprintf("students %s and %s within %.3f of each other",
				best.RollNumber, candidates[1].RollNumber, best.Similarity-runnerUp),
		}
	}

	return Decision{
		Outcome:    OutcomeMatch,
		StudentID:  best.StudentID,
		RollNumber: best.RollNumber,
		Confidence: best.Similarity,
		RunnerUp:   runnerUp,
		Reason:     fmt.Sprintf("matched %s with similarity %.2f", best.RollNumber, best.Similarity),
	}
}
