package recognition

import (
	"context"
	"fmt"

	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/embedding"
)

// rosterSearchLimit caps how many nearby samples one probe pulls in. Plenty
// for best-of-samples scoring plus a runner-up check.
const rosterSearchLimit = 50

// Service runs the full identification pipeline: detect faces in a frame,
// score liveness, pull nearby roster samples and decide.
type Service struct {
	provider embedding.Provider
	samples  database.FaceSampleReader
	matcher  *Matcher
	liveness *LivenessDetector
}

// NewService creates the identification pipeline.
func NewService(provider embedding.Provider, samples database.FaceSampleReader, opts Options) *Service {
	return &Service{
		provider: provider,
		samples:  samples,
		matcher:  NewMatcher(opts),
		liveness: NewLivenessDetector(0),
	}
}

// Identify runs one camera frame through the pipeline and returns the
// decision together with the probe that produced it. The probe is nil when
// no face was detected.
func (s *Service) Identify(ctx context.Context, frame []byte) (*Decision, *Probe, error) {
	faces, err := s.provider.DetectFaces(ctx, frame)
	if err != nil {
		return nil, nil, fmt.Errorf("face detection failed: %w", err)
	}

	if len(faces) == 0 {
		return &Decision{Outcome: OutcomeNoFace, Reason: "no face detected"}, nil, nil
	}
	if len(faces) > 1 {
		return &Decision{
			Outcome: OutcomeMultipleFaces,
			Reason:  fmt.Sprintf("%d faces detected", len(faces)),
		}, nil, nil
	}

	face := faces[0]

	// Liveness is scored on the whole frame; the face already dominates a
	// kiosk capture.
	livenessScore, err := s.liveness.ScoreFrame(frame)
	if err != nil {
		// Frame decoded by the embedding service but not by us; skip the
		// local liveness heuristic rather than reject.
		livenessScore = 0
	}

	probe := &Probe{
		Embedding: face.Embedding,
		DetScore:  face.DetScore,
		BBox:      face.BBox,
		Liveness:  livenessScore,
	}

	// Distance cap of 1.0 keeps everything with non-negative similarity;
	// thresholding happens in the matcher.
	roster, _, err := s.samples.FindSimilarWithDistance(ctx, probe.Embedding, rosterSearchLimit, 1.0)
	if err != nil {
		return nil, nil, fmt.Errorf("roster search failed: %w", err)
	}

	decision := s.matcher.Match(probe, roster)
	return &decision, probe, nil
}
