package recognition

import (
	"bytes"
	"image"
	"math"

	// Frame decoders. Browsers commonly upload JPEG or PNG captures; some
	// kiosk clients send WebP or BMP.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// LivenessDetector scores how likely a frame shows a live face rather than a
// printed photo or a screen replay. It is a heuristic, not a biometric
// guarantee: flat reproductions tend to have lower intensity variance, fewer
// natural edges and less texture than a live capture.
type LivenessDetector struct {
	varianceThreshold float64
}

// NewLivenessDetector creates a detector. varianceThreshold is the minimum
// grayscale variance below which a frame is always considered flat.
func NewLivenessDetector(varianceThreshold float64) *LivenessDetector {
	if varianceThreshold <= 0 {
		varianceThreshold = 50
	}
	return &LivenessDetector{varianceThreshold: varianceThreshold}
}

// ScoreFrame decodes the frame and returns a combined liveness score in
// [0, 1]. Frames that cannot be decoded score 0.
func (ld *LivenessDetector) ScoreFrame(frame []byte) (float64, error) {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return 0, err
	}
	return ld.Score(img), nil
}

// Score combines three cheap signals: intensity variance, edge density and
// texture complexity.
func (ld *LivenessDetector) Score(img image.Image) float64 {
	variance := imageVariance(img)
	if variance < ld.varianceThreshold {
		return 0
	}

	edgeDensity := edgeDensity(img)
	texture := textureComplexity(img)

	return normalizeScore(variance, 0, 10000)*0.4 + edgeDensity*0.3 + texture*0.3
}

// grayAt converts the pixel at (x, y) to a 0-255 grayscale value.
func grayAt(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 256.0
}

// imageVariance calculates the variance of pixel intensities.
func imageVariance(img image.Image) float64 {
	bounds := img.Bounds()

	var sum, sumSq float64
	count := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray := grayAt(img, x, y)
			sum += gray
			sumSq += gray * gray
			count++
		}
	}

	if count == 0 {
		return 0
	}

	mean := sum / float64(count)
	return (sumSq / float64(count)) - (mean * mean)
}

// edgeDensity calculates the fraction of pixels sitting on an intensity edge
// using a simple Sobel gradient.
func edgeDensity(img image.Image) float64 {
	bounds := img.Bounds()

	if bounds.Dx() < 3 || bounds.Dy() < 3 {
		return 0
	}

	edgeCount := 0
	totalPixels := 0

	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			gx := grayAt(img, x+1, y) - grayAt(img, x-1, y)
			gy := grayAt(img, x, y+1) - grayAt(img, x, y-1)

			if math.Sqrt(gx*gx+gy*gy) > 30 { // Edge threshold
				edgeCount++
			}
			totalPixels++
		}
	}

	if totalPixels == 0 {
		return 0
	}
	return float64(edgeCount) / float64(totalPixels)
}

// textureComplexity measures local intensity changes between neighboring
// pixels. Printed photos viewed through a camera lose high-frequency detail.
func textureComplexity(img image.Image) float64 {
	bounds := img.Bounds()

	if bounds.Dx() < 2 || bounds.Dy() < 2 {
		return 0
	}

	var totalDiff float64
	count := 0

	for y := bounds.Min.Y; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X; x < bounds.Max.X-1; x++ {
			center := grayAt(img, x, y)
			right := grayAt(img, x+1, y)
			down := grayAt(img, x, y+1)

			totalDiff += math.Abs(center-right) + math.Abs(center-down)
			count += 2
		}
	}

	if count == 0 {
		return 0
	}
	// Average neighbor difference, normalized so ~25 intensity levels of
	// average change saturates the score.
	return math.Min(totalDiff/float64(count)/25.0, 1.0)
}

// normalizeScore maps v from [min, max] to [0, 1], clamping at the ends.
func normalizeScore(v, min, max float64) float64 {
	if max <= min {
		return 0
	}
	n := (v - min) / (max - min)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}
