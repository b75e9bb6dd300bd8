// Package calibrate tunes the binarization threshold used for pupil
// segmentation, independently per eye. The right threshold depends on
// lighting, iris contrast and the camera, so instead of a fixed value
// each eye is observed over a short window of frames and the
// per-frame optimal thresholds are averaged.
package calibrate

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"go.universe.tf/gaze/internal/landmark"
	"go.universe.tf/gaze/internal/pupil"
)

const (
	// windowSize is how many per-frame samples each eye keeps. Big
	// enough to smooth out flicker, small enough to follow a lighting
	// change within a second or two of video.
	windowSize = 20

	// targetRatio is the fraction of the eye frame the segmented
	// pupil/iris blob is expected to cover. Tuned empirical value.
	targetRatio = 0.48

	// Candidate thresholds swept per sample: 5..95 inclusive.
	sweepMin, sweepMax, sweepStep = 5, 100, 5

	// border trims the frame edges before measuring the blob ratio,
	// so mask artifacts along the crop boundary don't skew the score.
	border = 5

	// DefaultThreshold is used before any samples exist.
	DefaultThreshold = 125
)

// Calibration holds per-eye threshold samples. It belongs to a single
// tracker instance and is only touched during that tracker's Refresh
// calls, so it needs no locking. It is never reset: samples keep
// rolling through the window for the lifetime of the tracker.
type Calibration struct {
	samples [2][]int
}

// New returns an empty calibration.
func New() *Calibration {
	return &Calibration{}
}

// IsComplete reports whether one eye has a full sample window.
// Further samples evict the oldest, so once true it stays true.
func (c *Calibration) IsComplete(side landmark.Side) bool {
	return len(c.samples[side]) >= windowSize
}

// Complete reports whether both eyes have full sample windows.
func (c *Calibration) Complete() bool {
	return c.IsComplete(landmark.Left) && c.IsComplete(landmark.Right)
}

// Threshold returns the calibrated threshold for one eye: the mean of
// the recorded samples, or DefaultThreshold if there are none yet.
func (c *Calibration) Threshold(side landmark.Side) int {
	s := c.samples[side]
	if len(s) == 0 {
		return DefaultThreshold
	}
	sum := 0
	for _, t := range s {
		sum += t
	}
	return sum / len(s)
}

// Evaluate records one sample for the given eye: the candidate
// threshold whose segmentation of this frame looks most like a pupil.
// The oldest sample is evicted once the window is full.
func (c *Calibration) Evaluate(eyeFrame gocv.Mat, side landmark.Side) {
	pick := bestThreshold(eyeFrame)
	s := append(c.samples[side], pick)
	if len(s) > windowSize {
		s = s[1:]
	}
	c.samples[side] = s
}

// bestThreshold sweeps the candidate thresholds and returns the one
// whose blob ratio lands closest to targetRatio. Ties keep the lowest
// candidate, since the sweep runs in ascending order.
func bestThreshold(eyeFrame gocv.Mat) int {
	best, bestDist := 0, math.Inf(1)
	for t := sweepMin; t < sweepMax; t += sweepStep {
		iris := pupil.Process(eyeFrame, t)
		dist := math.Abs(blobRatio(iris) - targetRatio)
		iris.Close()
		if dist < bestDist {
			best, bestDist = t, dist
		}
	}
	return best
}

// blobRatio measures the fraction of black (pupil candidate) pixels
// in a binarized eye frame, ignoring a border strip on each edge.
func blobRatio(iris gocv.Mat) float64 {
	w, h := iris.Cols()-2*border, iris.Rows()-2*border
	if w <= 0 || h <= 0 {
		return 0
	}
	inner := iris.Region(image.Rect(border, border, iris.Cols()-border, iris.Rows()-border))
	defer inner.Close()

	total := w * h
	blacks := total - gocv.CountNonZero(inner)
	return float64(blacks) / float64(total)
}
