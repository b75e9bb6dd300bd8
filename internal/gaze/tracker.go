// Package gaze ties the pipeline together: landmarks in, per-eye
// isolation, threshold calibration and pupil localization, gaze
// ratios and a blink signal out.
package gaze

import (
	"errors"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"go.universe.tf/gaze/internal/calibrate"
	"go.universe.tf/gaze/internal/eye"
	"go.universe.tf/gaze/internal/landmark"
	"go.universe.tf/gaze/internal/pupil"
)

// State classifies the outcome of one frame refresh.
type State int

const (
	// NoFace: no usable face (or eye geometry) in the frame.
	NoFace State = iota
	// FaceNoPupils: a face was found but at least one pupil wasn't.
	// With both eyes affected this is how a blink looks.
	FaceNoPupils
	// Tracking: both pupils located.
	Tracking
)

func (s State) String() string {
	switch s {
	case NoFace:
		return "no face"
	case FaceNoPupils:
		return "face, no pupils"
	default:
		return "tracking"
	}
}

// Gaze direction cutoffs on the horizontal ratio. The ratio is
// mirrored: low values mean the user looks to their right.
const (
	lookRightMax = 0.35
	lookLeftMin  = 0.65
)

// blinkThreshold is the lid aspect ratio above which the eyes are
// considered closed. Tuned empirical value.
const blinkThreshold = 3.8

// Tracker tracks gaze across successive frames. It is synchronous and
// single-consumer: each Refresh fully processes one frame before
// returning, and nothing else may touch the tracker concurrently.
type Tracker struct {
	source landmark.Source
	calib  *calibrate.Calibration

	// frame is a clone of the last refreshed frame, kept only so
	// AnnotatedFrame has something to draw on.
	frame       gocv.Mat
	left, right *eye.Eye
	state       State
}

// New returns a tracker that reads landmarks from source. Threshold
// calibration starts cold and completes after a short observation
// window per eye.
func New(source landmark.Source) *Tracker {
	return &Tracker{
		source: source,
		calib:  calibrate.New(),
		frame:  gocv.NewMat(),
	}
}

// Close releases the tracker's mats. The landmark source is not owned
// by the tracker and stays open.
func (t *Tracker) Close() error {
	t.clearEyes()
	return t.frame.Close()
}

// Refresh processes one frame and returns the resulting state. The
// frame may be BGR or grayscale; it is not retained beyond the call
// except for an annotation copy.
func (t *Tracker) Refresh(frame gocv.Mat) State {
	t.frame.Close()
	t.frame = frame.Clone()
	t.clearEyes()

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() == 1 {
		frame.CopyTo(&gray)
	} else {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	}

	marks, err := t.source.Detect(gray)
	if err != nil {
		// No face, or the source failed outright. Either way there is
		// no tracking data this frame.
		t.state = NoFace
		return t.state
	}

	left, lerr := t.analyzeEye(gray, marks, landmark.Left)
	right, rerr := t.analyzeEye(gray, marks, landmark.Right)
	if lerr != nil || rerr != nil {
		// Degenerate eye geometry is indistinguishable from a bad
		// detection, so treat it like no face at all.
		if left != nil {
			left.Close()
		}
		if right != nil {
			right.Close()
		}
		t.state = NoFace
		return t.state
	}

	t.left, t.right = left, right
	if left.Pupil != nil && right.Pupil != nil {
		t.state = Tracking
	} else {
		t.state = FaceNoPupils
	}
	return t.state
}

// analyzeEye isolates one eye, feeds the calibrator while its window
// is still filling, and locates the pupil at the calibrated
// threshold. A missing pupil is not an error; degenerate geometry is.
func (t *Tracker) analyzeEye(gray gocv.Mat, marks *landmark.Set, side landmark.Side) (*eye.Eye, error) {
	e, err := eye.Isolate(gray, marks, side)
	if err != nil {
		return nil, err
	}

	if !t.calib.IsComplete(side) {
		t.calib.Evaluate(e.Frame, side)
	}

	p, err := pupil.Locate(e.Frame, t.calib.Threshold(side))
	if err == nil {
		e.Pupil = &p
	} else if !errors.Is(err, pupil.ErrNotFound) {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (t *Tracker) clearEyes() {
	if t.left != nil {
		t.left.Close()
		t.left = nil
	}
	if t.right != nil {
		t.right.Close()
		t.right = nil
	}
}

// State returns the outcome of the last Refresh.
func (t *Tracker) State() State {
	return t.state
}

// Calibrated reports whether both eyes have finished their threshold
// calibration windows.
func (t *Tracker) Calibrated() bool {
	return t.calib.Complete()
}

// PupilsLocated reports whether both pupils were found last refresh.
func (t *Tracker) PupilsLocated() bool {
	return t.state == Tracking
}

// PupilLeftCoords returns the left pupil in frame coordinates.
func (t *Tracker) PupilLeftCoords() (image.Point, bool) {
	return t.left.PupilCoords()
}

// PupilRightCoords returns the right pupil in frame coordinates.
func (t *Tracker) PupilRightCoords() (image.Point, bool) {
	return t.right.PupilCoords()
}

// LeftEye and RightEye expose the last refresh's isolated eyes for
// inspection tooling. They are owned by the tracker and only valid
// until the next Refresh.
func (t *Tracker) LeftEye() *eye.Eye  { return t.left }
func (t *Tracker) RightEye() *eye.Eye { return t.right }

// HorizontalRatio returns the horizontal gaze ratio in [0,1]:
// 0 is extreme right, 1 extreme left. ok is false unless both pupils
// were located last refresh.
func (t *Tracker) HorizontalRatio() (float64, bool) {
	if !t.PupilsLocated() {
		return 0, false
	}
	l := float64(t.left.Pupil.X) / float64(t.left.Frame.Cols()-10)
	r := float64(t.right.Pupil.X) / float64(t.right.Frame.Cols()-10)
	return clamp01((l + r) / 2), true
}

// VerticalRatio returns the vertical gaze ratio in [0,1]: 0 is top,
// 1 bottom. ok is false unless both pupils were located last refresh.
func (t *Tracker) VerticalRatio() (float64, bool) {
	if !t.PupilsLocated() {
		return 0, false
	}
	l := float64(t.left.Pupil.Y) / float64(t.left.Frame.Rows()-10)
	r := float64(t.right.Pupil.Y) / float64(t.right.Frame.Rows()-10)
	return clamp01((l + r) / 2), true
}

// IsRight reports whether the user is looking to their right.
func (t *Tracker) IsRight() bool {
	ratio, ok := t.HorizontalRatio()
	return ok && ratio <= lookRightMax
}

// IsLeft reports whether the user is looking to their left.
func (t *Tracker) IsLeft() bool {
	ratio, ok := t.HorizontalRatio()
	return ok && ratio >= lookLeftMin
}

// IsCenter reports whether the user is looking straight ahead.
func (t *Tracker) IsCenter() bool {
	return t.PupilsLocated() && !t.IsRight() && !t.IsLeft()
}

// IsBlinking reports whether the eyes look closed, judged purely from
// lid geometry so it keeps working while the pupils are hidden.
func (t *Tracker) IsBlinking() bool {
	if t.left == nil || t.right == nil {
		return false
	}
	return (t.left.Blink+t.right.Blink)/2 > blinkThreshold
}

// AnnotatedFrame returns a copy of the last frame with a green
// crosshair on each located pupil. The caller owns the returned mat.
func (t *Tracker) AnnotatedFrame() gocv.Mat {
	out := t.frame.Clone()
	green := color.RGBA{0, 255, 0, 0}
	if p, ok := t.PupilLeftCoords(); ok {
		crosshair(&out, p, green)
	}
	if p, ok := t.PupilRightCoords(); ok {
		crosshair(&out, p, green)
	}
	return out
}

func crosshair(im *gocv.Mat, p image.Point, c color.RGBA) {
	gocv.Line(im, image.Pt(p.X-5, p.Y), image.Pt(p.X+5, p.Y), c, 1)
	gocv.Line(im, image.Pt(p.X, p.Y-5), image.Pt(p.X, p.Y+5), c, 1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
