package gaze

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"

	"go.universe.tf/gaze/internal/landmark"
)

// stubSource hands back a fixed landmark set, or an error.
type stubSource struct {
	set *landmark.Set
	err error
}

func (s *stubSource) Detect(frame gocv.Mat) (*landmark.Set, error) {
	return s.set, s.err
}

// eyeContour builds an open-eye hexagon around a center point: 40px
// wide, 16px tall, blink ratio 2.5.
func eyeContour(c image.Point) [6]image.Point {
	return [6]image.Point{
		{c.X - 20, c.Y}, {c.X - 10, c.Y - 8}, {c.X + 10, c.Y - 8},
		{c.X + 20, c.Y}, {c.X + 10, c.Y + 8}, {c.X - 10, c.Y + 8},
	}
}

// closedContour is the same eye with nearly touching lids: 40px wide,
// 4px tall, blink ratio 10.
func closedContour(c image.Point) [6]image.Point {
	return [6]image.Point{
		{c.X - 20, c.Y}, {c.X - 10, c.Y - 2}, {c.X + 10, c.Y - 2},
		{c.X + 20, c.Y}, {c.X + 10, c.Y + 2}, {c.X - 10, c.Y + 2},
	}
}

var (
	leftCenter  = image.Pt(60, 100)
	rightCenter = image.Pt(140, 100)
)

func faceSet(t *testing.T, left, right [6]image.Point) *landmark.Set {
	t.Helper()
	all := make([]image.Point, landmark.NumPoints)
	for i := range left {
		all[36+i] = left[i]
		all[42+i] = right[i]
	}
	s, err := landmark.NewSet(all)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return s
}

// faceFrame draws a bright frame with a dark pupil blob in each eye,
// offset from the eye centers by shift.
func faceFrame(shift image.Point) gocv.Mat {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), 200, 200, gocv.MatTypeCV8U)
	black := color.RGBA{0, 0, 0, 0}
	gocv.Circle(&frame, leftCenter.Add(shift), 5, black, -1)
	gocv.Circle(&frame, rightCenter.Add(shift), 5, black, -1)
	return frame
}

// blankFrame has no pupil blobs at all.
func blankFrame() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), 200, 200, gocv.MatTypeCV8U)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestRefreshNoFace(t *testing.T) {
	tracker := New(&stubSource{err: landmark.ErrNoFace})
	defer tracker.Close()

	frame := blankFrame()
	defer frame.Close()

	if state := tracker.Refresh(frame); state != NoFace {
		t.Fatalf("state = %v, want NoFace", state)
	}
	if tracker.PupilsLocated() {
		t.Error("PupilsLocated with no face")
	}
	if _, ok := tracker.PupilLeftCoords(); ok {
		t.Error("left pupil coords with no face")
	}
	if _, ok := tracker.HorizontalRatio(); ok {
		t.Error("horizontal ratio with no face")
	}
	if tracker.IsBlinking() {
		t.Error("IsBlinking with no face")
	}
}

func TestRefreshTracking(t *testing.T) {
	marks := faceSet(t, eyeContour(leftCenter), eyeContour(rightCenter))
	tracker := New(&stubSource{set: marks})
	defer tracker.Close()

	frame := faceFrame(image.Point{})
	defer frame.Close()

	if state := tracker.Refresh(frame); state != Tracking {
		t.Fatalf("state = %v, want Tracking", state)
	}
	if !tracker.PupilsLocated() {
		t.Fatal("PupilsLocated = false while tracking")
	}

	p, ok := tracker.PupilLeftCoords()
	if !ok {
		t.Fatal("left pupil coords missing")
	}
	if abs(p.X-leftCenter.X) > 2 || abs(p.Y-leftCenter.Y) > 2 {
		t.Errorf("left pupil at %v, want near %v", p, leftCenter)
	}
	p, ok = tracker.PupilRightCoords()
	if !ok {
		t.Fatal("right pupil coords missing")
	}
	if abs(p.X-rightCenter.X) > 2 || abs(p.Y-rightCenter.Y) > 2 {
		t.Errorf("right pupil at %v, want near %v", p, rightCenter)
	}

	h, ok := tracker.HorizontalRatio()
	if !ok || h < 0 || h > 1 {
		t.Errorf("horizontal ratio %v (ok=%v), want a value in [0,1]", h, ok)
	}
	if !tracker.IsCenter() {
		t.Errorf("centered pupils: IsCenter false (ratio %v)", h)
	}
	if tracker.IsBlinking() {
		t.Error("IsBlinking with open eyes")
	}
}

func TestRefreshBlink(t *testing.T) {
	marks := faceSet(t, closedContour(leftCenter), closedContour(rightCenter))
	tracker := New(&stubSource{set: marks})
	defer tracker.Close()

	frame := blankFrame()
	defer frame.Close()

	if state := tracker.Refresh(frame); state != FaceNoPupils {
		t.Fatalf("state = %v, want FaceNoPupils", state)
	}
	if !tracker.IsBlinking() {
		t.Error("IsBlinking = false with collapsed lids")
	}
	if _, ok := tracker.HorizontalRatio(); ok {
		t.Error("horizontal ratio without pupils")
	}
	if _, ok := tracker.PupilLeftCoords(); ok {
		t.Error("pupil coords without pupils")
	}
}

func TestHorizontalRatioMonotonic(t *testing.T) {
	marks := faceSet(t, eyeContour(leftCenter), eyeContour(rightCenter))

	ratio := func(shift int) float64 {
		tracker := New(&stubSource{set: marks})
		defer tracker.Close()

		frame := faceFrame(image.Pt(shift, 0))
		defer frame.Close()

		if state := tracker.Refresh(frame); state != Tracking {
			t.Fatalf("shift %d: state = %v, want Tracking", shift, state)
		}
		r, ok := tracker.HorizontalRatio()
		if !ok {
			t.Fatalf("shift %d: no horizontal ratio", shift)
		}
		if r < 0 || r > 1 {
			t.Fatalf("shift %d: ratio %v outside [0,1]", shift, r)
		}
		return r
	}

	// Moving the pupil from the eye's low-x edge to its high-x edge
	// must never decrease the ratio.
	right, center, left := ratio(-10), ratio(0), ratio(10)
	if right > center || center > left {
		t.Errorf("ratios not monotonic: %v, %v, %v", right, center, left)
	}
	if right >= left {
		t.Errorf("edge-to-edge ratios did not increase: %v vs %v", right, left)
	}
}

func TestAnnotatedFrame(t *testing.T) {
	marks := faceSet(t, eyeContour(leftCenter), eyeContour(rightCenter))
	tracker := New(&stubSource{set: marks})
	defer tracker.Close()

	frame := faceFrame(image.Point{})
	defer frame.Close()
	tracker.Refresh(frame)

	annotated := tracker.AnnotatedFrame()
	defer annotated.Close()

	if annotated.Rows() != frame.Rows() || annotated.Cols() != frame.Cols() {
		t.Errorf("annotated frame is %dx%d, want %dx%d",
			annotated.Cols(), annotated.Rows(), frame.Cols(), frame.Rows())
	}
}

func TestCalibrationCompletes(t *testing.T) {
	marks := faceSet(t, eyeContour(leftCenter), eyeContour(rightCenter))
	tracker := New(&stubSource{set: marks})
	defer tracker.Close()

	frame := faceFrame(image.Point{})
	defer frame.Close()

	for i := 0; i < 20; i++ {
		if tracker.Calibrated() {
			t.Fatalf("calibrated after only %d refreshes", i)
		}
		tracker.Refresh(frame)
	}
	if !tracker.Calibrated() {
		t.Error("not calibrated after 20 refreshes")
	}
}
