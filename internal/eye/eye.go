// Package eye isolates a single eye region from a frame using its
// landmark contour, and derives the geometry the rest of the pipeline
// needs: the crop origin for mapping local coordinates back to frame
// space, and the lid aspect ratio used for blink detection.
package eye

import (
	"errors"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"go.universe.tf/gaze/internal/landmark"
	"go.universe.tf/gaze/internal/pupil"
)

// margin is the padding, in pixels, added around the eye contour's
// bounding box so the crop keeps a little lid and lash context.
const margin = 5

// ErrInvalidRegion is reported when the eye contour geometry is
// degenerate (collapsed points, or a crop entirely outside the
// frame). Callers treat it exactly like a frame with no face.
var ErrInvalidRegion = errors.New("eye: degenerate eye region")

// Eye is one isolated eye, valid for a single frame refresh.
type Eye struct {
	// Frame is the masked grayscale crop of the eye: original pixels
	// inside the contour polygon, white everywhere else.
	Frame gocv.Mat
	// Origin is the crop's top-left corner in frame coordinates.
	// Adding it to any crop-local point yields a frame point.
	Origin image.Point
	// Center is the middle of the crop, in crop-local coordinates.
	Center image.Point
	// Points is the 6-point contour in frame coordinates.
	Points [6]image.Point
	// Blink is the width/height aspect ratio of the contour. It grows
	// as the lids close; +Inf means a fully collapsed contour.
	Blink float64
	// Pupil is filled in by the tracker after localization. Nil until
	// then, and nil when no pupil was found this frame.
	Pupil *pupil.Pupil
}

// Isolate extracts one eye from a grayscale frame.
func Isolate(frame gocv.Mat, marks *landmark.Set, side landmark.Side) (*Eye, error) {
	pts := marks.Eye(side)

	bounds := contourBounds(pts)
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, ErrInvalidRegion
	}

	crop := bounds.Inset(-margin).Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if crop.Dx() <= 0 || crop.Dy() <= 0 {
		return nil, ErrInvalidRegion
	}

	region := frame.Region(crop)
	defer region.Close()

	// Build the mask at crop size: white inside the contour polygon,
	// black outside. Copying through it leaves the eye pixels on a
	// white background, so everything outside the lids reads as
	// bright non-pupil material to the thresholding downstream.
	local := make([]image.Point, len(pts))
	for i, p := range pts {
		local[i] = p.Sub(crop.Min)
	}
	poly := gocv.NewPointsVectorFromPoints([][]image.Point{local})
	defer poly.Close()

	mask := gocv.NewMatWithSize(crop.Dy(), crop.Dx(), gocv.MatTypeCV8U)
	defer mask.Close()
	gocv.FillPoly(&mask, poly, color.RGBA{255, 255, 255, 0})

	isolated := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), crop.Dy(), crop.Dx(), gocv.MatTypeCV8U)
	region.CopyToWithMask(&isolated, mask)

	return &Eye{
		Frame:  isolated,
		Origin: crop.Min,
		Center: image.Pt(crop.Dx()/2, crop.Dy()/2),
		Points: pts,
		Blink:  blinkRatio(pts),
	}, nil
}

// Close releases the mats owned by the eye.
func (e *Eye) Close() error {
	if e.Pupil != nil {
		e.Pupil.Close()
		e.Pupil = nil
	}
	return e.Frame.Close()
}

// PupilCoords returns the located pupil in frame coordinates.
func (e *Eye) PupilCoords() (image.Point, bool) {
	if e == nil || e.Pupil == nil {
		return image.Point{}, false
	}
	return e.Origin.Add(e.Pupil.Point), true
}

// contourBounds is the bounding rectangle of the 6 contour points,
// with an exclusive max edge.
func contourBounds(pts [6]image.Point) image.Rectangle {
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	return r
}

// blinkRatio computes the lid aspect ratio from contour geometry:
// corner-to-corner width over the distance between the upper and
// lower lid midpoints.
func blinkRatio(pts [6]image.Point) float64 {
	left, right := pts[0], pts[3]
	top := middle(pts[1], pts[2])
	bottom := middle(pts[5], pts[4])

	width := math.Hypot(float64(left.X-right.X), float64(left.Y-right.Y))
	height := math.Hypot(float64(top.X-bottom.X), float64(top.Y-bottom.Y))
	if height == 0 {
		return math.Inf(1)
	}
	return width / height
}

func middle(p1, p2 image.Point) image.Point {
	return image.Pt((p1.X+p2.X)/2, (p1.Y+p2.Y)/2)
}
