// Package landmark locates and carries the 68 facial landmark points
// that the rest of the pipeline is built on. The point ordering is the
// standard 68-point facial topology: indices 36-41 outline the left
// eye, 42-47 the right eye.
package landmark

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// NumPoints is the number of landmarks in a full set.
const NumPoints = 68

// ErrNoFace is reported by a Source when the frame contains no
// detectable face. Callers recover by treating the frame as having no
// tracking data, not by failing.
var ErrNoFace = errors.New("landmark: no face detected")

// Side selects one of the two eyes.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// eyePoints maps a side to the landmark indices of its 6-point eye
// contour. The order matters: 0 and 3 are the horizontal corners, 1
// and 2 the upper lid, 5 and 4 the lower lid.
var eyePoints = [2][6]int{
	Left:  {36, 37, 38, 39, 40, 41},
	Right: {42, 43, 44, 45, 46, 47},
}

// Set is an immutable set of 68 landmark points in frame coordinates.
type Set struct {
	pts [NumPoints]image.Point
}

// NewSet builds a Set from exactly NumPoints frame-coordinate points.
func NewSet(pts []image.Point) (*Set, error) {
	if len(pts) != NumPoints {
		return nil, fmt.Errorf("landmark: got %d points, want %d", len(pts), NumPoints)
	}
	s := &Set{}
	copy(s.pts[:], pts)
	return s, nil
}

// At returns landmark i in frame coordinates.
func (s *Set) At(i int) image.Point {
	return s.pts[i]
}

// Eye returns the 6 contour points for one eye, in contour order.
func (s *Set) Eye(side Side) [6]image.Point {
	var out [6]image.Point
	for i, idx := range eyePoints[side] {
		out[i] = s.pts[idx]
	}
	return out
}

// Source produces facial landmarks for a video frame. Detect returns
// ErrNoFace when the frame has no usable face; any other error means
// the source itself failed.
type Source interface {
	Detect(frame gocv.Mat) (*Set, error)
}
