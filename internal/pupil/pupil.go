// Package pupil locates the pupil within an isolated eye frame by
// segmenting the darkest blob and taking its centroid.
package pupil

import (
	"errors"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// ErrNotFound is reported when no pupil-like blob exists at the given
// threshold. That's routine, not fatal: it usually means the eye is
// closed, or the threshold hasn't been calibrated yet.
var ErrNotFound = errors.New("pupil: no pupil found")

// Pupil is a located pupil. The coordinates are local to the eye
// frame it was found in; the caller owns translation to frame space.
type Pupil struct {
	image.Point
	// Iris is the binarized frame the centroid was measured on. The
	// pupil blob appears black on a white background.
	Iris gocv.Mat
}

// Close releases the iris mat.
func (p *Pupil) Close() error {
	return p.Iris.Close()
}

// Process runs the segmentation pipeline on an eye frame: bilateral
// filtering to knock down sensor noise without softening the pupil
// edge, a few erosions to eat eyelash artifacts and consolidate the
// dark blob, then a binary threshold at t. Pixels darker than t come
// out black, everything else white. The caller owns the returned mat.
//
// The filter and kernel parameters are tuned empirical values; the
// calibration sweep depends on them staying put.
func Process(eyeFrame gocv.Mat, t int) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()

	out := gocv.NewMat()
	gocv.BilateralFilter(eyeFrame, &out, 10, 15, 15)
	gocv.ErodeWithParams(out, &out, kernel, image.Pt(-1, -1), 3, int(gocv.BorderConstant))
	gocv.Threshold(out, &out, float32(t), 255, gocv.ThresholdBinary)
	return out
}

// Locate finds the pupil in an eye frame, binarizing at threshold t.
//
// After thresholding, the white background forms the largest contour
// (it spans the whole frame), and the pupil shows up as the largest
// hole inside it. So we sort contours by area and take the second
// largest, then read the blob's centroid off its moments.
//
// Locate is deterministic: the same frame and threshold always yield
// the same centroid.
func Locate(eyeFrame gocv.Mat, t int) (Pupil, error) {
	iris := Process(eyeFrame, t)

	contours := gocv.FindContours(iris, gocv.RetrievalTree, gocv.ChainApproxNone)
	defer contours.Close()

	idx := secondLargest(contours)
	if idx < 0 {
		iris.Close()
		return Pupil{}, ErrNotFound
	}

	// Fill the chosen contour into a blank mat and take its moments.
	// m00 is the blob area, m10/m01 the coordinate sums.
	blob := gocv.NewMatWithSize(iris.Rows(), iris.Cols(), gocv.MatTypeCV8U)
	defer blob.Close()
	gocv.DrawContours(&blob, contours, idx, color.RGBA{255, 255, 255, 0}, -1)

	m := gocv.Moments(blob, true)
	if m["m00"] == 0 {
		iris.Close()
		return Pupil{}, ErrNotFound
	}

	return Pupil{
		Point: image.Pt(int(m["m10"]/m["m00"]), int(m["m01"]/m["m00"])),
		Iris:  iris,
	}, nil
}

// secondLargest returns the index of the second-largest contour by
// area, or -1 if there are fewer than two contours.
func secondLargest(contours gocv.PointsVector) int {
	first, second := -1, -1
	var firstArea, secondArea float64
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		switch {
		case first < 0 || area > firstArea:
			second, secondArea = first, firstArea
			first, firstArea = i, area
		case second < 0 || area > secondArea:
			second, secondArea = i, area
		}
	}
	return second
}
