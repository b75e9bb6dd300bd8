package landmark

import (
	"image"
	"testing"
)

func diagonalPoints(n int) []image.Point {
	pts := make([]image.Point, n)
	for i := range pts {
		pts[i] = image.Pt(i, i)
	}
	return pts
}

func TestNewSetCount(t *testing.T) {
	if _, err := NewSet(diagonalPoints(NumPoints - 1)); err == nil {
		t.Error("no error for 67 points")
	}
	if _, err := NewSet(diagonalPoints(NumPoints)); err != nil {
		t.Errorf("NewSet with 68 points: %v", err)
	}
}

func TestEyeContours(t *testing.T) {
	s, err := NewSet(diagonalPoints(NumPoints))
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	left := s.Eye(Left)
	if left[0] != image.Pt(36, 36) || left[5] != image.Pt(41, 41) {
		t.Errorf("left contour spans %v..%v, want (36,36)..(41,41)", left[0], left[5])
	}
	right := s.Eye(Right)
	if right[0] != image.Pt(42, 42) || right[5] != image.Pt(47, 47) {
		t.Errorf("right contour spans %v..%v, want (42,42)..(47,47)", right[0], right[5])
	}
}

func TestShrink(t *testing.T) {
	big := image.NewGray(image.Rect(0, 0, 1280, 960))
	small, mult := shrink(big, 480)
	if got := small.Bounds(); got.Dx() != 640 || got.Dy() != 480 {
		t.Errorf("shrunk to %dx%d, want 640x480", got.Dx(), got.Dy())
	}
	if mult != 2 {
		t.Errorf("mult = %v, want 2", mult)
	}

	tiny := image.NewGray(image.Rect(0, 0, 320, 240))
	same, mult := shrink(tiny, 480)
	if same != tiny || mult != 1 {
		t.Errorf("small image was rescaled (mult %v)", mult)
	}
}

func TestScaleRect(t *testing.T) {
	r := image.Rect(10, 20, 30, 40)
	if got := scaleRect(r, 1); got != r {
		t.Errorf("identity scale changed rect to %v", got)
	}
	if got, want := scaleRect(r, 2), image.Rect(20, 40, 60, 80); got != want {
		t.Errorf("scaleRect = %v, want %v", got, want)
	}
}

func TestSquareCrop(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 480)
	got := squareCrop(image.Rect(100, 100, 200, 200), bounds)

	if got.Dx() != got.Dy() {
		t.Errorf("crop %v is not square", got)
	}
	// 100px box padded by 20%.
	if got.Dx() != 120 {
		t.Errorf("crop side %d, want 120", got.Dx())
	}
	if !got.In(bounds) {
		t.Errorf("crop %v escapes bounds", got)
	}

	// Clamping against the frame edge loses squareness but must stay
	// in bounds.
	edge := squareCrop(image.Rect(600, 440, 700, 540), bounds)
	if !edge.In(bounds) {
		t.Errorf("edge crop %v escapes bounds", edge)
	}
}

func TestToGray(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	gray := toGray(src)
	if gray.Bounds() != src.Bounds() {
		t.Fatalf("bounds %v, want %v", gray.Bounds(), src.Bounds())
	}
	if got := gray.GrayAt(2, 2).Y; got != 255 {
		t.Errorf("white pixel converted to %d, want 255", got)
	}

	already := image.NewGray(image.Rect(0, 0, 2, 2))
	if toGray(already) != already {
		t.Error("grayscale input was copied")
	}
}
