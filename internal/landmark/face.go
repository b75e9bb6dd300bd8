package landmark

import (
	"fmt"
	"image"

	pigo "github.com/esimov/pigo/core"
	"golang.org/x/image/draw"
)

const (
	// maxDetectHeight caps the frame height fed to the cascade. Webcam
	// frames are often 720p or more, and detection cost scales with
	// pixel count; a face that matters for gaze tracking is still
	// comfortably above minFaceSize at this scale.
	maxDetectHeight = 480

	// minFaceSize and the quality floor below are the usual pigo
	// settings for webcam-distance faces.
	minFaceSize    = 60
	minFaceQuality = 5.0
)

// faceDetector finds the most prominent face in a frame using a pigo
// cascade classifier.
type faceDetector struct {
	classifier *pigo.Pigo
}

func newFaceDetector(cascade []byte) (*faceDetector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("landmark: unpack cascade: %w", err)
	}
	return &faceDetector{classifier: classifier}, nil
}

// mostProminent returns the bounding box of the largest detected face
// above the quality floor. The choice is deterministic: largest scale
// wins, and the cascade scan order breaks ties.
func (d *faceDetector) mostProminent(gray *image.Gray) (image.Rectangle, bool) {
	small, mult := shrink(gray, maxDetectHeight)
	b := small.Bounds()

	params := pigo.CascadeParams{
		MinSize:     minFaceSize,
		MaxSize:     b.Dy(),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: small.Pix,
			Rows:   b.Dy(),
			Cols:   b.Dx(),
			Dim:    b.Dx(),
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, 0.2)

	var (
		best  pigo.Detection
		found bool
	)
	for _, det := range dets {
		if det.Q < minFaceQuality {
			continue
		}
		if !found || det.Scale > best.Scale {
			best = det
			found = true
		}
	}
	if !found {
		return image.Rectangle{}, false
	}

	half := best.Scale / 2
	box := image.Rect(best.Col-half, best.Row-half, best.Col+half, best.Row+half)
	return scaleRect(box, mult), true
}

// toGray converts any decoded frame image to 8-bit grayscale.
func toGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray
}

// shrink scales gray down so that its height is at most maxHeight.
// Returns the shrunken image, as well as the factor you'd need to
// multiply by to get back to the original coordinates.
func shrink(gray *image.Gray, maxHeight int) (*image.Gray, float64) {
	h := gray.Bounds().Dy()
	if h <= maxHeight {
		return gray, 1
	}
	mult := float64(h) / float64(maxHeight)
	w := int(float64(gray.Bounds().Dx()) / mult)
	small := image.NewGray(image.Rect(0, 0, w, maxHeight))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), gray, gray.Bounds(), draw.Src, nil)
	return small, mult
}

func scaleRect(r image.Rectangle, mult float64) image.Rectangle {
	if mult == 1 {
		return r
	}
	return image.Rect(
		int(float64(r.Min.X)*mult),
		int(float64(r.Min.Y)*mult),
		int(float64(r.Max.X)*mult),
		int(float64(r.Max.Y)*mult),
	)
}
