package landmark

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

const (
	// inputSize is the side of the square face crop the landmark
	// network consumes. PFLD-style 68-point models are exported at
	// 112x112 with "input"/"output" tensor names.
	inputSize  = 112
	inputName  = "input"
	outputName = "output"
)

// Init prepares the ONNX runtime environment. Call it once before
// creating any Predictor. libPath may be empty if the runtime shared
// library is on the default search path.
func Init(libPath string) error {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("landmark: initialize onnx runtime: %w", err)
	}
	return nil
}

// Shutdown tears down the ONNX runtime environment.
func Shutdown() error {
	return ort.DestroyEnvironment()
}

// Config carries the external resources a Predictor needs.
type Config struct {
	// ModelPath locates the 68-point landmark ONNX model.
	ModelPath string
	// CascadePath locates the pigo face cascade.
	CascadePath string
	// Threads bounds intra/inter-op parallelism. Zero keeps the
	// runtime default.
	Threads int
}

// Predictor locates 68 facial landmarks in a frame. It finds the most
// prominent face with a cascade classifier, then runs a landmark
// network over the face crop. It implements Source.
//
// A Predictor is not safe for concurrent use: it owns a single
// input/output tensor pair, matching the one-frame-at-a-time model of
// the tracker that drives it.
type Predictor struct {
	faces   *faceDetector
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewPredictor loads the cascade and the landmark model. Init must
// have been called first.
func NewPredictor(cfg Config) (*Predictor, error) {
	cascade, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("landmark: read cascade: %w", err)
	}
	faces, err := newFaceDetector(cascade)
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("landmark: session options: %w", err)
	}
	defer options.Destroy()
	if cfg.Threads > 0 {
		options.SetIntraOpNumThreads(cfg.Threads)
		options.SetInterOpNumThreads(cfg.Threads)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputSize, inputSize))
	if err != nil {
		return nil, fmt.Errorf("landmark: input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, NumPoints*2))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("landmark: output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("landmark: create session: %w", err)
	}

	return &Predictor{
		faces:   faces,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

// Close releases the model session and its tensors.
func (p *Predictor) Close() error {
	p.session.Destroy()
	p.input.Destroy()
	p.output.Destroy()
	return nil
}

// Detect implements Source.
func (p *Predictor) Detect(frame gocv.Mat) (*Set, error) {
	img, err := frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("landmark: convert frame: %w", err)
	}
	gray := toGray(img)

	box, ok := p.faces.mostProminent(gray)
	if !ok {
		return nil, ErrNoFace
	}
	box = squareCrop(box, gray.Bounds())
	if box.Dx() <= 0 || box.Dy() <= 0 {
		return nil, ErrNoFace
	}

	face := imaging.Resize(imaging.Crop(gray, box), inputSize, inputSize, imaging.Linear)
	fillInput(p.input.GetData(), face)

	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("landmark: run model: %w", err)
	}

	// The network emits x,y pairs normalized to the face crop.
	out := p.output.GetData()
	pts := make([]image.Point, NumPoints)
	for i := range pts {
		pts[i] = image.Pt(
			box.Min.X+int(out[2*i]*float32(box.Dx())),
			box.Min.Y+int(out[2*i+1]*float32(box.Dy())),
		)
	}
	return NewSet(pts)
}

// squareCrop expands box by 20% into a square around its center,
// clamped to bounds. Landmark networks are trained on face crops with
// some margin; a tight detector box cuts off the jawline points.
func squareCrop(box, bounds image.Rectangle) image.Rectangle {
	side := max(box.Dx(), box.Dy())
	side += side / 5
	c := image.Pt((box.Min.X+box.Max.X)/2, (box.Min.Y+box.Max.Y)/2)
	r := image.Rect(c.X-side/2, c.Y-side/2, c.X+side/2, c.Y+side/2)
	return r.Intersect(bounds)
}

// fillInput writes the grayscale face crop into the NCHW input
// tensor, replicating the single channel across all three planes.
func fillInput(dst []float32, face *image.NRGBA) {
	const plane = inputSize * inputSize
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			v := float32(face.Pix[y*face.Stride+x*4]) / 255
			i := y*inputSize + x
			dst[i] = v
			dst[plane+i] = v
			dst[2*plane+i] = v
		}
	}
}
