// Command gaze tracks a user's gaze direction and blink state from a
// webcam, or from a single still image. It is a thin shell around the
// internal pipeline: capture, draw, log, quit.
package main

import (
	"fmt"
	"image"
	"image/color"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"go.universe.tf/gaze/internal/debug"
	"go.universe.tf/gaze/internal/gaze"
	"go.universe.tf/gaze/internal/landmark"
)

var (
	rootCmd = &cobra.Command{
		Use:   "gaze",
		Short: "Track gaze direction and blinks from a webcam",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPredictor(runWebcam)
		},
	}
	imageCmd = &cobra.Command{
		Use:   "image <path>",
		Short: "Run the pipeline once over a still image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPredictor(func(pred *landmark.Predictor) error {
				return runImage(pred, args[0])
			})
		},
	}

	device      int
	modelPath   string
	cascadePath string
	ortLibPath  string
	debugMode   bool
)

func init() {
	rootCmd.PersistentFlags().IntVarP(&device, "device", "d", 0, "webcam device id")
	rootCmd.PersistentFlags().StringVarP(&modelPath, "model", "m", "models/landmarks68.onnx", "68-point landmark ONNX model")
	rootCmd.PersistentFlags().StringVarP(&cascadePath, "cascade", "c", "models/facefinder", "pigo face cascade")
	rootCmd.PersistentFlags().StringVar(&ortLibPath, "ort-lib", "", "onnxruntime shared library (empty uses the system search path)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "show isolated eye frames in extra windows")
	rootCmd.AddCommand(imageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("gaze tracking failed")
	}
}

// withPredictor brackets fn with the ONNX runtime and predictor
// lifecycle. Missing model files are the only fatal startup path.
func withPredictor(fn func(*landmark.Predictor) error) error {
	if err := landmark.Init(ortLibPath); err != nil {
		return err
	}
	defer landmark.Shutdown()

	pred, err := landmark.NewPredictor(landmark.Config{
		ModelPath:   modelPath,
		CascadePath: cascadePath,
	})
	if err != nil {
		return err
	}
	defer pred.Close()
	return fn(pred)
}

func runWebcam(pred *landmark.Predictor) error {
	webcam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("open webcam %d: %w", device, err)
	}
	defer webcam.Close()

	window := gocv.NewWindow("gaze")
	defer window.Close()

	var eyes *debug.Windows
	if debugMode {
		eyes = debug.NewWindows("left eye", "right eye")
		defer eyes.Close()
	}

	tracker := gaze.New(pred)
	defer tracker.Close()

	logrus.Infof("tracking on device %d, calibrating thresholds", device)

	img := gocv.NewMat()
	defer img.Close()
	calibrated := false
	for {
		if ok := webcam.Read(&img); !ok {
			return fmt.Errorf("cannot read from device %d", device)
		}
		if img.Empty() {
			continue
		}

		tracker.Refresh(img)
		if !calibrated && tracker.Calibrated() {
			calibrated = true
			logrus.Info("threshold calibration complete")
		}

		annotated := tracker.AnnotatedFrame()
		drawHUD(&annotated, tracker)
		window.IMShow(annotated)
		annotated.Close()

		if eyes != nil {
			showEyes(eyes, tracker)
		}

		if window.WaitKey(1) >= 0 {
			return nil
		}
	}
}

func runImage(pred *landmark.Predictor, path string) error {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return fmt.Errorf("cannot read image %s", path)
	}
	defer img.Close()

	tracker := gaze.New(pred)
	defer tracker.Close()

	state := tracker.Refresh(img)
	logrus.Infof("state: %s", state)
	if p, ok := tracker.PupilLeftCoords(); ok {
		logrus.Infof("left pupil: %v", p)
	}
	if p, ok := tracker.PupilRightCoords(); ok {
		logrus.Infof("right pupil: %v", p)
	}
	if h, ok := tracker.HorizontalRatio(); ok {
		v, _ := tracker.VerticalRatio()
		logrus.Infof("gaze ratios: horizontal %.2f, vertical %.2f", h, v)
	}

	annotated := tracker.AnnotatedFrame()
	defer annotated.Close()
	drawHUD(&annotated, tracker)

	window := gocv.NewWindow("gaze")
	defer window.Close()
	window.IMShow(annotated)
	window.WaitKey(0)
	return nil
}

func drawHUD(im *gocv.Mat, t *gaze.Tracker) {
	text := direction(t)
	gocv.PutText(im, text, image.Pt(20, 40), gocv.FontHersheySimplex, 1.0, color.RGBA{0, 255, 0, 0}, 2)

	if h, ok := t.HorizontalRatio(); ok {
		v, _ := t.VerticalRatio()
		ratios := fmt.Sprintf("h %.2f  v %.2f", h, v)
		gocv.PutText(im, ratios, image.Pt(20, 75), gocv.FontHersheySimplex, 0.6, color.RGBA{0, 255, 0, 0}, 1)
	}
}

func direction(t *gaze.Tracker) string {
	switch {
	case t.IsBlinking():
		return "blinking"
	case t.IsRight():
		return "looking right"
	case t.IsLeft():
		return "looking left"
	case t.IsCenter():
		return "looking center"
	default:
		return "searching..."
	}
}

func showEyes(w *debug.Windows, t *gaze.Tracker) {
	left, right := t.LeftEye(), t.RightEye()
	if left == nil || right == nil {
		return
	}
	w.Show(left.Frame, right.Frame)
}
