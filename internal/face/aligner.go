// Package face detects, aligns and embeds faces for the verification API.
package face

import (
	"errors"
	"fmt"
	"image"
	"os"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

var logFields = log.Fields{
	"component": "face",
}

// ErrNoFace is returned when no face clears the detection threshold.
var ErrNoFace = errors.New("no face detected")

// Input size and mean values of the SSD face detection network.
const (
	alignerInputSize = 300
	cropSize         = 112
)

// Aligner locates the most confident face in an image and produces a
// canonical square crop for the embedder.
type Aligner struct {
	net           gocv.Net
	confThreshold float32
	margin        float64
}

// NewAligner loads the DNN face detector from its prototxt/caffemodel pair.
func NewAligner(protoPath, modelPath string, confThreshold float32, margin float64) (*Aligner, error) {
	for _, p := range []string{protoPath, modelPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("face detector file not found: %s", p)
		}
	}

	net := gocv.ReadNet(modelPath, protoPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load face detection model: %s", modelPath)
	}

	if confThreshold <= 0 {
		confThreshold = 0.5
	}

	log.WithFields(logFields).Infof("Loaded face detector %s", modelPath)

	return &Aligner{
		net:           net,
		confThreshold: confThreshold,
		margin:        margin,
	}, nil
}

// Align finds the single most confident face in a BGR image and returns it
// cropped with margin and resized to the canonical embedding input size.
// Additional faces in the frame are ignored.
func (a *Aligner) Align(img gocv.Mat) (image.Image, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty input image")
	}

	blob := gocv.BlobFromImage(img, 1.0,
		image.Point{X: alignerInputSize, Y: alignerInputSize},
		gocv.NewScalar(104.0, 177.0, 123.0, 0),
		false, false)
	defer blob.Close()

	a.net.SetInput(blob, "")
	prob := a.net.Forward("")
	defer prob.Close()

	// SSD output rows: [image_id, class_id, confidence, left, top, right, bottom].
	detections := prob.Reshape(1, prob.Total()/7)
	defer detections.Close()

	bestRow := -1
	var bestConf float32
	for r := 0; r < detections.Rows(); r++ {
		conf := detections.GetFloatAt(r, 2)
		if conf >= a.confThreshold && conf > bestConf {
			bestConf = conf
			bestRow = r
		}
	}
	if bestRow < 0 {
		return nil, ErrNoFace
	}

	w := float32(img.Cols())
	h := float32(img.Rows())
	rect := image.Rect(
		int(detections.GetFloatAt(bestRow, 3)*w),
		int(detections.GetFloatAt(bestRow, 4)*h),
		int(detections.GetFloatAt(bestRow, 5)*w),
		int(detections.GetFloatAt(bestRow, 6)*h),
	)

	rect = expandRect(rect, a.margin).Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if rect.Empty() {
		return nil, ErrNoFace
	}

	log.WithFields(logFields).Debugf("Aligning face at %v (confidence %.3f)", rect, bestConf)

	region := img.Region(rect)
	defer region.Close()

	crop := gocv.NewMat()
	defer crop.Close()
	gocv.Resize(region, &crop, image.Point{X: cropSize, Y: cropSize}, 0, 0, gocv.InterpolationLinear)

	aligned, err := crop.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert face crop: %w", err)
	}
	return aligned, nil
}

// Close releases the detector network.
func (a *Aligner) Close() error {
	return a.net.Close()
}

// expandRect grows a rectangle by margin (fraction of its size) on each side.
func expandRect(r image.Rectangle, margin float64) image.Rectangle {
	if margin <= 0 {
		return r
	}
	dx := int(float64(r.Dx()) * margin)
	dy := int(float64(r.Dy()) * margin)
	return image.Rect(r.Min.X-dx, r.Min.Y-dy, r.Max.X+dx, r.Max.Y+dy)
}
