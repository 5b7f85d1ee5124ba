// Package detect runs the tongue position detector over single images.
package detect

import (
	"context"
	"image"

	gocv "gocv.io/x/gocv"
)

// Labels is the fixed class list of the tongue position model. Index position
// is the class id used in training label files.
var Labels = []string{
	"tongue_left",
	"tongue_right",
	"tongue_up",
	"tongue_down",
	"tongue_center",
	"no_tongue",
}

// LabelNone is the sentinel returned when the detector finds nothing.
const LabelNone = "no_tongue"

// Default inference thresholds.
const (
	DefaultConfThreshold float32 = 0.25
	DefaultIoUThreshold  float32 = 0.45
)

// Box is a single detection in original image coordinates.
type Box struct {
	Rect       image.Rectangle
	ClassID    int
	Label      string
	Confidence float32
}

// Options controls a single detection run. Zero values fall back to the
// package defaults.
type Options struct {
	ConfThreshold float32
	IoUThreshold  float32
}

// Detector is a single-image object detector. Implementations must be safe
// for concurrent use.
type Detector interface {
	// Detect returns the boxes found in img, sorted by confidence descending.
	// An empty slice means no detection above the confidence threshold.
	Detect(ctx context.Context, img gocv.Mat, opts Options) ([]Box, error)

	// Close releases any resources held by the detector.
	Close() error
}

// LabelName resolves a class id to its label name. Unknown ids map to the
// no-detection sentinel rather than failing the request.
func LabelName(classID int) string {
	if classID < 0 || classID >= len(Labels) {
		return LabelNone
	}
	return Labels[classID]
}

func (o Options) confThreshold() float32 {
	if o.ConfThreshold > 0 {
		return o.ConfThreshold
	}
	return DefaultConfThreshold
}

func (o Options) iouThreshold() float32 {
	if o.IoUThreshold > 0 {
		return o.IoUThreshold
	}
	return DefaultIoUThreshold
}
