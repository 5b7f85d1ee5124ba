package detect

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"tongue-vision-go/internal/config"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
	gocv "gocv.io/x/gocv"
)

var logFields = log.Fields{
	"component": "detector",
}

// letterboxFill is the pad color the model was trained with.
var letterboxFill = color.RGBA{R: 114, G: 114, B: 114, A: 0}

// ONNXDetector runs an exported YOLOv8 detection model in-process through
// ONNX Runtime. The session holds persistent input/output tensors, so a run
// is serialized by a mutex.
type ONNXDetector struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputSize    int
	anchors      int
	labels       []string
}

// NewONNXDetector loads the detector weights and prepares an inference
// session. A missing weights file is an error; the caller decides whether
// that is fatal.
func NewONNXDetector(cfg config.DetectorConfig) (*ONNXDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detector weights not found: %s", cfg.ModelPath)
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputSize := cfg.InputSize
	if inputSize <= 0 {
		inputSize = 640
	}
	// Anchor count of the three YOLOv8 detection heads (strides 8, 16, 32).
	anchors := (inputSize/8)*(inputSize/8) + (inputSize/16)*(inputSize/16) + (inputSize/32)*(inputSize/32)

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputSize), int64(inputSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+len(Labels)), int64(anchors)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	log.WithFields(logFields).Infof("Loaded detector model %s (input %dx%d, %d classes)",
		cfg.ModelPath, inputSize, inputSize, len(Labels))

	return &ONNXDetector{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputSize:    inputSize,
		anchors:      anchors,
		labels:       Labels,
	}, nil
}

// Detect runs the model over a single BGR image and returns the surviving
// boxes sorted by confidence descending.
func (d *ONNXDetector) Detect(ctx context.Context, img gocv.Mat, opts Options) ([]Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, fmt.Errorf("empty input image")
	}

	input, lb, err := d.preprocess(img)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	copy(d.inputTensor.GetData(), input)
	if err := d.session.Run(); err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	out := make([]float32, len(d.outputTensor.GetData()))
	copy(out, d.outputTensor.GetData())
	d.mu.Unlock()

	candidates := DecodeCandidates(out, len(d.labels), d.anchors, lb, opts.confThreshold())
	boxes := applyNMS(candidates, opts.confThreshold(), opts.iouThreshold())
	SortByConfidence(boxes)

	log.WithFields(logFields).Debugf("Detected %d box(es) (%d candidates before NMS)",
		len(boxes), len(candidates))

	return boxes, nil
}

// preprocess letterboxes the image into the square model input and converts
// it to a normalized CHW float32 blob.
func (d *ONNXDetector) preprocess(img gocv.Mat) ([]float32, Letterbox, error) {
	origW := img.Cols()
	origH := img.Rows()

	gain := float64(d.inputSize) / float64(origW)
	if g := float64(d.inputSize) / float64(origH); g < gain {
		gain = g
	}
	scaledW := int(float64(origW) * gain)
	scaledH := int(float64(origH) * gain)
	padX := (d.inputSize - scaledW) / 2
	padY := (d.inputSize - scaledH) / 2

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Point{X: scaledW, Y: scaledH}, 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(resized, &padded,
		padY, d.inputSize-scaledH-padY, padX, d.inputSize-scaledW-padX,
		gocv.BorderConstant, letterboxFill)

	blob := gocv.BlobFromImage(padded, 1.0/255.0,
		image.Point{X: d.inputSize, Y: d.inputSize},
		gocv.NewScalar(0, 0, 0, 0),
		true,  // BGR to RGB
		false, // no crop
	)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, Letterbox{}, fmt.Errorf("failed to read blob data: %w", err)
	}
	input := make([]float32, len(data))
	copy(input, data)

	lb := Letterbox{
		Gain:  gain,
		PadX:  float64(padX),
		PadY:  float64(padY),
		OrigW: origW,
		OrigH: origH,
	}
	return input, lb, nil
}

// applyNMS suppresses overlapping candidates, keeping the highest-confidence
// box per cluster.
func applyNMS(candidates []Box, confThreshold, iouThreshold float32) []Box {
	if len(candidates) == 0 {
		return nil
	}

	rects := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		rects[i] = c.Rect
		scores[i] = c.Confidence
	}

	indices := gocv.NMSBoxes(rects, scores, confThreshold, iouThreshold)
	kept := make([]Box, 0, len(indices))
	for _, idx := range indices {
		kept = append(kept, candidates[idx])
	}
	return kept
}

// Close releases the ONNX session resources.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inputTensor != nil {
		d.inputTensor.Destroy()
		d.inputTensor = nil
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
		d.outputTensor = nil
	}
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	return nil
}
