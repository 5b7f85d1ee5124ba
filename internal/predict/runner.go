// Package predict runs the detector over batch sources: single images,
// directories, glob patterns, or a live camera device.
package predict

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"tongue-vision-go/internal/detect"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
	".bmp": true, ".tif": true, ".tiff": true,
}

// Options controls a batch inference run.
type Options struct {
	Source   string
	Conf     float32
	IoU      float32
	Save     bool // write annotated images
	SaveTxt  bool // write YOLO label files
	SaveConf bool // append confidence to label lines
	Project  string
	Name     string
	Show     bool // display annotated frames in a window
}

// OutputDir is where annotated images and labels land.
func (o Options) OutputDir() string {
	return filepath.Join(o.Project, o.Name)
}

// Summary aggregates a finished run.
type Summary struct {
	Items      int
	Detections int
}

func (s Summary) String() string {
	return fmt.Sprintf("Processed %d item(s). Total detections: %d", s.Items, s.Detections)
}

// Runner applies a detector to each enumerated source item.
type Runner struct {
	detector detect.Detector
	opts     Options
}

func NewRunner(detector detect.Detector, opts Options) *Runner {
	return &Runner{detector: detector, opts: opts}
}

// Run processes the configured source and returns the aggregate summary.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if deviceID, ok := cameraDevice(r.opts.Source); ok {
		return r.runCamera(ctx, deviceID)
	}

	paths, err := EnumerateSource(r.opts.Source)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	if r.opts.Save || r.opts.SaveTxt {
		if err := os.MkdirAll(r.labelsDir(), 0755); err != nil {
			return sum, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		default:
		}

		boxes, err := r.processImage(ctx, path)
		if err != nil {
			log.WithError(err).Warnf("Skipping %s", path)
			continue
		}
		sum.Items++
		sum.Detections += len(boxes)
	}
	return sum, nil
}

func (r *Runner) labelsDir() string {
	if r.opts.SaveTxt {
		return filepath.Join(r.opts.OutputDir(), "labels")
	}
	return r.opts.OutputDir()
}

func (r *Runner) processImage(ctx context.Context, path string) ([]detect.Box, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("could not read image %s", path)
	}
	defer img.Close()

	boxes, err := r.detector.Detect(ctx, img, detect.Options{
		ConfThreshold: r.opts.Conf,
		IoUThreshold:  r.opts.IoU,
	})
	if err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	if r.opts.Save || r.opts.Show {
		AnnotateBoxes(&img, boxes)
	}
	if r.opts.Save {
		out := filepath.Join(r.opts.OutputDir(), base)
		if ok := gocv.IMWrite(out, img); !ok {
			return boxes, fmt.Errorf("failed to write %s", out)
		}
	}
	if r.opts.SaveTxt {
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		txt := filepath.Join(r.labelsDir(), stem+".txt")
		content := FormatLabels(boxes, img.Cols(), img.Rows(), r.opts.SaveConf)
		if err := os.WriteFile(txt, []byte(content), 0644); err != nil {
			return boxes, fmt.Errorf("failed to write labels: %w", err)
		}
	}
	if r.opts.Show {
		showFrame(base, img)
	}
	return boxes, nil
}

func (r *Runner) runCamera(ctx context.Context, deviceID int) (Summary, error) {
	var sum Summary
	capture, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return sum, fmt.Errorf("could not open camera device %d: %w", deviceID, err)
	}
	defer capture.Close()

	if r.opts.Save {
		if err := os.MkdirAll(r.opts.OutputDir(), 0755); err != nil {
			return sum, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		select {
		case <-ctx.Done():
			return sum, nil
		default:
		}
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			return sum, nil
		}

		boxes, err := r.detector.Detect(ctx, frame, detect.Options{
			ConfThreshold: r.opts.Conf,
			IoUThreshold:  r.opts.IoU,
		})
		if err != nil {
			log.WithError(err).Warn("Inference failed on camera frame")
			continue
		}
		sum.Items++
		sum.Detections += len(boxes)

		if r.opts.Save || r.opts.Show {
			AnnotateBoxes(&frame, boxes)
		}
		if r.opts.Save {
			out := filepath.Join(r.opts.OutputDir(), fmt.Sprintf("frame_%06d.jpg", sum.Items))
			gocv.IMWrite(out, frame)
		}
		if r.opts.Show {
			showFrame("camera", frame)
		}
	}
}

// EnumerateSource resolves a source string to a sorted list of image paths.
// A directory yields its supported image files, a glob pattern expands, and
// anything else is taken as a single file that must exist.
func EnumerateSource(source string) ([]string, error) {
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		entries, err := os.ReadDir(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read source directory: %w", err)
		}
		var paths []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
				paths = append(paths, filepath.Join(source, e.Name()))
			}
		}
		sort.Strings(paths)
		if len(paths) == 0 {
			return nil, fmt.Errorf("no images found in %s", source)
		}
		return paths, nil
	}

	if strings.ContainsAny(source, "*?[") {
		paths, err := filepath.Glob(source)
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern: %w", err)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no files match %s", source)
		}
		sort.Strings(paths)
		return paths, nil
	}

	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("source %s does not exist", source)
	}
	return []string{source}, nil
}

// cameraDevice reports whether the source names a capture device index.
func cameraDevice(source string) (int, bool) {
	id, err := strconv.Atoi(source)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// FormatLabels renders boxes in YOLO label format, one per line:
// class cx cy w h, all normalized to image dimensions, with the
// confidence appended when requested.
func FormatLabels(boxes []detect.Box, imgW, imgH int, withConf bool) string {
	if imgW <= 0 || imgH <= 0 {
		return ""
	}
	var sb strings.Builder
	for _, b := range boxes {
		cx := (float64(b.Rect.Min.X) + float64(b.Rect.Dx())/2) / float64(imgW)
		cy := (float64(b.Rect.Min.Y) + float64(b.Rect.Dy())/2) / float64(imgH)
		w := float64(b.Rect.Dx()) / float64(imgW)
		h := float64(b.Rect.Dy()) / float64(imgH)
		if withConf {
			fmt.Fprintf(&sb, "%d %.6f %.6f %.6f %.6f %.6f\n", b.ClassID, cx, cy, w, h, b.Confidence)
		} else {
			fmt.Fprintf(&sb, "%d %.6f %.6f %.6f %.6f\n", b.ClassID, cx, cy, w, h)
		}
	}
	return sb.String()
}

var boxColor = color.RGBA{R: 0, G: 200, B: 0, A: 0}

// AnnotateBoxes draws detection rectangles and labels onto the image.
func AnnotateBoxes(img *gocv.Mat, boxes []detect.Box) {
	for _, b := range boxes {
		gocv.Rectangle(img, b.Rect, boxColor, 2)
		text := fmt.Sprintf("%s %.2f", b.Label, b.Confidence)
		origin := image.Pt(b.Rect.Min.X, b.Rect.Min.Y-6)
		if origin.Y < 12 {
			origin.Y = b.Rect.Min.Y + 14
		}
		gocv.PutText(img, text, origin, gocv.FontHersheySimplex, 0.5, boxColor, 1)
	}
}

var window *gocv.Window

func showFrame(title string, img gocv.Mat) {
	if window == nil {
		window = gocv.NewWindow(title)
	}
	window.IMShow(img)
	window.WaitKey(1)
}
