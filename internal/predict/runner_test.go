package predict

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tongue-vision-go/internal/detect"
)

func TestEnumerateSourceDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "c.TXT", "d.JPG"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := EnumerateSource(dir)
	if err != nil {
		t.Fatalf("EnumerateSource returned error: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("got %d paths, expected 3: %v", len(paths), paths)
	}
	// Sorted, extension match case-insensitive, non-image skipped.
	if filepath.Base(paths[0]) != "a.jpg" || filepath.Base(paths[2]) != "d.JPG" {
		t.Errorf("unexpected ordering: %v", paths)
	}
}

func TestEnumerateSourceEmptyDirectory(t *testing.T) {
	if _, err := EnumerateSource(t.TempDir()); err == nil {
		t.Error("expected error for directory without images")
	}
}

func TestEnumerateSourceGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"x1.jpg", "x2.jpg", "y1.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := EnumerateSource(filepath.Join(dir, "x*.jpg"))
	if err != nil {
		t.Fatalf("EnumerateSource returned error: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("got %d paths, expected 2: %v", len(paths), paths)
	}

	if _, err := EnumerateSource(filepath.Join(dir, "z*.jpg")); err == nil {
		t.Error("expected error for glob with no matches")
	}
}

func TestEnumerateSourceSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "one.jpg")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	paths, err := EnumerateSource(path)
	if err != nil {
		t.Fatalf("EnumerateSource returned error: %v", err)
	}
	if len(paths) != 1 || paths[0] != path {
		t.Errorf("paths = %v, expected [%s]", paths, path)
	}

	if _, err := EnumerateSource(filepath.Join(dir, "missing.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCameraDevice(t *testing.T) {
	cases := []struct {
		source string
		id     int
		ok     bool
	}{
		{"0", 0, true},
		{"2", 2, true},
		{"-1", 0, false},
		{"images/", 0, false},
		{"0.jpg", 0, false},
	}
	for _, c := range cases {
		id, ok := cameraDevice(c.source)
		if ok != c.ok || (ok && id != c.id) {
			t.Errorf("cameraDevice(%q) = (%d, %v), expected (%d, %v)", c.source, id, ok, c.id, c.ok)
		}
	}
}

func TestFormatLabels(t *testing.T) {
	boxes := []detect.Box{
		{Rect: image.Rect(100, 50, 300, 150), ClassID: 2, Label: "tongue_up", Confidence: 0.91},
	}

	got := FormatLabels(boxes, 400, 200, false)
	expected := "2 0.500000 0.500000 0.500000 0.500000\n"
	if got != expected {
		t.Errorf("labels = %q, expected %q", got, expected)
	}

	withConf := FormatLabels(boxes, 400, 200, true)
	if !strings.HasSuffix(strings.TrimSpace(withConf), "0.910000") {
		t.Errorf("confidence not appended: %q", withConf)
	}

	if FormatLabels(boxes, 0, 0, false) != "" {
		t.Error("expected empty output for degenerate dimensions")
	}

	if FormatLabels(nil, 400, 200, false) != "" {
		t.Error("expected empty output for no boxes")
	}
}

func TestSummaryString(t *testing.T) {
	s := Summary{Items: 3, Detections: 7}
	if s.String() != "Processed 3 item(s). Total detections: 7" {
		t.Errorf("unexpected summary: %q", s.String())
	}
}

func TestOutputDir(t *testing.T) {
	o := Options{Project: "runs/detect", Name: "exp1"}
	if o.OutputDir() != filepath.Join("runs/detect", "exp1") {
		t.Errorf("unexpected output dir: %s", o.OutputDir())
	}
}
