package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteSplitFiles splits the image list and writes train.txt/val.txt under
// splitDir, one absolute path per line. It returns the manifest paths.
func WriteSplitFiles(images []string, splitDir string, valSplit float64, seed int64) (trainTxt, valTxt string, err error) {
	if err := os.MkdirAll(splitDir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create split directory: %w", err)
	}

	train, val := Split(images, valSplit, seed)

	trainTxt = filepath.Join(splitDir, "train.txt")
	valTxt = filepath.Join(splitDir, "val.txt")

	if err := writePathList(trainTxt, train); err != nil {
		return "", "", err
	}
	if err := writePathList(valTxt, val); err != nil {
		return "", "", err
	}
	return trainTxt, valTxt, nil
}

// WriteDatasetYAML writes the minimal dataset manifest consumed by the
// training backend: train/val manifest paths plus the index-to-name class
// map.
func WriteDatasetYAML(names []string, trainTxt, valTxt, yamlPath string) error {
	if err := os.MkdirAll(filepath.Dir(yamlPath), 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	absTrain, err := filepath.Abs(trainTxt)
	if err != nil {
		return fmt.Errorf("failed to resolve train manifest path: %w", err)
	}
	absVal, err := filepath.Abs(valTxt)
	if err != nil {
		return fmt.Errorf("failed to resolve val manifest path: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "train: %s\n", absTrain)
	fmt.Fprintf(&b, "val: %s\n", absVal)
	b.WriteString("names:\n")
	for idx, name := range names {
		fmt.Fprintf(&b, "  %d: %s\n", idx, name)
	}

	if err := os.WriteFile(yamlPath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write dataset yaml: %w", err)
	}
	return nil
}

// writePathList writes one absolute path per line.
func writePathList(path string, entries []string) error {
	var b strings.Builder
	for _, entry := range entries {
		abs, err := filepath.Abs(entry)
		if err != nil {
			return fmt.Errorf("failed to resolve path %s: %w", entry, err)
		}
		b.WriteString(abs)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}
