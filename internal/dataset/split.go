// Package dataset prepares train/validation splits for detector training.
package dataset

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// supportedExts are the recognized image extensions, in enumeration order.
var supportedExts = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff"}

// ReadClassNames reads the ordered class list from a classes file, one name
// per line. Blank lines are skipped. A missing or empty file is an error.
func ReadClassNames(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classes file not found: %s", path)
	}
	defer file.Close()

	var names []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read classes file: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no classes found in %s", path)
	}
	return names, nil
}

// CollectImages enumerates image files directly under imagesDir. Files are
// sorted within each extension and the per-extension groups are concatenated
// in the fixed extension order; the result is not re-sorted globally.
func CollectImages(imagesDir string) ([]string, error) {
	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		return nil, fmt.Errorf("images directory not found: %s", imagesDir)
	}

	byExt := make(map[string][]string, len(supportedExts))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		for _, ext := range supportedExts {
			if strings.HasSuffix(name, ext) {
				byExt[ext] = append(byExt[ext], filepath.Join(imagesDir, name))
				break
			}
		}
	}

	var all []string
	for _, ext := range supportedExts {
		group := byExt[ext]
		sort.Strings(group)
		all = append(all, group...)
	}
	return all, nil
}

// FilterLabeled keeps only images that have a same-stem .txt label file in
// labelsDir.
func FilterLabeled(images []string, labelsDir string) []string {
	var filtered []string
	for _, img := range images {
		stem := strings.TrimSuffix(filepath.Base(img), filepath.Ext(img))
		labelPath := filepath.Join(labelsDir, stem+".txt")
		if _, err := os.Stat(labelPath); err == nil {
			filtered = append(filtered, img)
		}
	}
	return filtered
}

// Split shuffles images deterministically with the given seed and cuts at
// floor(N * (1 - valSplit)). The training subset comes first.
func Split(images []string, valSplit float64, seed int64) (train, val []string) {
	shuffled := make([]string, len(images))
	copy(shuffled, images)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cut := int(float64(len(shuffled)) * (1.0 - valSplit))
	return shuffled[:cut], shuffled[cut:]
}
