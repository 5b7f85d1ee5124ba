package main

import (
	"context"
	"os"
	"path/filepath"

	"tongue-vision-go/internal/dataset"
	"tongue-vision-go/internal/train"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type cliOptions struct {
	dataRoot    string
	imagesDir   string
	labelsDir   string
	classesFile string
	model       string
	epochs      int
	imgsz       int
	batch       int
	device      string
	valSplit    float64
	seed        int64
	name        string
}

func parseFlags(fs *pflag.FlagSet, args []string) (cliOptions, error) {
	var o cliOptions
	fs.StringVar(&o.dataRoot, "data_root", ".", "Dataset root directory")
	fs.StringVar(&o.imagesDir, "images_dir", "images", "Images directory, relative to data_root unless absolute")
	fs.StringVar(&o.labelsDir, "labels_dir", "labels", "Labels directory, relative to data_root unless absolute")
	fs.StringVar(&o.classesFile, "classes_file", "classes.txt", "Class names file, relative to data_root unless absolute")
	fs.StringVar(&o.model, "model", "yolov8n.pt", "Base model weights")
	fs.IntVar(&o.epochs, "epochs", 100, "Number of training epochs")
	fs.IntVar(&o.imgsz, "imgsz", 640, "Image size for training")
	fs.IntVar(&o.batch, "batch", 16, "Batch size")
	fs.StringVar(&o.device, "device", "auto", "Device: 'cpu', '0', '0,1', or 'auto'")
	fs.Float64Var(&o.valSplit, "val_split", 0.2, "Validation split fraction [0,1)")
	fs.Int64Var(&o.seed, "seed", 42, "Random seed")
	fs.StringVar(&o.name, "name", "yolov8", "Run name")
	err := fs.Parse(args)
	return o, err
}

// resolvePath anchors a possibly-relative path at the dataset root.
func resolvePath(root, maybeRel string) string {
	if filepath.IsAbs(maybeRel) {
		return maybeRel
	}
	return filepath.Join(root, maybeRel)
}

func main() {
	opts, err := parseFlags(pflag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	imagesDir := resolvePath(opts.dataRoot, opts.imagesDir)
	labelsDir := resolvePath(opts.dataRoot, opts.labelsDir)
	classesFile := resolvePath(opts.dataRoot, opts.classesFile)

	for _, dir := range []string{imagesDir, labelsDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			log.Fatalf("Directory not found: %s", dir)
		}
	}

	names, err := dataset.ReadClassNames(classesFile)
	if err != nil {
		log.Fatalf("Failed to read class names: %v", err)
	}

	images, err := dataset.CollectImages(imagesDir)
	if err != nil {
		log.Fatalf("Failed to collect images: %v", err)
	}
	labeled := dataset.FilterLabeled(images, labelsDir)
	if len(labeled) == 0 {
		log.Fatalf("No labeled images found in %s (checked %d image(s) against %s)",
			imagesDir, len(images), labelsDir)
	}
	log.Infof("Found %d labeled image(s) out of %d", len(labeled), len(images))

	splitDir := filepath.Join(opts.dataRoot, "splits")
	trainTxt, valTxt, err := dataset.WriteSplitFiles(labeled, splitDir, opts.valSplit, opts.seed)
	if err != nil {
		log.Fatalf("Failed to write split manifests: %v", err)
	}

	yamlPath := filepath.Join(splitDir, "dataset.yaml")
	if err := dataset.WriteDatasetYAML(names, trainTxt, valTxt, yamlPath); err != nil {
		log.Fatalf("Failed to write dataset description: %v", err)
	}
	log.Infof("Dataset description written to %s", yamlPath)

	backend := &train.YOLOBackend{}
	params := train.Params{
		DataYAML: yamlPath,
		Model:    opts.model,
		Epochs:   opts.epochs,
		ImgSz:    opts.imgsz,
		Batch:    opts.batch,
		Device:   opts.device,
		Name:     opts.name,
		Seed:     opts.seed,
	}
	if err := backend.Train(context.Background(), params); err != nil {
		log.Fatalf("Training failed: %v", err)
	}
	log.Info("Training run completed")
}
