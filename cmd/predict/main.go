package main

import (
	"context"
	"fmt"
	"os"

	"tongue-vision-go/internal/config"
	"tongue-vision-go/internal/detect"
	"tongue-vision-go/internal/predict"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type cliOptions struct {
	weights  string
	source   string
	imgsz    int
	conf     float32
	iou      float32
	device   string
	save     bool
	saveTxt  bool
	saveConf bool
	project  string
	name     string
	show     bool
}

func parseFlags(fs *pflag.FlagSet, args []string) (cliOptions, error) {
	var o cliOptions
	fs.StringVar(&o.weights, "weights", "", "Detector weights (ONNX), required")
	fs.StringVar(&o.source, "source", "", "Image file, directory, glob, or camera index, required")
	fs.IntVar(&o.imgsz, "imgsz", 640, "Inference image size")
	fs.Float32Var(&o.conf, "conf", detect.DefaultConfThreshold, "Confidence threshold")
	fs.Float32Var(&o.iou, "iou", detect.DefaultIoUThreshold, "NMS IoU threshold")
	fs.StringVar(&o.device, "device", "auto", "Device: 'cpu', '0', '0,1', or 'auto'")
	fs.BoolVar(&o.save, "save", false, "Save annotated outputs")
	fs.BoolVar(&o.saveTxt, "save_txt", false, "Save label text files")
	fs.BoolVar(&o.saveConf, "save_conf", false, "Append confidence to label lines")
	fs.StringVar(&o.project, "project", "runs/predict", "Output project directory")
	fs.StringVar(&o.name, "name", "exp", "Run name under project directory")
	fs.BoolVar(&o.show, "show", false, "Display annotated frames (use source=0 for webcam)")
	err := fs.Parse(args)
	return o, err
}

func main() {
	opts, err := parseFlags(pflag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	if opts.weights == "" {
		log.Fatal("--weights is required")
	}
	if _, err := os.Stat(opts.weights); err != nil {
		log.Fatalf("Weights file not found: %s", opts.weights)
	}
	if opts.source == "" {
		log.Fatal("--source is required")
	}
	if opts.device != "cpu" && opts.device != "auto" {
		log.Warnf("Device %q requested, running on CPU", opts.device)
	}

	detector, err := detect.NewONNXDetector(config.DetectorConfig{
		ModelPath:     opts.weights,
		InputSize:     opts.imgsz,
		ConfThreshold: opts.conf,
		IoUThreshold:  opts.iou,
	})
	if err != nil {
		log.Fatalf("Failed to initialize detector: %v", err)
	}
	defer detector.Close()

	runner := predict.NewRunner(detector, predict.Options{
		Source:   opts.source,
		Conf:     opts.conf,
		IoU:      opts.iou,
		Save:     opts.save,
		SaveTxt:  opts.saveTxt,
		SaveConf: opts.saveConf,
		Project:  opts.project,
		Name:     opts.name,
		Show:     opts.show,
	})

	summary, err := runner.Run(context.Background())
	if err != nil {
		log.Fatalf("Inference failed: %v", err)
	}
	fmt.Println(summary)
}
