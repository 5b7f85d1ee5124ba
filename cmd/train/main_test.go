package main

import (
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestParseFlagDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("train", pflag.ContinueOnError)
	opts, err := parseFlags(fs, nil)
	if err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}

	if opts.dataRoot != "." {
		t.Errorf("data_root default = %q, expected .", opts.dataRoot)
	}
	if opts.epochs != 100 {
		t.Errorf("epochs default = %d, expected 100", opts.epochs)
	}
	if opts.imgsz != 640 || opts.batch != 16 {
		t.Errorf("imgsz/batch defaults = %d/%d, expected 640/16", opts.imgsz, opts.batch)
	}
	if opts.device != "auto" {
		t.Errorf("device default = %q, expected auto", opts.device)
	}
	if opts.valSplit != 0.2 || opts.seed != 42 {
		t.Errorf("val_split/seed defaults = %v/%d, expected 0.2/42", opts.valSplit, opts.seed)
	}
	if opts.model != "yolov8n.pt" || opts.name != "yolov8" {
		t.Errorf("model/name defaults = %q/%q, expected yolov8n.pt/yolov8", opts.model, opts.name)
	}
}

func TestResolvePath(t *testing.T) {
	if got := resolvePath("/data", "images"); got != filepath.Join("/data", "images") {
		t.Errorf("relative path not anchored: %q", got)
	}
	if got := resolvePath("/data", "/elsewhere/images"); got != "/elsewhere/images" {
		t.Errorf("absolute path rewritten: %q", got)
	}
}
