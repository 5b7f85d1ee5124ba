// Package train drives model fine-tuning on a prepared dataset split.
// The actual optimization runs in the external ultralytics CLI; this
// package assembles its invocation and keeps the run reproducible.
package train

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// Params describes a single training run.
type Params struct {
	DataYAML string // dataset description consumed by the trainer
	Model    string // base weights to fine-tune from
	Epochs   int
	ImgSz    int
	Batch    int
	Device   string // "cpu", "0", "0,1", ...
	Name     string // run name under the trainer's project directory
	Seed     int64
}

// Backend runs a training job. Implementations may shell out or train
// in-process; the CLI only depends on this interface.
type Backend interface {
	Train(ctx context.Context, p Params) error
}

// YOLOBackend invokes the ultralytics "yolo" command line tool.
type YOLOBackend struct {
	// Binary overrides the executable name, mainly for tests.
	Binary string
	// Stdout and Stderr receive the trainer's output. Defaults to the
	// process streams when nil.
	Stdout *os.File
	Stderr *os.File
}

func (b *YOLOBackend) binary() string {
	if b.Binary != "" {
		return b.Binary
	}
	return "yolo"
}

// Args builds the argument vector for the trainer invocation.
func (b *YOLOBackend) Args(p Params) []string {
	return []string{
		"detect", "train",
		"data=" + p.DataYAML,
		"model=" + p.Model,
		"epochs=" + strconv.Itoa(p.Epochs),
		"imgsz=" + strconv.Itoa(p.ImgSz),
		"batch=" + strconv.Itoa(p.Batch),
		"device=" + p.Device,
		"name=" + p.Name,
		"seed=" + strconv.FormatInt(p.Seed, 10),
		"cache=True",
		"workers=8",
	}
}

// Train runs the external trainer and blocks until it exits.
func (b *YOLOBackend) Train(ctx context.Context, p Params) error {
	if _, err := exec.LookPath(b.binary()); err != nil {
		return fmt.Errorf("trainer binary %q not found in PATH: %w", b.binary(), err)
	}

	cmd := exec.CommandContext(ctx, b.binary(), b.Args(p)...)
	// Seed Python's hash randomization too, so augmentation order is
	// stable across runs with the same seed.
	cmd.Env = append(os.Environ(), "PYTHONHASHSEED="+strconv.FormatInt(p.Seed, 10))
	if b.Stdout != nil {
		cmd.Stdout = b.Stdout
	} else {
		cmd.Stdout = os.Stdout
	}
	if b.Stderr != nil {
		cmd.Stderr = b.Stderr
	} else {
		cmd.Stderr = os.Stderr
	}

	log.WithFields(log.Fields{
		"data":   p.DataYAML,
		"model":  p.Model,
		"epochs": p.Epochs,
		"device": p.Device,
	}).Info("Starting training run")

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("training run failed: %w", err)
	}
	return nil
}
