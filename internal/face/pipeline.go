package face

import (
	"context"

	"tongue-vision-go/internal/config"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// Pipeline ties face detection/alignment and embedding together. A Pipeline
// is built once at startup; if loading fails, the server runs without face
// endpoints for the lifetime of the process.
type Pipeline struct {
	aligner  *Aligner
	embedder *Embedder
	pool     *Pool
}

// Load builds the full face pipeline from configuration. Any missing model
// file makes the whole pipeline unavailable.
func Load(cfg config.FaceConfig) (*Pipeline, error) {
	aligner, err := NewAligner(cfg.DetectorProtoPath, cfg.DetectorModelPath, cfg.DetConfThreshold, cfg.CropMargin)
	if err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(cfg.EmbedderModelPath)
	if err != nil {
		aligner.Close()
		return nil, err
	}

	return &Pipeline{
		aligner:  aligner,
		embedder: embedder,
		pool:     NewPool(aligner, cfg.PoolWorkers),
	}, nil
}

// Embed detects and aligns the most confident face in a BGR image, runs the
// embedding network and returns the L2-normalized 512-dimension vector.
// Returns ErrNoFace when the image contains no detectable face.
func (p *Pipeline) Embed(ctx context.Context, img gocv.Mat) ([]float32, error) {
	crop, err := p.pool.Align(ctx, img)
	if err != nil {
		return nil, err
	}

	vec, err := p.embedder.Embed(crop)
	if err != nil {
		return nil, err
	}

	return Normalize(vec), nil
}

// Pool exposes the alignment worker pool for status reporting.
func (p *Pipeline) Pool() *Pool {
	return p.pool
}

// Close shuts down the pool and releases the model resources.
func (p *Pipeline) Close() {
	p.pool.Shutdown()
	if err := p.aligner.Close(); err != nil {
		log.WithFields(logFields).Warnf("Failed to close face aligner: %v", err)
	}
	if err := p.embedder.Close(); err != nil {
		log.WithFields(logFields).Warnf("Failed to close face embedder: %v", err)
	}
}
