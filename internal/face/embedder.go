package face

import (
	"fmt"
	"image"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

// Embedder runs the face embedding network over aligned crops. The ONNX
// session reuses persistent tensors, so runs are serialized by a mutex.
type Embedder struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewEmbedder loads the embedding model and prepares an inference session.
func NewEmbedder(modelPath string) (*Embedder, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("embedding model not found: %s", modelPath)
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, cropSize, cropSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, EmbeddingDim))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	log.WithFields(logFields).Infof("Loaded face embedder %s (%d dimensions)", modelPath, EmbeddingDim)

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Embed runs the network over an aligned face crop and returns the raw
// (un-normalized) embedding vector.
func (e *Embedder) Embed(crop image.Image) ([]float32, error) {
	input := preprocessCrop(crop)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), input)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("embedding inference failed: %w", err)
	}

	vec := make([]float32, EmbeddingDim)
	copy(vec, e.outputTensor.GetData())
	return vec, nil
}

// preprocessCrop resizes the crop to the model input size and converts it to
// a CHW float32 tensor normalized to [-1, 1].
func preprocessCrop(crop image.Image) []float32 {
	resized := resize.Resize(cropSize, cropSize, crop, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	input := make([]float32, 3*width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			// 16-bit channel values scaled to [0,255], then standardized.
			idx := y*width + x
			input[idx] = (float32(r)/257.0 - 127.5) / 128.0
			input[width*height+idx] = (float32(g)/257.0 - 127.5) / 128.0
			input[2*width*height+idx] = (float32(b)/257.0 - 127.5) / 128.0
		}
	}
	return input
}

// Close releases the ONNX session resources.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inputTensor != nil {
		e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	return nil
}
