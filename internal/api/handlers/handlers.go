// Package handlers implements the HTTP inference gateway.
//
// Every inference failure is reported in-band as an `error` field with HTTP
// 200 and a well-formed fallback object. Existing callers poll the API per
// video frame and depend on this contract; transient failures must not break
// their loop.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tongue-vision-go/internal/config"
	"tongue-vision-go/internal/detect"
	"tongue-vision-go/internal/face"
	"tongue-vision-go/internal/imaging"
	"tongue-vision-go/internal/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// faceUnavailableMsg is the fixed degraded-mode message returned when the
// face pipeline failed to load at startup.
const faceUnavailableMsg = "FaceNet not available on server"

// Detector is the tongue position detection backend.
type Detector interface {
	Detect(ctx context.Context, img gocv.Mat, opts detect.Options) ([]detect.Box, error)
}

// FaceEmbedder produces normalized face embeddings from a BGR image.
type FaceEmbedder interface {
	Embed(ctx context.Context, img gocv.Mat) ([]float32, error)
}

// Publisher receives detection results for broadcasting. Implementations
// must not block.
type Publisher interface {
	PublishDetection(detection string, confidence float64)
}

// APIHandler holds the request handlers and their backends. The model
// handles are built once at startup and shared read-only across requests.
type APIHandler struct {
	cfg       *config.Config
	detector  Detector
	face      FaceEmbedder // nil when the face pipeline failed to load
	poolStats utils.PoolStats
	publisher Publisher // nil when MQTT publishing is disabled
	started   time.Time
}

// NewAPIHandler creates the handler set. faceEmbedder may be nil, which puts
// the face endpoints into permanent degraded mode for this process.
func NewAPIHandler(cfg *config.Config, detector Detector, faceEmbedder FaceEmbedder, poolStats utils.PoolStats, publisher Publisher) *APIHandler {
	return &APIHandler{
		cfg:       cfg,
		detector:  detector,
		face:      faceEmbedder,
		poolStats: poolStats,
		publisher: publisher,
		started:   time.Now(),
	}
}

// Router builds the gin engine with CORS and all routes registered.
func (h *APIHandler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins: h.cfg.Server.AllowedOrigins,
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
	}))

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/status", h.Status)
	router.POST("/detect", h.Detect)
	router.POST("/face/embed", h.FaceEmbed)
	router.POST("/face/verify", h.FaceVerify)

	return router
}

type detectRequest struct {
	Image string `json:"image"`
}

type verifyRequest struct {
	Image     string    `json:"image"`
	Reference []float32 `json:"reference"`
}

// Root returns the static service description.
func (h *APIHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "running",
		"model_path": h.cfg.Detector.ModelPath,
		"detections": detect.Labels,
	})
}

// Health is the liveness probe.
func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Status reports process statistics and backend availability.
func (h *APIHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": time.Since(h.started).Seconds(),
		"face_available": h.face != nil,
		"system":         utils.Collect(h.poolStats),
	})
}

// Detect classifies the tongue position in a single image.
func (h *APIHandler) Detect(c *gin.Context) {
	defer h.recoverDetect(c)

	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	data, err := imaging.DecodePayload(req.Image)
	if err != nil {
		c.JSON(http.StatusOK, detectError("Failed to decode image"))
		return
	}

	img, err := imaging.DecodeMat(data)
	if err != nil {
		c.JSON(http.StatusOK, detectError("Failed to decode image"))
		return
	}
	defer img.Close()

	boxes, err := h.detector.Detect(c.Request.Context(), img, detect.Options{
		ConfThreshold: h.cfg.Detector.ConfThreshold,
		IoUThreshold:  h.cfg.Detector.IoUThreshold,
	})
	if err != nil {
		log.Errorf("Detection failed: %v", err)
		c.JSON(http.StatusOK, detectError(err.Error()))
		return
	}

	if len(boxes) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"detection":  detect.LabelNone,
			"confidence": 1.0,
		})
		return
	}

	// Boxes arrive sorted by confidence descending, so the first one is the
	// best detection.
	best := boxes[0]
	if h.publisher != nil {
		h.publisher.PublishDetection(best.Label, float64(best.Confidence))
	}

	c.JSON(http.StatusOK, gin.H{
		"detection":  best.Label,
		"confidence": best.Confidence,
	})
}

// FaceEmbed returns the normalized embedding of the single most confident
// face in the image.
func (h *APIHandler) FaceEmbed(c *gin.Context) {
	defer h.recoverFace(c, embedError)

	if h.face == nil {
		c.JSON(http.StatusOK, embedError(faceUnavailableMsg))
		return
	}

	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	embedding, errResp := h.embedImage(c.Request.Context(), req.Image, embedError)
	if errResp != nil {
		c.JSON(http.StatusOK, errResp)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"embedding": embedding,
		"dimension": face.EmbeddingDim,
	})
}

// FaceVerify compares the query image against a caller-supplied reference
// embedding.
func (h *APIHandler) FaceVerify(c *gin.Context) {
	defer h.recoverFace(c, verifyError)

	if h.face == nil {
		c.JSON(http.StatusOK, verifyError(faceUnavailableMsg))
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if len(req.Reference) == 0 {
		c.JSON(http.StatusOK, verifyError("Reference embedding is required"))
		return
	}

	embedding, errResp := h.embedImage(c.Request.Context(), req.Image, verifyError)
	if errResp != nil {
		c.JSON(http.StatusOK, errResp)
		return
	}

	reference := face.Normalize(append([]float32(nil), req.Reference...))

	similarity, err := face.CosineSimilarity(embedding, reference)
	if err != nil {
		c.JSON(http.StatusOK, verifyError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"similarity": similarity,
		"match":      face.Match(similarity),
		"threshold":  face.MatchThreshold,
	})
}

// embedImage runs the shared decode/detect/align/embed flow for the face
// endpoints. On failure it returns the endpoint-shaped error object.
func (h *APIHandler) embedImage(ctx context.Context, payload string, errShape func(string) gin.H) ([]float32, gin.H) {
	data, err := imaging.DecodePayload(payload)
	if err != nil {
		return nil, errShape("Failed to decode image")
	}

	img, err := imaging.DecodeMat(data)
	if err != nil {
		return nil, errShape("Failed to decode image")
	}
	defer img.Close()

	embedding, err := h.face.Embed(ctx, img)
	if err != nil {
		if errors.Is(err, face.ErrNoFace) {
			return nil, errShape("No face detected")
		}
		log.Errorf("Face embedding failed: %v", err)
		return nil, errShape(err.Error())
	}

	return embedding, nil
}

// recoverDetect converts a handler panic into the /detect error variant.
func (h *APIHandler) recoverDetect(c *gin.Context) {
	if r := recover(); r != nil {
		log.Errorf("Panic in /detect handler: %v", r)
		c.JSON(http.StatusOK, detectError(fmt.Sprintf("%v", r)))
	}
}

// recoverFace converts a handler panic into the endpoint's error variant.
func (h *APIHandler) recoverFace(c *gin.Context, errShape func(string) gin.H) {
	if r := recover(); r != nil {
		log.Errorf("Panic in face handler: %v", r)
		c.JSON(http.StatusOK, errShape(fmt.Sprintf("%v", r)))
	}
}

func detectError(msg string) gin.H {
	return gin.H{
		"error":      msg,
		"detection":  detect.LabelNone,
		"confidence": 0.0,
	}
}

func embedError(msg string) gin.H {
	return gin.H{
		"error":     msg,
		"embedding": nil,
	}
}

func verifyError(msg string) gin.H {
	return gin.H{"error": msg}
}
