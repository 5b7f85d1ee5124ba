package main

import (
	"fmt"
	"os"

	"tongue-vision-go/internal/api/handlers"
	"tongue-vision-go/internal/config"
	"tongue-vision-go/internal/detect"
	"tongue-vision-go/internal/face"
	"tongue-vision-go/internal/logger"
	"tongue-vision-go/internal/mqtt"
	"tongue-vision-go/internal/utils"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.String("config", "", "Path to config file (optional)")
	pflag.Parse()

	// Environment overrides may live in a local .env file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Could not load .env file: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log); err != nil {
		// Log the error but continue, the logger might have defaulted
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	// Initialize tongue detector. The server cannot serve anything
	// useful without it.
	log.Infof("Loading detector weights from %s", cfg.Detector.ModelPath)
	detector, err := detect.NewONNXDetector(cfg.Detector)
	if err != nil {
		log.Fatalf("Failed to initialize detector: %v", err)
	}
	defer detector.Close()

	// Initialize face pipeline. Failure here is not fatal: the face
	// endpoints run in degraded mode and report the missing backend.
	var facePipeline *face.Pipeline
	var faceEmbedder handlers.FaceEmbedder
	var poolStats utils.PoolStats
	if cfg.Face.Enabled {
		facePipeline, err = face.Load(cfg.Face)
		if err != nil {
			log.Warnf("Face pipeline unavailable, continuing in degraded mode: %v", err)
		} else {
			faceEmbedder = facePipeline
			poolStats = facePipeline.Pool()
			defer facePipeline.Close()
		}
	} else {
		log.Info("Face pipeline disabled in config.")
	}

	// Initialize MQTT publisher if enabled
	var publisher handlers.Publisher
	if cfg.MQTT.Enabled {
		p := mqtt.NewPublisher(cfg.MQTT)
		if err := p.Start(); err != nil {
			log.Warnf("Failed to connect MQTT publisher: %v. Continuing without MQTT.", err)
		} else {
			publisher = p
			defer p.Stop()
		}
	} else {
		log.Info("MQTT is disabled in config.")
	}

	apiHandler := handlers.NewAPIHandler(cfg, detector, faceEmbedder, poolStats, publisher)
	router := apiHandler.Router()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Infof("Starting server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
