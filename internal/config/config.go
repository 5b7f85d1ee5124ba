package config

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Detector DetectorConfig `mapstructure:"detector"`
	Face     FaceConfig     `mapstructure:"face"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DetectorConfig holds settings for the tongue position detector.
type DetectorConfig struct {
	ModelPath     string  `mapstructure:"model_path"`
	InputSize     int     `mapstructure:"input_size"`
	ConfThreshold float32 `mapstructure:"conf_threshold"`
	IoUThreshold  float32 `mapstructure:"iou_threshold"`
}

// FaceConfig holds settings for the face embedding pipeline.
type FaceConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	DetectorModelPath string  `mapstructure:"detector_model_path"`
	DetectorProtoPath string  `mapstructure:"detector_proto_path"`
	EmbedderModelPath string  `mapstructure:"embedder_model_path"`
	DetConfThreshold  float32 `mapstructure:"det_conf_threshold"`
	CropMargin        float64 `mapstructure:"crop_margin"`
	PoolWorkers       int     `mapstructure:"pool_workers"`
}

// MQTTConfig holds settings for the optional detection event publisher.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// Load reads configuration from an optional YAML file, environment variables
// and defaults. Environment variables win over file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Environment overrides used by existing deployments: ALLOWED_ORIGINS is a
	// comma-separated origin list, MODEL_PATH points at the detector weights.
	v.BindEnv("server.allowed_origins_raw", "ALLOWED_ORIGINS")
	v.BindEnv("detector.model_path", "MODEL_PATH")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if raw := v.GetString("server.allowed_origins_raw"); raw != "" {
		cfg.Server.AllowedOrigins = SplitOrigins(raw)
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}

	return &cfg, nil
}

// SplitOrigins parses a comma-separated origin list, dropping empty entries.
func SplitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// setDefaults registers default values for all configuration keys.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// Detector defaults
	v.SetDefault("detector.model_path", "models/best.onnx")
	v.SetDefault("detector.input_size", 640)
	v.SetDefault("detector.conf_threshold", 0.25)
	v.SetDefault("detector.iou_threshold", 0.45)

	// Face pipeline defaults
	v.SetDefault("face.enabled", true)
	v.SetDefault("face.detector_model_path", "models/face/res10_300x300_ssd_iter_140000.caffemodel")
	v.SetDefault("face.detector_proto_path", "models/face/deploy.prototxt")
	v.SetDefault("face.embedder_model_path", "models/face/facenet_512.onnx")
	v.SetDefault("face.det_conf_threshold", 0.5)
	v.SetDefault("face.crop_margin", 0.2)
	v.SetDefault("face.pool_workers", 0) // 0 = derive from CPU count

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "tongue-vision-go")
	v.SetDefault("mqtt.topic", "tongue-vision/detections")
}
