package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSplitOrigins(t *testing.T) {
	tests := []struct {
		raw      string
		expected []string
	}{
		{"http://localhost:3000,http://localhost:3001", []string{"http://localhost:3000", "http://localhost:3001"}},
		{"http://a.example , http://b.example", []string{"http://a.example", "http://b.example"}},
		{"http://only.example", []string{"http://only.example"}},
		{"http://a.example,,http://b.example,", []string{"http://a.example", "http://b.example"}},
	}

	for _, tt := range tests {
		result := SplitOrigins(tt.raw)
		if !reflect.DeepEqual(result, tt.expected) {
			t.Errorf("SplitOrigins(%q) = %v, expected %v", tt.raw, result, tt.expected)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("ALLOWED_ORIGINS")
	os.Unsetenv("MODEL_PATH")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("default server port = %d, expected 8000", cfg.Server.Port)
	}
	if cfg.Detector.ConfThreshold != 0.25 {
		t.Errorf("default conf threshold = %v, expected 0.25", cfg.Detector.ConfThreshold)
	}
	if cfg.Detector.IoUThreshold != 0.45 {
		t.Errorf("default IoU threshold = %v, expected 0.45", cfg.Detector.IoUThreshold)
	}
	expected := []string{"http://localhost:3000", "http://localhost:3001"}
	if !reflect.DeepEqual(cfg.Server.AllowedOrigins, expected) {
		t.Errorf("default origins = %v, expected %v", cfg.Server.AllowedOrigins, expected)
	}
	if !cfg.Face.Enabled {
		t.Error("face pipeline should be enabled by default")
	}
	if cfg.MQTT.Enabled {
		t.Error("mqtt should be disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	os.Setenv("ALLOWED_ORIGINS", "http://front.example:8080,http://other.example")
	os.Setenv("MODEL_PATH", "/opt/models/tongue.onnx")
	defer os.Unsetenv("ALLOWED_ORIGINS")
	defer os.Unsetenv("MODEL_PATH")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Detector.ModelPath != "/opt/models/tongue.onnx" {
		t.Errorf("MODEL_PATH override not applied, got %q", cfg.Detector.ModelPath)
	}
	expected := []string{"http://front.example:8080", "http://other.example"}
	if !reflect.DeepEqual(cfg.Server.AllowedOrigins, expected) {
		t.Errorf("ALLOWED_ORIGINS override not applied, got %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadFromFile(t *testing.T) {
	os.Unsetenv("ALLOWED_ORIGINS")
	os.Unsetenv("MODEL_PATH")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `server:
  port: 9100
detector:
  model_path: runs/detect/exp1/weights/best.onnx
face:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("server port = %d, expected 9100", cfg.Server.Port)
	}
	if cfg.Detector.ModelPath != "runs/detect/exp1/weights/best.onnx" {
		t.Errorf("model path = %q", cfg.Detector.ModelPath)
	}
	if cfg.Face.Enabled {
		t.Error("face pipeline should be disabled by file setting")
	}
}
