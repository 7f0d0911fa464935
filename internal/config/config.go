package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/safevision/safevision/pkg/types"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "SAFEVISION_"

// Config holds the application configuration
type Config struct {
	Model     ModelConfig     `json:"model"`
	Detection DetectionConfig `json:"detection"`
	Dataset   DatasetConfig   `json:"dataset"`
	Output    OutputConfig    `json:"output"`
	Server    ServerConfig    `json:"server"`
}

// ModelConfig selects the inference backend
type ModelConfig struct {
	Backend string `json:"backend"` // ollama, llamacpp or saliency
	URL     string `json:"url"`
	Name    string `json:"name"`
}

// DetectionConfig holds the detector settings
type DetectionConfig struct {
	Confidence  float64 `json:"confidence"`
	Prompt      string  `json:"prompt,omitempty"`
	SendFormat  string  `json:"send_format"`
	SendSize    int     `json:"send_size"`
	SendQuality int     `json:"send_quality"`
}

// DatasetConfig points at the dataset description file
type DatasetConfig struct {
	Path string `json:"path"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Dir          string `json:"dir"`
	ImagesSubdir string `json:"images_subdir"`
	LabelsSubdir string `json:"labels_subdir"`
	UploadsDir   string `json:"uploads_dir"`
	SamplesDir   string `json:"samples_dir"`
	Quality      int    `json:"quality"`
}

// ServerConfig holds the web server settings
type ServerConfig struct {
	Addr string `json:"addr"`
}

// Backends lists the accepted values of Model.Backend.
var Backends = []string{"ollama", "llamacpp", "saliency"}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Backend: "ollama",
			URL:     "http://localhost:11434",
			Name:    "qwen2.5vl:7b",
		},
		Detection: DetectionConfig{
			Confidence:  0.5,
			SendFormat:  "jpeg",
			SendSize:    1024,
			SendQuality: 90,
		},
		Dataset: DatasetConfig{
			Path: "yolo_params.yaml",
		},
		Output: OutputConfig{
			Dir:          "predictions",
			ImagesSubdir: "images",
			LabelsSubdir: "labels",
			UploadsDir:   "uploads",
			SamplesDir:   "samples",
			Quality:      95,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %v", types.ErrConfiguration, err)
	}

	return config, nil
}

// Load reads filename if it exists, otherwise starts from Default, then
// applies .env and environment overrides and validates the result.
func Load(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		loaded, err := LoadFromFile(filename)
		switch {
		case err == nil:
			config = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: reading .env: %v", types.ErrConfiguration, err)
	}
	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides fields from SAFEVISION_* variables, using lookup to
// read them.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"MODEL_BACKEND": &c.Model.Backend,
		"MODEL_URL":     &c.Model.URL,
		"MODEL_NAME":    &c.Model.Name,
		"PROMPT":        &c.Detection.Prompt,
		"DATASET":       &c.Dataset.Path,
		"OUTPUT_DIR":    &c.Output.Dir,
		"UPLOADS_DIR":   &c.Output.UploadsDir,
		"SAMPLES_DIR":   &c.Output.SamplesDir,
		"ADDR":          &c.Server.Addr,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "CONFIDENCE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %sCONFIDENCE: %v", types.ErrConfiguration, EnvPrefix, err)
		}
		c.Detection.Confidence = f
	}
	if v, ok := lookup(EnvPrefix + "SEND_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sSEND_SIZE: %v", types.ErrConfiguration, EnvPrefix, err)
		}
		c.Detection.SendSize = n
	}
	return nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	backendOK := false
	for _, b := range Backends {
		if strings.EqualFold(c.Model.Backend, b) {
			backendOK = true
		}
	}
	if !backendOK {
		return fmt.Errorf("%w: model.backend must be one of %s", types.ErrConfiguration, strings.Join(Backends, ", "))
	}

	if !strings.EqualFold(c.Model.Backend, "saliency") && (c.Model.URL == "" || c.Model.Name == "") {
		return fmt.Errorf("%w: model.url and model.name are required for %s", types.ErrConfiguration, c.Model.Backend)
	}

	if c.Detection.Confidence < 0 || c.Detection.Confidence > 1 {
		return fmt.Errorf("%w: detection.confidence must be between 0 and 1", types.ErrConfiguration)
	}

	if c.Detection.SendQuality < 1 || c.Detection.SendQuality > 100 {
		return fmt.Errorf("%w: detection.send_quality must be between 1 and 100", types.ErrConfiguration)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("%w: output.quality must be between 1 and 100", types.ErrConfiguration)
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("%w: output.dir cannot be empty", types.ErrConfiguration)
	}

	return nil
}

// ImagesDir is where annotated images are written.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.Output.Dir, c.Output.ImagesSubdir)
}

// LabelsDir is where label files are written.
func (c *Config) LabelsDir() string {
	return filepath.Join(c.Output.Dir, c.Output.LabelsSubdir)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "safevision", "config.json")
}
