// Package engine builds the inference engine selected in the configuration.
package engine

import (
	"fmt"
	"strings"

	"github.com/cyclopcam/logs"

	"github.com/safevision/safevision/internal/config"
	"github.com/safevision/safevision/pkg/client"
	"github.com/safevision/safevision/pkg/detection"
	"github.com/safevision/safevision/pkg/llamacpp"
	"github.com/safevision/safevision/pkg/ollama"
	"github.com/safevision/safevision/pkg/types"
	"github.com/safevision/safevision/pkg/vision"
)

// New returns the engine for cfg.Model.Backend. names is the dataset class
// list handed to model backed detectors.
func New(cfg *config.Config, names []string, log logs.Log) (detection.Engine, error) {
	backend := strings.ToLower(cfg.Model.Backend)
	if backend == "saliency" {
		vc := vision.DefaultConfig()
		if len(names) > 0 {
			vc.Label = names[0]
		}
		return vision.NewWithConfig(vc), nil
	}

	var visionClient client.VisionClient
	var err error
	switch backend {
	case "ollama":
		visionClient, err = ollama.NewClient(cfg.Model.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create Ollama client: %v", types.ErrConfiguration, err)
		}
	case "llamacpp":
		visionClient, err = llamacpp.NewClient(cfg.Model.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create llama.cpp client: %v", types.ErrConfiguration, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown backend: %s (use ollama, llamacpp or saliency)", types.ErrConfiguration, cfg.Model.Backend)
	}

	dc := detection.DefaultConfig(cfg.Model.Name)
	dc.Confidence = cfg.Detection.Confidence
	dc.Prompt = cfg.Detection.Prompt
	if cfg.Detection.SendFormat != "" {
		dc.SendFormat = cfg.Detection.SendFormat
	}
	if cfg.Detection.SendSize > 0 {
		dc.SendSize = cfg.Detection.SendSize
	}
	if cfg.Detection.SendQuality > 0 {
		dc.SendQuality = cfg.Detection.SendQuality
	}
	if log != nil {
		log.Infof("Using %s model %s at %s", backend, cfg.Model.Name, cfg.Model.URL)
	}
	return detection.NewDetector(visionClient, names, dc, log), nil
}
