// Package assist asks a vision model where the configured class sits in an
// image so the annotation surface can start from a suggested box.
package assist

import (
	"context"
	"fmt"
	"strings"

	"github.com/menta2k/bbox-annotator/pkg/types"
)

// VisionClient sends one image and prompt to a vision model
type VisionClient interface {
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}

// NewClient builds the VisionClient for backend: "ollama", "llamacpp", or
// "saliency" for the local model-free locator.
func NewClient(backend, serverURL string) (VisionClient, error) {
	switch strings.ToLower(backend) {
	case "", "ollama":
		return NewOllamaClient(serverURL)
	case "llamacpp", "llama.cpp", "llama-cpp":
		return NewLlamaCppClient(serverURL), nil
	case "saliency":
		return NewSaliencyClient(DefaultSaliencyConfig()), nil
	default:
		return nil, fmt.Errorf("unknown assist backend %q", backend)
	}
}
