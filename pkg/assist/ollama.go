package assist

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/bbox-annotator/pkg/types"
)

// OllamaClient wraps the Ollama API client
type OllamaClient struct {
	client *api.Client
}

// NewOllamaClient creates a client for the Ollama server at serverURL. Any
// path on the URL is ignored.
func NewOllamaClient(serverURL string) (*OllamaClient, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q has no scheme or host", serverURL)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &OllamaClient{client: api.NewClient(base, http.DefaultClient)}, nil
}

// AnalyzeImage runs one non-streaming chat turn with the image attached.
func (c *OllamaClient) AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error) {
	// vision models on CPU are slow
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}

	stream := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{{
			Role:    "user",
			Content: prompt,
			Images:  []api.ImageData{api.ImageData(imgBytes)},
		}},
		Stream:  &stream,
		Options: modelOptions(model),
	}

	var content string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}
	if content == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}
	return parseAnalysisResult(content)
}

func modelOptions(model string) map[string]any {
	opts := map[string]any{}
	m := strings.ToLower(model)
	if strings.Contains(m, "minicpm-v4") || strings.Contains(m, "minicpm-v-4") || strings.Contains(m, "minicpmv4") {
		opts["temperature"] = 0.7
		opts["top_p"] = 0.8
		opts["num_ctx"] = 4096
	}
	return opts
}
