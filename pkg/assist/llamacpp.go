package assist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/menta2k/bbox-annotator/pkg/types"
)

// LlamaCppClient talks to a llama.cpp server through its OpenAI compatible
// chat completions endpoint
type LlamaCppClient struct {
	http *resty.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewLlamaCppClient creates a client for serverURL.
func NewLlamaCppClient(serverURL string) *LlamaCppClient {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	return &LlamaCppClient{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(serverURL, "/")).
			SetTimeout(5 * time.Minute).
			SetHeader("Content-Type", "application/json"),
	}
}

// AnalyzeImage posts the prompt and a data URL of the image.
func (c *LlamaCppClient) AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error) {
	content := []contentPart{{Type: "text", Text: prompt}}
	if imgB64 != "" {
		content = append(content, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:image/jpeg;base64," + imgB64},
		})
	}

	var out chatCompletionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatCompletionRequest{
			Model:       model,
			Messages:    []chatMessage{{Role: "user", Content: content}},
			Temperature: 0.7,
			MaxTokens:   4096,
			TopP:        0.8,
		}).
		SetResult(&out).
		Post("/v1/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	text := messageText(out.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("empty response from llama.cpp server")
	}
	return parseAnalysisResult(text)
}

// messageText accepts both the string and the content-part array forms.
func messageText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok && text != "" {
				return text
			}
		}
	}
	return ""
}
