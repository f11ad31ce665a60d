// Package ollama implements models.VisionProvider against a local Ollama
// server's /api/generate endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/imagetagger/internal/config"
	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

// Provider implements models.VisionProvider using Ollama.
type Provider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewProvider(cfg config.OllamaConfig, timeout time.Duration) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "ollama" }

type generateRequest struct {
	Model  string   `json:"model"`
	Stream bool     `json:"stream"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (p *Provider) Tag(ctx context.Context, req models.TagRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	images := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, img.Data)
	}

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Stream: false,
		Prompt: req.Prompt,
		Images: images,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	base := strings.TrimRight(p.cfg.BaseURL, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama error: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	return parsed.Response, nil
}

var _ models.VisionProvider = (*Provider)(nil)
