// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/strokecovery/bites-engine/internal/httputil"
	"github.com/strokecovery/bites-engine/pkg/types"
)

// openAIURL is the OpenAI embeddings endpoint. Package-level var for
// test substitution.
var openAIURL = "https://api.openai.com/v1/embeddings"

const defaultModel = "text-embedding-3-small"

// OpenAIBackend calls the OpenAI embeddings API.
type OpenAIBackend struct {
	APIKey     string
	Model      string
	Dimensions int
	Client     *http.Client
}

// NewOpenAIBackend builds a backend from embedding config.
func NewOpenAIBackend(cfg types.EmbeddingConfig) *OpenAIBackend {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &OpenAIBackend{
		APIKey:     cfg.APIKey,
		Model:      model,
		Dimensions: cfg.Dimensions,
	}
}

type openAIRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed requests one vector per input in a single batch call. The API
// may return data out of order, so vectors are placed by index.
func (b *OpenAIBackend) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	reqBody := openAIRequest{
		Model:      b.Model,
		Input:      inputs,
		Dimensions: b.Dimensions,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.APIKey)

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("calling embeddings API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var oResp openAIResponse
	if err := json.Unmarshal(body, &oResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if oResp.Error != nil {
		return nil, fmt.Errorf("embeddings API error: %s", oResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings API returned %d: %s", resp.StatusCode, string(body))
	}
	if len(oResp.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(oResp.Data), len(inputs))
	}

	vectors := make([][]float32, len(inputs))
	for _, item := range oResp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
