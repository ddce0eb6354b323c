package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultGeminiHost = "https://generativelanguage.googleapis.com"

type geminiEmbedder struct {
	host      string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewGeminiEmbedder(opts Options) Embedder {
	return &geminiEmbedder{
		host:      defaultGeminiHost,
		apiKey:    opts.GeminiAPIKey,
		model:     opts.Model,
		dimension: opts.Dimension,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (e *geminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))

	url := fmt.Sprintf("%s/v1beta/models/%s:embedContent?key=%s", e.host, e.model, e.apiKey)

	for _, text := range texts {
		reqBody, err := json.Marshal(geminiRequest{
			Model:   "models/" + e.model,
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		})
		if err != nil {
			return nil, fmt.Errorf("marshal gemini request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("create gemini request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("call gemini embeddings API: %w", err)
		}

		if resp.StatusCode >= 400 {
			data, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				return nil, fmt.Errorf("read gemini error body: %w", readErr)
			}
			return nil, fmt.Errorf("gemini embeddings API error: %s", string(data))
		}

		var payload geminiResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decode gemini response: %w", err)
		}
		resp.Body.Close()

		if payload.Error.Message != "" {
			return nil, fmt.Errorf("gemini embeddings error: %s", payload.Error.Message)
		}

		vec := make([]float32, len(payload.Embedding.Values))
		for i, value := range payload.Embedding.Values {
			vec[i] = float32(value)
		}

		if e.dimension > 0 && len(vec) != e.dimension {
			return nil, fmt.Errorf("gemini embedding dimension mismatch: expected %d, got %d", e.dimension, len(vec))
		}

		results = append(results, vec)
	}

	return results, nil
}
