package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// Dimensions is the fixed width of every stored vector.
const Dimensions = 384

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HashEmbedder is a deterministic feature-hashing embedder: unigram and
// bigram counts hashed into signed buckets, L2-normalized. No network, no
// model weights; similarity is crude but stable, which is what recall needs
// when no embedding endpoint is configured.
type HashEmbedder struct{}

// Embed never fails; empty text embeds to the zero vector.
func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, Dimensions)
	words := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(words) == 0 {
		return vector, nil
	}

	features := make(map[string]int, len(words)*2)
	for _, w := range words {
		features[w]++
	}
	for i := 0; i < len(words)-1; i++ {
		features[words[i]+" "+words[i+1]]++
	}

	for feature, count := range features {
		hash := sha256.Sum256([]byte(feature))
		idx := (int(hash[0])<<8 | int(hash[1])) % Dimensions
		sign := float32(1)
		if hash[4]&1 == 1 {
			sign = -1
		}
		vector[idx] += sign * float32(count)
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= inv
		}
	}
	return vector, nil
}

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint. Responses
// whose vectors are not exactly Dimensions wide are rejected so the table
// stays consistent.
type HTTPEmbedder struct {
	Endpoint string
	APIKey   string
	Model    string
	client   *http.Client
}

// NewHTTPEmbedder builds an embedder for the given endpoint.
func NewHTTPEmbedder(endpoint, apiKey, model string) *HTTPEmbedder {
	return &HTTPEmbedder{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Embed posts the text and returns the first embedding.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]any{
		"input": []string{text},
		"model": e.Model,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", e.Endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned no vectors")
	}
	vec := result.Data[0].Embedding
	if len(vec) != Dimensions {
		return nil, fmt.Errorf("embedding endpoint returned %d dimensions, want %d", len(vec), Dimensions)
	}
	return vec, nil
}

// cosineDistance is 1 - cosine similarity; 0 means identical direction.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
