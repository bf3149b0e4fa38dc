// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// This file implements the provider-identity, capability, batch, and
// health-check surface (ProviderID/ModelID/Dimensions/Capabilities/
// HealthCheck/EmbedBatch) for each concrete EmbeddingProvider, on top of
// the existing single-item Embed implementations. It never changes the
// worker-pool callers (EmbedFunctions/EmbedTypes), which only need Embed.

// ---------------------------------------------------------------------
// Mock
// ---------------------------------------------------------------------

func (m *MockEmbeddingProvider) ProviderID() string { return "mock" }
func (m *MockEmbeddingProvider) ModelID() string { return "mock-deterministic-hash" }
func (m *MockEmbeddingProvider) Dimensions() int { return m.dimension }

func (m *MockEmbeddingProvider) Capabilities() Capabilities {
	return Capabilities{
		MaxBatchSize:       1000,
		MaxTokensPerText:   8192,
		RequiresNetwork:    false,
		SupportsGPU:        false,
		EstimatedLatencyMs: 0,
	}
}

func (m *MockEmbeddingProvider) HealthCheck(ctx context.Context) (bool, error) {
	return true, nil
}

func (m *MockEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ---------------------------------------------------------------------
// Nomic - true array batching, matches NomicEmbedRequest.Texts
// ---------------------------------------------------------------------

func (n *NomicEmbeddingProvider) ProviderID() string { return "nomic" }
func (n *NomicEmbeddingProvider) ModelID() string { return n.model }
func (n *NomicEmbeddingProvider) Dimensions() int { return 0 } // determined by the API response, not fixed per model here

func (n *NomicEmbeddingProvider) Capabilities() Capabilities {
	return Capabilities{
		MaxBatchSize:       100,
		MaxTokensPerText:   8192,
		RequiresNetwork:    true,
		SupportsGPU:        false,
		EstimatedLatencyMs: 300,
	}
}

func (n *NomicEmbeddingProvider) HealthCheck(ctx context.Context) (bool, error) {
	ok, err := pingWithAuth(ctx, n.httpClient, n.baseURL+"/embedding/text", n.apiKey)
	return ok, err
}

// EmbedBatch embeds up to Capabilities().MaxBatchSize texts in a single
// Nomic API call; the response's Embeddings slice preserves request order.
func (n *NomicEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := NomicEmbedRequest{
		Texts:    texts,
		Model:    n.model,
		TaskType: "search_document",
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := n.baseURL + "/embedding/text"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp NomicErrorResponse
		msg := string(body)
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
			msg = errResp.Detail
		}
		return nil, newHTTPEmbeddingError(resp, msg)
	}

	var embedResp NomicEmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("nomic returned %d embeddings for %d inputs", len(embedResp.Embeddings), len(texts))
	}

	out := make([][]float32, len(embedResp.Embeddings))
	for i, vec := range embedResp.Embeddings {
		v := make([]float32, len(vec))
		for j, f := range vec {
			v[j] = float32(f)
		}
		out[i] = normalizeEmbedding(v)
	}
	return out, nil
}

// ---------------------------------------------------------------------
// Ollama - single-item API, batch loops over Embed
// ---------------------------------------------------------------------

func (o *OllamaEmbeddingProvider) ProviderID() string { return "ollama" }
func (o *OllamaEmbeddingProvider) ModelID() string { return o.model }
func (o *OllamaEmbeddingProvider) Dimensions() int { return 0 }

func (o *OllamaEmbeddingProvider) Capabilities() Capabilities {
	return Capabilities{
		MaxBatchSize:       1,
		MaxTokensPerText:   2048,
		RequiresNetwork:    false, // local daemon, but still over HTTP
		SupportsGPU:        true,
		EstimatedLatencyMs: 150,
	}
}

func (o *OllamaEmbeddingProvider) HealthCheck(ctx context.Context) (bool, error) {
	return pingGet(ctx, o.httpClient, o.baseURL+"/api/tags")
}

// EmbedBatch loops over Embed: Ollama's /api/embeddings endpoint accepts
// one prompt per request, so there is no array form to call into.
func (o *OllamaEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := o.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ---------------------------------------------------------------------
// OpenAI-compatible - true array batching once Input accepts []string
// ---------------------------------------------------------------------

func (o *OpenAIEmbeddingProvider) ProviderID() string { return "openai" }
func (o *OpenAIEmbeddingProvider) ModelID() string { return o.model }
func (o *OpenAIEmbeddingProvider) Dimensions() int { return 0 }

func (o *OpenAIEmbeddingProvider) Capabilities() Capabilities {
	return Capabilities{
		MaxBatchSize:       100,
		MaxTokensPerText:   8191,
		RequiresNetwork:    true,
		SupportsGPU:        false,
		EstimatedLatencyMs: 250,
	}
}

func (o *OpenAIEmbeddingProvider) HealthCheck(ctx context.Context) (bool, error) {
	return pingWithAuth(ctx, o.httpClient, o.baseURL+"/models", o.apiKey)
}

// openAIBatchEmbedRequest mirrors OpenAIEmbedRequest but accepts an array
// of inputs, which the OpenAI embeddings endpoint supports natively.
type openAIBatchEmbedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

// EmbedBatch submits all texts as a single array-valued "input" to the
// OpenAI-compatible endpoint; results are re-ordered by the response's
// "index" field before returning, since providers are not required to
// preserve request order in "data".
func (o *OpenAIEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := openAIBatchEmbedRequest{
		Input:          texts,
		Model:          o.model,
		EncodingFormat: "float",
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := o.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp OpenAIErrorResponse
		msg := string(body)
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return nil, newHTTPEmbeddingError(resp, msg)
	}

	var embedResp OpenAIEmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(embedResp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(embedResp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range embedResp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("openai returned out-of-range index %d", item.Index)
		}
		v := make([]float32, len(item.Embedding))
		for j, f := range item.Embedding {
			v[j] = float32(f)
		}
		out[item.Index] = normalizeEmbedding(v)
	}
	return out, nil
}

// ---------------------------------------------------------------------
// LlamaCpp - single-item API, batch loops over Embed
// ---------------------------------------------------------------------

func (l *LlamaCppEmbeddingProvider) ProviderID() string { return "llamacpp" }
func (l *LlamaCppEmbeddingProvider) ModelID() string { return "qodo-embed-1" }
func (l *LlamaCppEmbeddingProvider) Dimensions() int { return 1536 }

func (l *LlamaCppEmbeddingProvider) Capabilities() Capabilities {
	return Capabilities{
		MaxBatchSize:       1,
		MaxTokensPerText:   32768,
		RequiresNetwork:    false,
		SupportsGPU:        true,
		EstimatedLatencyMs: 100,
	}
}

func (l *LlamaCppEmbeddingProvider) HealthCheck(ctx context.Context) (bool, error) {
	return pingGet(ctx, l.httpClient, l.baseURL+"/health")
}

// EmbedBatch loops over Embed: llama-server's /embedding endpoint embeds
// one "content" string per request.
func (l *LlamaCppEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := l.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ---------------------------------------------------------------------
// shared HTTP health-check helpers
// ---------------------------------------------------------------------

func pingGet(ctx context.Context, client *http.Client, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("create health check request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 500, nil
}

// pingWithAuth issues a lightweight GET carrying the provider's API key,
// scrubbing the key from any returned error so it never reaches logs.
func pingWithAuth(ctx context.Context, client *http.Client, url, apiKey string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("create health check request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := client.Do(req)
	if err != nil {
		return false, classifyTransportError(scrubAPIKey(err, apiKey))
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 500, nil
}

// scrubAPIKey removes a literal API key from an error's text so provider
// credentials never surface in logs or returned errors.
func scrubAPIKey(err error, apiKey string) error {
	if apiKey == "" || err == nil {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), apiKey, "[REDACTED]"))
}

// secretPatterns catches API-key-shaped tokens a provider error or response
// body might echo back even when the caller doesn't know the literal key
// up front (e.g. a different key than the one configured, or a secret
// embedded in a proxy's error page).
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`[A-Za-z0-9]{40,}`),
}

// redactSecrets replaces anything matching secretPatterns in s.
func redactSecrets(s string) string {
	s = secretPatterns[0].ReplaceAllString(s, "sk-***")
	s = secretPatterns[1].ReplaceAllString(s, "***")
	return s
}

// redactError wraps err so embed/retry error paths never surface a raw API
// key or key-shaped token, independent of scrubAPIKey's literal match on
// the configured key above.
func redactError(err error) error {
	if err == nil {
		return nil
	}
	redacted := redactSecrets(err.Error())
	if redacted == err.Error() {
		return err
	}
	return fmt.Errorf("%s", redacted)
}
