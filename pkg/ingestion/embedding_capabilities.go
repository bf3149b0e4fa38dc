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
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// Capabilities describes what a provider supports, so callers can size
// sub-batches and predict whether a provider needs network access.
type Capabilities struct {
	MaxBatchSize       int
	MaxTokensPerText   int
	RequiresNetwork    bool
	SupportsGPU        bool
	EstimatedLatencyMs int
}

// EmbeddingErrorKind classifies a provider failure for retry/backoff
// decisions, replacing substring matching on error text.
type EmbeddingErrorKind string

const (
	EmbedErrRateLimit          EmbeddingErrorKind = "rate_limit"
	EmbedErrTimeout            EmbeddingErrorKind = "timeout"
	EmbedErrTransientNetwork   EmbeddingErrorKind = "transient_network"
	EmbedErrServiceUnavailable EmbeddingErrorKind = "service_unavailable"
	EmbedErrAuth               EmbeddingErrorKind = "auth"
	EmbedErrBadRequest         EmbeddingErrorKind = "bad_request"
	EmbedErrValidation         EmbeddingErrorKind = "validation"
	EmbedErrUnknown            EmbeddingErrorKind = "unknown"
)

// EmbeddingError carries a classified failure from a provider call,
// including any Retry-After the provider asked for. API keys are never
// placed in Err's text by callers that construct this type.
type EmbeddingError struct {
	Kind       EmbeddingErrorKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *EmbeddingError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// classifyHTTPStatus maps an HTTP status code to an EmbeddingErrorKind,
// per spec: 429 rate-limit, 408/504 timeout, 5xx transient/unavailable,
// 401/403 auth, 400 bad request.
func classifyHTTPStatus(status int) EmbeddingErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return EmbedErrRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return EmbedErrTimeout
	case status == http.StatusServiceUnavailable:
		return EmbedErrServiceUnavailable
	case status >= 500:
		return EmbedErrTransientNetwork
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return EmbedErrAuth
	case status == http.StatusBadRequest:
		return EmbedErrBadRequest
	default:
		return EmbedErrUnknown
	}
}

// newHTTPEmbeddingError builds a classified error from an HTTP response,
// honoring a Retry-After header (seconds, or an HTTP-date) when present.
func newHTTPEmbeddingError(resp *http.Response, body string) *EmbeddingError {
	kind := classifyHTTPStatus(resp.StatusCode)
	return &EmbeddingError{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		Err:        fmt.Errorf("%s", redactSecrets(body)),
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

// networkErrPattern recognizes OS/transport-level failures that carry no
// HTTP status at all (connection refused/reset, DNS failure, deadline).
var networkErrPattern = regexp.MustCompile(`(?i)(connection refused|connection reset|no such host|timeout|deadline exceeded|EOF|network is unreachable)`)

// classifyTransportError classifies an error raised before any HTTP
// response was received (dial/timeout/DNS failures have no status code to
// inspect, so text matching on the transport error is the correct tool,
// not a substitute for it).
func classifyTransportError(err error) *EmbeddingError {
	err = redactError(err)
	if networkErrPattern.MatchString(err.Error()) {
		return &EmbeddingError{Kind: EmbedErrTransientNetwork, Err: err}
	}
	return &EmbeddingError{Kind: EmbedErrUnknown, Err: err}
}

// IsRetryable reports whether a classified embedding error is worth
// retrying, replacing the old substring-based isRetryableEmbeddingError.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var embedErr *EmbeddingError
	if errors.As(err, &embedErr) {
		switch embedErr.Kind {
		case EmbedErrRateLimit, EmbedErrTimeout, EmbedErrTransientNetwork, EmbedErrServiceUnavailable:
			return true
		case EmbedErrAuth, EmbedErrBadRequest, EmbedErrValidation:
			return false
		}
	}
	// Fall back to the legacy substring classifier for providers/paths
	// that have not yet been converted to EmbeddingError.
	return isRetryableEmbeddingError(err)
}

// RetryAfterOf extracts the Retry-After duration a provider asked for, if
// any was present on the error.
func RetryAfterOf(err error) time.Duration {
	var embedErr *EmbeddingError
	if errors.As(err, &embedErr) {
		return embedErr.RetryAfter
	}
	return 0
}

// CapableProvider is implemented by providers that expose batching limits
// and a health check, per the embedding provider contract (C1).
type CapableProvider interface {
	EmbeddingProvider
	ProviderID() string
	ModelID() string
	Dimensions() int
	Capabilities() Capabilities
	HealthCheck(ctx context.Context) (bool, error)
}

// EmbedBatchProvider is implemented by providers that can embed a batch of
// texts in one call, preserving input order in the output.
type EmbedBatchProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedTextsInBatches splits texts into sub-batches no larger than
// provider.Capabilities().MaxBatchSize, embeds each sub-batch (using true
// batching when the provider implements EmbedBatchProvider, falling back
// to one call per text otherwise), and returns vectors in input order.
// Each sub-batch gets its own retry/backoff, like EmbedFunctions/EmbedTypes.
func (eg *EmbeddingGenerator) EmbedTextsInBatches(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	maxBatch := 32
	if cp, ok := eg.provider.(CapableProvider); ok {
		if caps := cp.Capabilities(); caps.MaxBatchSize > 0 {
			maxBatch = caps.MaxBatchSize
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		sub := texts[start:end]

		vectors, err := eg.embedSubBatchWithRetry(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("embed sub-batch [%d:%d]: %w", start, end, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (eg *EmbeddingGenerator) embedSubBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	maxRetries := eg.retry.MaxRetries
	base := eg.retry.InitialBackoff
	maxBackoff := eg.retry.MaxBackoff
	mult := eg.retry.Multiplier

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		vectors, err := eg.embedOnce(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = redactError(err)

		if !IsRetryable(err) || attempt == maxRetries-1 {
			return nil, lastErr
		}

		sleep := computeBackoffWithJitter(base, attempt, mult, maxBackoff)
		if ra := RetryAfterOf(err); ra > sleep {
			sleep = ra
		}
		recordEmbedRetry()
		eg.logger.Warn("embedding.batch.retry", "batch_size", len(texts), "attempt", attempt+1, "sleep_ms", sleep.Milliseconds(), "err", lastErr)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, lastErr
}

func (eg *EmbeddingGenerator) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if batcher, ok := eg.provider.(EmbedBatchProvider); ok {
		return batcher.EmbedBatch(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := eg.provider.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}
