// Package classifier produces category/urgency classifications for
// maintenance tickets from an OpenAI-compatible chat completions endpoint.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/upkeephq/upkeep/internal/platform/errors"
	"github.com/upkeephq/upkeep/internal/services/maintenance/domain"
)

// Request carries the ticket fields the classifier sees.
type Request struct {
	IssueTitle  string
	Description string
}

// Classifier assigns a category and urgency to a maintenance request.
type Classifier interface {
	Classify(ctx context.Context, req Request) (domain.Classification, error)
}

const systemPrompt = `You are a maintenance request classifier for a property management company.
Classify the tenant's maintenance request into exactly one category and one urgency level.

Categories: plumbing, electrical, hvac, structural, appliance, general.
Urgency: an integer from 1 (can be scheduled anytime) to 5 (requires immediate attention).

Respond with a JSON object containing exactly two fields, "category" and "urgency", and nothing else.`

// maxCompletionTokens bounds the completion size. The expected response is a
// two-field JSON object, so anything near this limit is already malformed.
const maxCompletionTokens = 120

// OpenAIConfig configures the chat completions endpoint and HTTP behavior.
type OpenAIConfig struct {
	CompletionsURL string
	Model          string
	APIKey         string
	HTTPClient     *http.Client
}

type openAIClassifier struct {
	cfg OpenAIConfig
}

// NewOpenAIClassifier builds a classifier backed by an OpenAI-compatible
// chat completions API.
func NewOpenAIClassifier(cfg OpenAIConfig) Classifier {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.CompletionsURL) == "" {
		cfg.CompletionsURL = "https://api.openai.com/v1/chat/completions"
	}
	return &openAIClassifier{cfg: cfg}
}

func (c *openAIClassifier) Classify(ctx context.Context, req Request) (domain.Classification, error) {
	model := strings.TrimSpace(c.cfg.Model)
	if model == "" {
		return domain.Classification{}, fmt.Errorf("model is required")
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.Classification{}, fmt.Errorf("description is required")
	}

	userContent := description
	if title := strings.TrimSpace(req.IssueTitle); title != "" {
		userContent = fmt.Sprintf("Title: %s\n\n%s", title, description)
	}

	requestBody, err := json.Marshal(map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userContent},
		},
		"temperature": 0,
		"max_tokens":  maxCompletionTokens,
	})
	if err != nil {
		return domain.Classification{}, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CompletionsURL, bytes.NewReader(requestBody))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		// Credential material is sent only as an Authorization header and is
		// never echoed in errors or logs.
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	res, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return domain.Classification{}, apperrors.Wrap(apperrors.CodeClassifierUnavailable, "completion request failed", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(res.Body, 4096))
		if readErr != nil {
			return domain.Classification{}, apperrors.Wrap(apperrors.CodeClassifierUnavailable, "read completion error body", readErr)
		}
		return domain.Classification{}, apperrors.New(apperrors.CodeClassifierUnavailable,
			fmt.Sprintf("completion request status %d: %s", res.StatusCode, strings.TrimSpace(string(body))))
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return domain.Classification{}, apperrors.Wrap(apperrors.CodeClassifierBadResponse, "decode completion response", err)
	}
	if len(payload.Choices) == 0 {
		return domain.Classification{}, apperrors.New(apperrors.CodeClassifierBadResponse, "completion response has no choices")
	}
	return ParseResult(payload.Choices[0].Message.Content)
}

// ParseResult parses a raw model completion into a validated classification.
// The completion must be a JSON object with exactly the fields category and
// urgency. Any deviation fails; values are never coerced or defaulted.
func ParseResult(raw string) (domain.Classification, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.Classification{}, apperrors.New(apperrors.CodeClassifierBadResponse, "completion content is empty")
	}

	var parsed struct {
		Category string      `json:"category"`
		Urgency  json.Number `json:"urgency"`
	}
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&parsed); err != nil {
		return domain.Classification{}, apperrors.Wrap(apperrors.CodeClassifierBadResponse, "completion content is not the expected JSON object", err)
	}
	if decoder.More() {
		return domain.Classification{}, apperrors.New(apperrors.CodeClassifierBadResponse, "completion content has trailing data")
	}
	if parsed.Category == "" || parsed.Urgency == "" {
		return domain.Classification{}, apperrors.New(apperrors.CodeClassifierBadResponse, "completion content is missing category or urgency")
	}
	urgency, err := parsed.Urgency.Int64()
	if err != nil {
		return domain.Classification{}, apperrors.Wrap(apperrors.CodeClassifierBadResponse, "urgency is not an integer", err)
	}
	return domain.ValidateClassification(parsed.Category, int(urgency))
}
