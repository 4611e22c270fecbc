package xref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

// DefaultModel is the adjudication model. Classification of short
// commit messages is a simple task; the cost-efficient tier is enough.
const DefaultModel = "claude-3-5-haiku-20241022"

const adjudicationPrompt = `You are a Git commit analysis assistant.
Your task is to analyze a Git commit message and identify which IDs from a specific list are explicitly fixed.

Rules:
1. You will be given a JSON input containing "relevant_ids" and a "commit_message".
2. Your response MUST be a valid JSON object with a single key "fixed_ids".
3. The value of "fixed_ids" MUST be a list containing only the IDs from "relevant_ids" that the commit message explicitly "Fixes", "Closes", or "Resolves".
4. If no IDs are explicitly fixed, return {"fixed_ids": []}.
5. Do not include IDs that are only related or mentioned (e.g. "See #123").

Example input:
{"relevant_ids": ["8714", "8699"], "commit_message": "Refactor ActiveFilter (#8714)\nClose #8699"}
Example response:
{"fixed_ids": ["8699"]}

Example input:
{"relevant_ids": ["8700", "8699"], "commit_message": "Work on #8699 related to #8700"}
Example response:
{"fixed_ids": []}

Input:
`

// SemanticRetryConfig holds retry configuration for adjudication calls.
type SemanticRetryConfig struct {
	MaxRetries        int           // Retries after the first attempt (default: 3)
	InitialBackoff    time.Duration // Backoff before the first retry (default: 1s)
	MaxBackoff        time.Duration // Backoff ceiling (default: 30s)
	BackoffMultiplier float64       // Backoff growth factor (default: 2.0)
	Timeout           time.Duration // Per-attempt timeout (default: 60s)
}

// DefaultSemanticRetryConfig returns the default adjudication retry
// configuration.
func DefaultSemanticRetryConfig() SemanticRetryConfig {
	return SemanticRetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           60 * time.Second,
	}
}

// SemanticConfig configures the model-assisted matcher.
type SemanticConfig struct {
	APIKey          string              // If empty, read from ANTHROPIC_API_KEY
	Model           string              // Default: DefaultModel
	Retry           SemanticRetryConfig // Uses defaults when zero
	RequestInterval time.Duration       // Minimum spacing between calls (default: 100ms)
}

// SemanticMatcher adjudicates candidate commits with a generative
// classifier. The model is an unreliable black box: its answer is
// clamped to the relevant set, and any transport or parse failure
// fails closed to "fixes nothing" for that commit.
type SemanticMatcher struct {
	client  anthropic.Client
	model   string
	retry   SemanticRetryConfig
	limiter *rate.Limiter
}

// NewSemanticMatcher creates the model-assisted matcher. A missing API
// key is a configuration error: the caller only constructs this
// matcher for trackers that require it.
func NewSemanticMatcher(cfg SemanticConfig) (*SemanticMatcher, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultSemanticRetryConfig()
	}
	interval := cfg.RequestInterval
	if interval == 0 {
		interval = 100 * time.Millisecond
	}

	return &SemanticMatcher{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		retry:   retry,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}, nil
}

// Name implements Matcher.
func (s *SemanticMatcher) Name() string { return "semantic" }

// ConfirmFixed submits (relevant_ids, message) to the model and
// returns the subset of relevantIDs it claims are fixed. Parse
// failures and exhausted retries yield an empty set, not an error;
// only context cancellation is propagated.
func (s *SemanticMatcher) ConfirmFixed(ctx context.Context, message string, relevantIDs []string) ([]string, error) {
	input, err := json.Marshal(map[string]any{
		"relevant_ids":   relevantIDs,
		"commit_message": message,
	})
	if err != nil {
		return nil, nil
	}

	responseText, err := s.callModel(ctx, adjudicationPrompt+string(input))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fmt.Fprintf(os.Stderr, "  -> model call failed, treating commit as fixing nothing: %v\n", err)
		return nil, nil
	}

	claimed, ok := parseAdjudication(responseText)
	if !ok {
		fmt.Fprintf(os.Stderr, "  -> unparseable model response, treating commit as fixing nothing: %s\n",
			truncate(responseText, 200))
		return nil, nil
	}
	return containment(claimed, relevantIDs), nil
}

// callModel performs the API call with retry and exponential backoff.
func (s *SemanticMatcher) callModel(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	backoff := s.retry.InitialBackoff

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.retry.Timeout)
		resp, err := s.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(s.model),
			MaxTokens: 1024,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		cancel()

		if err == nil {
			var text string
			for _, block := range resp.Content {
				if block.Type == "text" {
					text += block.Text
				}
			}
			return text, nil
		}

		lastErr = err
		if !isRetriableModelError(err) || attempt == s.retry.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * s.retry.BackoffMultiplier)
			if backoff > s.retry.MaxBackoff {
				backoff = s.retry.MaxBackoff
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("adjudication call failed after %d attempts: %w", s.retry.MaxRetries+1, lastErr)
}

// adjudication is the expected response shape.
type adjudication struct {
	FixedIDs []string `json:"fixed_ids"`
}

// parseAdjudication extracts the claimed fixed-id list from model
// output. Accepted shapes, most to least preferred: an object with
// "fixed_ids", a bare string list, any object whose first list value
// holds strings.
func parseAdjudication(text string) ([]string, bool) {
	if resp, ok := parseJSON[adjudication](text); ok && resp.FixedIDs != nil {
		return resp.FixedIDs, true
	}
	if list, ok := parseJSON[[]string](text); ok {
		return list, true
	}
	if obj, ok := parseJSON[map[string]any](text); ok {
		for _, v := range obj {
			if list, ok := v.([]any); ok {
				return stringValues(list), true
			}
		}
		// An object with no list value still counts as a parsed
		// "fixes nothing" answer.
		return nil, true
	}
	return nil, false
}

func stringValues(list []any) []string {
	var out []string
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// isRetriableModelError mirrors the transport taxonomy for the model
// endpoint: rate limits and server/connection errors retry, client
// errors do not.
func isRetriableModelError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return true
	}
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "overloaded") {
		return true
	}
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") {
		return true
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
