package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"careerpilot/internal/config"
	"careerpilot/internal/models"
)

// Provider is the language-model interface the orchestrator and tools
// depend on. The production implementation talks to an OpenAI-compatible
// endpoint; tests substitute fakes.
type Provider interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// ProviderService calls an OpenAI-compatible /chat/completions endpoint.
// A shared rate limiter keeps all callers inside the provider quota.
type ProviderService struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	client  *http.Client
}

// NewProviderService creates a new provider client
func NewProviderService(cfg *config.Config) *ProviderService {
	rpm := cfg.LLMRequestsPerMin
	if rpm <= 0 {
		rpm = 60
	}
	return &ProviderService{
		baseURL: cfg.LLMBaseURL,
		apiKey:  cfg.LLMAPIKey,
		model:   cfg.LLMModel,
		timeout: cfg.LLMTimeout,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		client:  &http.Client{Timeout: cfg.LLMTimeout},
	}
}

// Complete performs a non-streaming chat completion
func (s *ProviderService) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	apiMessages := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		msg := map[string]interface{}{
			"role":    m.Role,
			"content": m.Content,
		}
		if m.Name != "" {
			msg["name"] = m.Name
		}
		apiMessages = append(apiMessages, msg)
	}

	reqBody := map[string]interface{}{
		"model":    s.model,
		"messages": apiMessages,
		"stream":   false,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewBuffer(reqJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("provider error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := result.Choices[0].Message.Content
	log.Printf("📡 [PROVIDER] Completion: %d chars", len(content))

	return content, nil
}
